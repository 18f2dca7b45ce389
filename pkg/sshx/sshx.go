// Package sshx executes commands on the managed host's OS over SSH. Each
// logical operation dials its own connection and closes it afterwards;
// testers never share sessions.
package sshx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Result is the typed outcome of one remote command.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Ok reports whether the command exited zero.
func (r *Result) Ok() bool { return r.ExitCode == 0 }

// Client runs commands on one host. Safe to reuse; every Run dials fresh.
type Client struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

// NewClient creates an SSH executor for the host OS.
func NewClient(host string, port int, username, password string, timeout time.Duration) *Client {
	if port == 0 {
		port = 22
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		timeout:  timeout,
	}
}

// SetHost repoints the client after the managed host moved.
func (c *Client) SetHost(host string) { c.host = host }

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User: c.username,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.password),
		},
		// Lab BMC hosts get reinstalled constantly; pinning host keys would
		// break every reprovision.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.timeout,
	}

	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Run executes one command, honoring ctx for cancellation.
func (c *Client) Run(ctx context.Context, command string) (*Result, error) {
	client, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	log.Debug().Str("host", c.host).Str("command", command).Msg("Executing SSH command")

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		// Closing the client unblocks session.Run.
		client.Close()
		<-done
		return nil, ctx.Err()
	case err = <-done:
	}

	result := &Result{
		Command:  command,
		Stdout:   strings.TrimRight(stdout.String(), "\n"),
		Stderr:   strings.TrimRight(stderr.String(), "\n"),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			if result.Stderr != "" {
				log.Debug().Str("stderr", result.Stderr).Int("exit", result.ExitCode).Msg("SSH command failed")
			}
			return result, nil
		}
		return nil, fmt.Errorf("ssh run %q: %w", command, err)
	}

	return result, nil
}

// RunAll executes commands in order, stopping at the first non-zero exit.
func (c *Client) RunAll(ctx context.Context, commands ...string) error {
	for _, cmd := range commands {
		res, err := c.Run(ctx, cmd)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("command %q exited %d: %s", cmd, res.ExitCode, res.Stderr)
		}
	}
	return nil
}

// Reachable reports whether an SSH session can be established at all.
func (c *Client) Reachable(ctx context.Context) bool {
	res, err := c.Run(ctx, "true")
	return err == nil && res.Ok()
}

// CheckSudo reports whether the SSH user can escalate without a password
// prompt, which the OS-level network testers require.
func (c *Client) CheckSudo(ctx context.Context) (bool, error) {
	res, err := c.Run(ctx, "sudo -n true")
	if err != nil {
		return false, err
	}
	return res.Ok(), nil
}
