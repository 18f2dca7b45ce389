// Package ipmi drives the BMC's IPMI-over-LAN interface. LAN configuration
// goes through an ipmitool subprocess (the most portable way to reach
// firmware quirks); chassis and sensor operations use the native go-ipmi
// client where the library fits.
package ipmi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client talks to one BMC over IPMI. The host can be updated mid-run when a
// network test moves the BMC to a new address.
type Client struct {
	host     string
	username string
	password string
	channel  string
	timeout  time.Duration
	runner   Runner
}

// Option configures a Client.
type Option func(*Client)

// WithRunner swaps the subprocess runner, used by tests.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithTimeout overrides the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates an ipmitool-backed client for the given BMC.
func NewClient(host, username, password, channel string, opts ...Option) *Client {
	c := &Client{
		host:     host,
		username: username,
		password: password,
		channel:  channel,
		timeout:  30 * time.Second,
		runner:   execRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the BMC address currently in use.
func (c *Client) Host() string { return c.host }

// SetHost repoints the client after the BMC moved to a new address.
func (c *Client) SetHost(host string) {
	log.Info().Str("old", c.host).Str("new", host).Msg("Repointing IPMI client to new BMC address")
	c.host = host
}

// Channel returns the LAN channel number under test.
func (c *Client) Channel() string { return c.channel }

// run executes ipmitool with the session arguments prepended. lanplus is
// tried first with a fallback to the legacy lan interface, matching what
// older firmware accepts. The password never reaches the logs.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmdArgs := []string{
		"-I", "lanplus",
		"-H", c.host,
		"-U", c.username,
		"-P", c.password,
	}
	cmdArgs = append(cmdArgs, args...)

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log.Debug().Str("host", c.host).Strs("args", args).Msg("Executing ipmitool command")

	stdout, stderr, err := c.runner.Run(timeoutCtx, "ipmitool", cmdArgs...)
	if err != nil {
		if strings.Contains(stderr, "lanplus") || strings.Contains(err.Error(), "exit status") {
			log.Debug().Msg("Trying legacy lan interface")
			cmdArgs[1] = "lan"
			stdout, stderr, err = c.runner.Run(timeoutCtx, "ipmitool", cmdArgs...)
		}
		if err != nil {
			if timeoutCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("ipmitool timed out after %s", c.timeout)
			}
			return "", &CommandError{Args: args, Stderr: strings.TrimSpace(stderr), Err: err}
		}
	}

	return strings.TrimSpace(stdout), nil
}

// CommandError carries the ipmitool invocation context without the
// credentials.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ipmitool %s failed: %v, stderr: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

// LANPrint reads and parses the LAN configuration of the channel.
func (c *Client) LANPrint(ctx context.Context) (*LANConfig, error) {
	out, err := c.run(ctx, "lan", "print", c.channel)
	if err != nil {
		return nil, fmt.Errorf("failed to read lan configuration: %w", err)
	}
	return ParseLANPrint(out), nil
}

// lanSet performs a single "lan set" and leaves the firmware a moment to
// commit before the caller re-reads.
func (c *Client) lanSet(ctx context.Context, args ...string) error {
	setArgs := append([]string{"lan", "set", c.channel}, args...)
	if _, err := c.run(ctx, setArgs...); err != nil {
		return err
	}
	return nil
}

// SetStaticIP switches the channel to a static address configuration.
func (c *Client) SetStaticIP(ctx context.Context, ip, mask, gateway string) error {
	if err := c.lanSet(ctx, "ipsrc", "static"); err != nil {
		return fmt.Errorf("failed to set static ip source: %w", err)
	}
	if err := c.lanSet(ctx, "ipaddr", ip); err != nil {
		return fmt.Errorf("failed to set ip address: %w", err)
	}
	if err := c.lanSet(ctx, "netmask", mask); err != nil {
		return fmt.Errorf("failed to set netmask: %w", err)
	}
	if err := c.lanSet(ctx, "defgw", "ipaddr", gateway); err != nil {
		return fmt.Errorf("failed to set default gateway: %w", err)
	}
	return nil
}

// SetDHCP switches the channel to DHCP addressing.
func (c *Client) SetDHCP(ctx context.Context) error {
	if err := c.lanSet(ctx, "ipsrc", "dhcp"); err != nil {
		return fmt.Errorf("failed to enable dhcp: %w", err)
	}
	return nil
}

// SetDNS configures the primary and secondary DNS servers.
func (c *Client) SetDNS(ctx context.Context, primary, secondary string) error {
	if err := c.lanSet(ctx, "dns1", primary); err != nil {
		return fmt.Errorf("failed to set primary dns: %w", err)
	}
	if err := c.lanSet(ctx, "dns2", secondary); err != nil {
		return fmt.Errorf("failed to set secondary dns: %w", err)
	}
	return nil
}

// SetVLAN tags the channel with a VLAN id; id 0 disables tagging.
func (c *Client) SetVLAN(ctx context.Context, id, priority int) error {
	vlan := "off"
	if id > 0 {
		vlan = strconv.Itoa(id)
	}
	if err := c.lanSet(ctx, "vlan", "id", vlan); err != nil {
		return fmt.Errorf("failed to set vlan id: %w", err)
	}
	if id > 0 {
		if err := c.lanSet(ctx, "vlan", "priority", strconv.Itoa(priority)); err != nil {
			return fmt.Errorf("failed to set vlan priority: %w", err)
		}
	}
	return nil
}

// SetMAC reprograms the channel's MAC address.
func (c *Client) SetMAC(ctx context.Context, mac string) error {
	if err := c.lanSet(ctx, "macaddr", mac); err != nil {
		return fmt.Errorf("failed to set mac address: %w", err)
	}
	return nil
}

// SetAccessMode toggles LAN channel access. Turning access off severs the
// out-of-band session issuing the command; recovery has to come in-band.
func (c *Client) SetAccessMode(ctx context.Context, on bool) error {
	mode := "on"
	if !on {
		mode = "off"
	}
	if err := c.lanSet(ctx, "access", mode); err != nil {
		return fmt.Errorf("failed to set channel access: %w", err)
	}
	return nil
}

// GetHostname reads the system name from the management controller.
func (c *Client) GetHostname(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "mc", "getsysinfo", "system_name")
	if err != nil {
		return "", fmt.Errorf("failed to read system name: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// SetHostname writes the system name through the management controller.
func (c *Client) SetHostname(ctx context.Context, hostname string) error {
	if _, err := c.run(ctx, "mc", "setsysinfo", "system_name", hostname); err != nil {
		return fmt.Errorf("failed to set system name: %w", err)
	}
	return nil
}

// PowerStatus reports the chassis power state as ipmitool sees it.
func (c *Client) PowerStatus(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "chassis", "power", "status")
	if err != nil {
		return "", fmt.Errorf("failed to get power status: %w", err)
	}
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "is on"):
		return "on", nil
	case strings.Contains(lower, "is off"):
		return "off", nil
	}
	log.Warn().Str("output", out).Msg("Unknown power state output")
	return "unknown", nil
}

// PowerControl issues a chassis power command (on, off, cycle, reset).
func (c *Client) PowerControl(ctx context.Context, action string) error {
	switch action {
	case "on", "off", "cycle", "reset", "soft":
	default:
		return fmt.Errorf("unsupported power action %q", action)
	}
	if _, err := c.run(ctx, "chassis", "power", action); err != nil {
		return fmt.Errorf("power %s failed: %w", action, err)
	}
	log.Info().Str("host", c.host).Str("action", action).Msg("Chassis power command issued")
	return nil
}

// SELList returns the raw system event log entries.
func (c *Client) SELList(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "sel", "list")
	if err != nil {
		return nil, fmt.Errorf("failed to read SEL: %w", err)
	}
	var entries []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// SensorList parses "sensor list" output into per-sensor readings.
func (c *Client) SensorList(ctx context.Context) ([]SensorReading, error) {
	out, err := c.run(ctx, "sensor", "list")
	if err != nil {
		return nil, fmt.Errorf("failed to read sensors: %w", err)
	}
	return ParseSensorList(out), nil
}

// MCInfo returns the management controller identification fields.
func (c *Client) MCInfo(ctx context.Context) (map[string]string, error) {
	out, err := c.run(ctx, "mc", "info")
	if err != nil {
		return nil, fmt.Errorf("failed to read mc info: %w", err)
	}
	return ParseColonFields(out), nil
}

// CheckPrivilege verifies the configured user has the given privilege level
// on the channel.
func (c *Client) CheckPrivilege(ctx context.Context, level string) (bool, error) {
	out, err := c.run(ctx, "channel", "getaccess", c.channel)
	if err != nil {
		return false, fmt.Errorf("failed to read channel access: %w", err)
	}
	fields := ParseColonFields(out)
	for key, value := range fields {
		if strings.Contains(key, "Privilege") {
			return strings.EqualFold(strings.TrimSpace(value), level), nil
		}
	}
	return false, nil
}
