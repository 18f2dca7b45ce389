// Package netutil provides reachability helpers and syntactic validation
// for the network values the harness pushes at a BMC.
package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Well-known management ports.
const (
	DefaultSSHPort     = 22
	DefaultIPMIPort    = 623
	DefaultRedfishPort = 443
)

// WaitForPort polls a TCP port until it accepts a connection or the timeout
// elapses. Returns nil as soon as a connection succeeds.
func WaitForPort(ctx context.Context, host string, port int, timeout, interval time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	deadline := time.Now().Add(timeout)

	for {
		d := net.Dialer{Timeout: interval}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("port %s not reachable after %s: %w", addr, timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// CheckManagementAccess verifies the Redfish port answers on the BMC
// before a tester starts mutating anything. IPMI rides UDP 623 and cannot
// be probed with a dial; callers exercise it with an ipmitool command.
func CheckManagementAccess(ctx context.Context, host string, timeout time.Duration) error {
	if err := WaitForPort(ctx, host, DefaultRedfishPort, timeout, 2*time.Second); err != nil {
		return fmt.Errorf("management plane unreachable: %w", err)
	}
	log.Debug().Str("host", host).Msg("Redfish port reachable")
	return nil
}
