package sshx

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/iokuper/bmcqa/pkg/channel"
	"github.com/iokuper/bmcqa/pkg/netutil"
)

var (
	inetRe    = regexp.MustCompile(`inet (\d+\.\d+\.\d+\.\d+)/(\d+)`)
	macRe     = regexp.MustCompile(`link/ether ([0-9a-fA-F:]{17})`)
	defaultRe = regexp.MustCompile(`default via (\d+\.\d+\.\d+\.\d+)`)
	vlanRe    = regexp.MustCompile(`\.(\d+)@`)
)

// InterfaceConfig is the OS view of one NIC.
type InterfaceConfig struct {
	Name       string
	IPAddress  string
	SubnetMask string
	Gateway    string
	MACAddress string
	VLANID     string
	Up         bool
}

// Snapshot projects the interface state into the shared comparison form.
func (ic *InterfaceConfig) Snapshot() channel.Snapshot {
	return channel.Snapshot{
		"IP Address":      ic.IPAddress,
		"Subnet Mask":     ic.SubnetMask,
		"Default Gateway": ic.Gateway,
		"MAC Address":     strings.ToLower(ic.MACAddress),
		"VLAN ID":         ic.VLANID,
	}
}

// GetInterfaceConfig reads `ip addr` and `ip route` for one interface.
func (c *Client) GetInterfaceConfig(ctx context.Context, iface string) (*InterfaceConfig, error) {
	res, err := c.Run(ctx, fmt.Sprintf("ip addr show %s", iface))
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("ip addr show %s exited %d: %s", iface, res.ExitCode, res.Stderr)
	}

	ic := &InterfaceConfig{Name: iface, VLANID: "0"}
	ic.Up = strings.Contains(res.Stdout, "state UP")

	if m := inetRe.FindStringSubmatch(res.Stdout); m != nil {
		ic.IPAddress = m[1]
		if prefix, err := strconv.Atoi(m[2]); err == nil {
			if mask, err := netutil.CIDRToNetmask(prefix); err == nil {
				ic.SubnetMask = mask
			}
		}
	}
	if m := macRe.FindStringSubmatch(res.Stdout); m != nil {
		ic.MACAddress = m[1]
	}
	if m := vlanRe.FindStringSubmatch(res.Stdout); m != nil {
		ic.VLANID = m[1]
	}

	route, err := c.Run(ctx, fmt.Sprintf("ip route show dev %s", iface))
	if err == nil && route.Ok() {
		if m := defaultRe.FindStringSubmatch(route.Stdout); m != nil {
			ic.Gateway = m[1]
		}
	}

	return ic, nil
}

// GetDNSServers parses /etc/resolv.conf nameserver lines.
func (c *Client) GetDNSServers(ctx context.Context) ([]string, error) {
	res, err := c.Run(ctx, "cat /etc/resolv.conf")
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("read resolv.conf exited %d: %s", res.ExitCode, res.Stderr)
	}
	var servers []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) >= 2 && fields[0] == "nameserver" {
			servers = append(servers, fields[1])
		}
	}
	return servers, nil
}

// GetHostname returns the OS hostname.
func (c *Client) GetHostname(ctx context.Context) (string, error) {
	res, err := c.Run(ctx, "hostname")
	if err != nil {
		return "", err
	}
	if !res.Ok() {
		return "", fmt.Errorf("hostname exited %d: %s", res.ExitCode, res.Stderr)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// NTPStatus is the timedatectl view of clock synchronization.
type NTPStatus struct {
	Enabled      bool
	Synchronized bool
	Servers      []string
}

// GetNTPStatus parses `timedatectl show` plus chrony/timesyncd sources.
func (c *Client) GetNTPStatus(ctx context.Context) (*NTPStatus, error) {
	res, err := c.Run(ctx, "timedatectl show --property=NTP --property=NTPSynchronized")
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("timedatectl exited %d: %s", res.ExitCode, res.Stderr)
	}

	st := &NTPStatus{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch k {
		case "NTP":
			st.Enabled = v == "yes"
		case "NTPSynchronized":
			st.Synchronized = v == "yes"
		}
	}

	// chronyc is the common case on the lab images; fall back to the
	// timesyncd status output when it is absent.
	src, err := c.Run(ctx, "chronyc -n sources 2>/dev/null || timedatectl timesync-status 2>/dev/null")
	if err == nil && src.Ok() {
		for _, line := range strings.Split(src.Stdout, "\n") {
			fields := strings.Fields(line)
			for _, f := range fields {
				if netutil.ValidIPv4(f) {
					st.Servers = append(st.Servers, f)
					break
				}
			}
		}
	}

	return st, nil
}

// ListFirewallRules returns the iptables INPUT chain, one rule per line.
func (c *Client) ListFirewallRules(ctx context.Context) ([]string, error) {
	res, err := c.Run(ctx, "sudo -n iptables -S INPUT")
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		return nil, fmt.Errorf("iptables -S exited %d: %s", res.ExitCode, res.Stderr)
	}
	var rules []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			rules = append(rules, line)
		}
	}
	return rules, nil
}

// AddDropRule blocks inbound traffic from source on the given interface.
func (c *Client) AddDropRule(ctx context.Context, iface, source string) error {
	return c.RunAll(ctx, fmt.Sprintf("sudo -n iptables -I INPUT -i %s -s %s -j DROP", iface, source))
}

// DeleteDropRule removes a rule added by AddDropRule. Deleting a rule that
// is already gone is not an error.
func (c *Client) DeleteDropRule(ctx context.Context, iface, source string) error {
	res, err := c.Run(ctx, fmt.Sprintf("sudo -n iptables -D INPUT -i %s -s %s -j DROP", iface, source))
	if err != nil {
		return err
	}
	if !res.Ok() && !strings.Contains(res.Stderr, "does a matching rule exist") {
		return fmt.Errorf("iptables -D exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// AddAddress assigns an extra address, in CIDR form, to an interface.
func (c *Client) AddAddress(ctx context.Context, iface, cidr string) error {
	return c.RunAll(ctx, fmt.Sprintf("sudo -n ip addr add %s dev %s", cidr, iface))
}

// DeleteAddress removes an address added by AddAddress. An address that is
// already gone is not an error.
func (c *Client) DeleteAddress(ctx context.Context, iface, cidr string) error {
	res, err := c.Run(ctx, fmt.Sprintf("sudo -n ip addr del %s dev %s", cidr, iface))
	if err != nil {
		return err
	}
	if !res.Ok() && !strings.Contains(res.Stderr, "Cannot assign") {
		return fmt.Errorf("ip addr del exited %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

// HasAddress reports whether the interface currently carries the address.
func (c *Client) HasAddress(ctx context.Context, iface, cidr string) (bool, error) {
	res, err := c.Run(ctx, fmt.Sprintf("ip addr show dev %s", iface))
	if err != nil {
		return false, err
	}
	if !res.Ok() {
		return false, fmt.Errorf("ip addr show exited %d: %s", res.ExitCode, res.Stderr)
	}
	ip, _, _ := strings.Cut(cidr, "/")
	return strings.Contains(res.Stdout, "inet "+ip+"/"), nil
}

// IPv6Disabled reads the per-interface disable_ipv6 sysctl.
func (c *Client) IPv6Disabled(ctx context.Context, iface string) (bool, error) {
	res, err := c.Run(ctx, fmt.Sprintf("sysctl -n net.ipv6.conf.%s.disable_ipv6", iface))
	if err != nil {
		return false, err
	}
	if !res.Ok() {
		return false, fmt.Errorf("sysctl read exited %d: %s", res.ExitCode, res.Stderr)
	}
	return strings.TrimSpace(res.Stdout) == "1", nil
}

// SetIPv6Disabled writes the per-interface disable_ipv6 sysctl.
func (c *Client) SetIPv6Disabled(ctx context.Context, iface string, disabled bool) error {
	v := 0
	if disabled {
		v = 1
	}
	return c.RunAll(ctx, fmt.Sprintf("sudo -n sysctl -w net.ipv6.conf.%s.disable_ipv6=%d", iface, v))
}

// FlushInputChain clears the iptables INPUT chain.
func (c *Client) FlushInputChain(ctx context.Context) error {
	return c.RunAll(ctx, "sudo -n iptables -F INPUT")
}

// SetInterfaceState brings an interface up or down.
func (c *Client) SetInterfaceState(ctx context.Context, iface string, up bool) error {
	state := "down"
	if up {
		state = "up"
	}
	return c.RunAll(ctx, fmt.Sprintf("sudo -n ip link set %s %s", iface, state))
}
