package testers

import (
	"context"
	"fmt"
	"strings"

	"github.com/iokuper/bmcqa/internal/harness"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "ipversion",
		Description: "IPv4/IPv6 protocol support per channel plus a host IPv6 toggle",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &ipVersionTester{base{"ipversion", env}} },
	})
}

type ipVersionTester struct {
	base
}

func (t *ipVersionTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	results = append(results, t.timed("ipv4", func() harness.Result {
		lan, err := env.IPMI.LANPrint(ctx)
		if err != nil {
			return t.fail("ipv4", err, "could not read LAN configuration")
		}
		if lan.IPAddress == "" || lan.IPAddress == "0.0.0.0" {
			return t.fail("ipv4", nil, "channel has no IPv4 address")
		}
		source := "static"
		if lan.DHCPEnabled() {
			source = "dhcp"
		}
		return t.pass("ipv4", "IPv4 active: %s (%s)", lan.IPAddress, source)
	}))

	results = append(results, t.timed("redfish-dhcp4", func() harness.Result {
		nicPath, err := redfishNICPath(ctx, env)
		if err != nil {
			return t.fail("redfish-dhcp4", err, "could not resolve Redfish NIC")
		}
		iface, _, err := env.Redfish.GetEthernetInterface(ctx, nicPath)
		if err != nil {
			return t.fail("redfish-dhcp4", err, "could not read NIC resource")
		}
		addr := iface.ActiveIPv4()
		if addr == "" {
			return t.fail("redfish-dhcp4", nil, "NIC resource reports no IPv4 address")
		}
		return t.pass("redfish-dhcp4", "Redfish reports IPv4 %s (DHCPv4 enabled: %v)",
			addr, iface.DHCPv4.DHCPEnabled)
	}))

	results = append(results, t.timed("ipv6", func() harness.Result {
		res, err := env.SSH.Run(ctx, "ip -6 addr show scope global")
		if err != nil {
			return t.fail("ipv6", err, "could not inspect host IPv6 state")
		}
		if !res.Ok() || !strings.Contains(res.Stdout, "inet6") {
			// IPv6 being absent is a finding, not a failure: many BMC lab
			// segments run v4-only.
			return t.pass("ipv6", "no global IPv6 addresses on the host (IPv4-only segment)")
		}
		return t.pass("ipv6", "global IPv6 present on the host")
	}))

	results = append(results, t.timed("ipv6-toggle", func() harness.Result {
		return t.ipv6Toggle(ctx)
	}))

	return results
}

// ipv6Toggle disables IPv6 on the test interface via sysctl, confirms the
// stack dropped its addresses, then restores the previous setting. Skipped
// when the SSH session itself rides IPv6.
func (t *ipVersionTester) ipv6Toggle(ctx context.Context) harness.Result {
	env := t.env
	iface := env.Cfg.SSH.Interface

	if strings.Contains(env.Cfg.SSH.Host, ":") {
		return t.pass("ipv6-toggle", "SSH session rides IPv6, toggle skipped")
	}
	if !inBandAvailable(ctx, env) {
		return t.fail("ipv6-toggle", nil, "SSH user cannot write sysctls without a password")
	}

	wasDisabled, err := env.SSH.IPv6Disabled(ctx, iface)
	if err != nil {
		return t.fail("ipv6-toggle", err, "could not read the disable_ipv6 sysctl for %s", iface)
	}
	if wasDisabled {
		return t.pass("ipv6-toggle", "IPv6 already disabled on %s, toggle skipped", iface)
	}

	restored := false
	defer func() {
		if !restored {
			if err := env.SSH.SetIPv6Disabled(ctx, iface, false); err != nil {
				t.log().Error().Err(err).Str("interface", iface).Msg("IPv6 left disabled, manual recovery required")
			}
		}
	}()

	if err := env.SSH.SetIPv6Disabled(ctx, iface, true); err != nil {
		return t.fail("ipv6-toggle", err, "could not disable IPv6 on %s", iface)
	}
	res, err := env.SSH.Run(ctx, fmt.Sprintf("ip -6 addr show dev %s scope global", iface))
	if err != nil {
		return t.fail("ipv6-toggle", err, "could not inspect %s after disable", iface)
	}
	if strings.Contains(res.Stdout, "inet6") {
		return t.fail("ipv6-toggle", nil, "%s still carries global IPv6 addresses with the stack disabled", iface)
	}

	if err := env.SSH.SetIPv6Disabled(ctx, iface, false); err != nil {
		return t.fail("ipv6-toggle", err, "could not re-enable IPv6 on %s", iface)
	}
	restored = true
	return t.pass("ipv6-toggle", "IPv6 disabled and re-enabled on %s", iface)
}
