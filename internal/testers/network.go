package testers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/channel"
	"github.com/iokuper/bmcqa/pkg/ipmi"
	"github.com/iokuper/bmcqa/pkg/netutil"
	"github.com/iokuper/bmcqa/pkg/roundtrip"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "network",
		Description: "Static IP and DHCP round trip driven over IPMI",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &networkTester{base{"network", env}} },
	})
	harness.Register(harness.Entry{
		Name:        "redfishnet",
		Description: "Static IP and DHCP round trip driven over Redfish",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &redfishNetTester{base{"redfishnet", env}} },
	})
	harness.Register(harness.Entry{
		Name:        "sshnet",
		Description: "In-band LAN view agrees with out-of-band, plus a host scratch-address round trip",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &sshNetTester{base{"sshnet", env}} },
	})
}

// sshBMCProbe reads the BMC LAN configuration in-band: ipmitool on the host
// OS over /dev/ipmi0, reached through SSH. This is the third independent
// view of the same settings.
func sshBMCProbe(env *harness.Env) roundtrip.ProbeFunc {
	return func(ctx context.Context) (channel.Snapshot, error) {
		res, err := env.SSH.Run(ctx, fmt.Sprintf("sudo -n ipmitool lan print %s", env.Cfg.Network.Channel))
		if err != nil {
			return nil, err
		}
		if !res.Ok() {
			return nil, fmt.Errorf("in-band lan print exited %d: %s", res.ExitCode, res.Stderr)
		}
		return ipmi.ParseLANPrint(res.Stdout).Snapshot(), nil
	}
}

// repoint moves the out-of-band clients to a new BMC address. Only called
// with addresses that already passed validation.
func repoint(env *harness.Env, ip string) {
	env.IPMI.SetHost(ip)
	env.Redfish.SetEndpoint(fmt.Sprintf("%s:%d", ip, env.Cfg.Redfish.Port))
}

// addressKeys are the settings compared across channels by the IP testers.
var addressKeys = []string{"IP Address", "Subnet Mask", "Default Gateway"}

type networkTester struct {
	base
}

func (t *networkTester) Run(ctx context.Context) []harness.Result {
	var results []harness.Result
	env := t.env
	cfg := env.Cfg.Network

	if cfg.StaticIP == "" {
		return []harness.Result{t.fail("configuration", nil, "network.static_ip is not configured")}
	}
	if !netutil.ValidIPv4(cfg.StaticIP) || !netutil.ValidNetmask(cfg.StaticMask) {
		return []harness.Result{t.fail("configuration", nil,
			"static target %s/%s is not a valid address", cfg.StaticIP, cfg.StaticMask)}
	}

	nicPath, err := redfishNICPath(ctx, env)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve Redfish NIC")}
	}

	originalHost := env.IPMI.Host()

	// Labs frequently run without a gateway; the channels still need a
	// value to write.
	fill := func(target channel.Snapshot) (ip, mask, gw string) {
		ip = target["IP Address"]
		mask = target["Subnet Mask"]
		gw = target["Default Gateway"]
		if mask == "" {
			mask = cfg.DefaultSubnetMask
		}
		if gw == "" {
			gw = "0.0.0.0"
		}
		return ip, mask, gw
	}
	ipmiApply := func(ctx context.Context, target channel.Snapshot) error {
		ip, mask, gw := fill(target)
		if err := env.IPMI.SetStaticIP(ctx, ip, mask, gw); err != nil {
			return err
		}
		// The BMC now answers on the new address; follow it.
		if netutil.ValidIPv4(ip) {
			repoint(env, ip)
		}
		return nil
	}
	redfishApply := func(ctx context.Context, target channel.Snapshot) error {
		ip, mask, gw := fill(target)
		if err := env.Redfish.SetStaticIPv4(ctx, nicPath, ip, mask, gw); err != nil {
			return err
		}
		if netutil.ValidIPv4(ip) {
			repoint(env, ip)
		}
		return nil
	}

	sshBinding := roundtrip.Binding{Channel: channel.SSH, Probe: sshBMCProbe(env)}
	if inBandAvailable(ctx, env) {
		// The in-band path rides the host OS network, so moving the BMC
		// address does not disturb it.
		sshBinding.Apply = func(ctx context.Context, target channel.Snapshot) error {
			ip, mask, gw := fill(target)
			return sshBMCSet(ctx, env,
				[]string{"ipsrc", "static"},
				[]string{"ipaddr", ip},
				[]string{"netmask", mask},
				[]string{"defgw", "ipaddr", gw})
		}
	}

	runner := newRunner(env, channel.IPMI, addressKeys, []roundtrip.Binding{
		{Channel: channel.IPMI, Probe: ipmiProbe(env), Apply: ipmiApply},
		{Channel: channel.Redfish, Probe: redfishProbe(env, nicPath), Apply: redfishApply},
		sshBinding,
	})

	target := channel.Snapshot{
		"IP Address":  cfg.StaticIP,
		"Subnet Mask": cfg.StaticMask,
	}
	// A lab without a gateway confirms against the address keys only; a
	// transitional gateway target could never be confirmed.
	if !channel.Transitional(cfg.StaticGateway) {
		target["Default Gateway"] = cfg.StaticGateway
	}
	var invalid []channel.Snapshot
	for _, ip := range cfg.InvalidIPs {
		invalid = append(invalid, channel.Snapshot{"IP Address": ip})
	}
	for _, mask := range cfg.InvalidMasks {
		invalid = append(invalid, channel.Snapshot{"IP Address": cfg.StaticIP, "Subnet Mask": mask})
	}
	for _, gw := range cfg.InvalidGateways {
		invalid = append(invalid, channel.Snapshot{
			"IP Address":      cfg.StaticIP,
			"Subnet Mask":     cfg.StaticMask,
			"Default Gateway": gw,
		})
	}

	results = append(results, t.timed("static-roundtrip", func() harness.Result {
		if err := runner.Run(ctx, target, invalid); err != nil {
			// Never leave the clients pointed at an address the restore
			// walked away from.
			repoint(env, originalHost)
			return t.fail("static-roundtrip", err, "static IP round trip failed")
		}
		return t.pass("static-roundtrip", "static %s applied on all channels and restored", cfg.StaticIP)
	}))

	results = append(results, t.timed("dhcp", func() harness.Result {
		return t.dhcpCheck(ctx)
	}))

	return results
}

// dhcpCheck flips the channel to DHCP, waits for a lease to surface, then
// restores the original source. The address itself is lease-dependent, so
// only the source field and lease presence are asserted.
func (t *networkTester) dhcpCheck(ctx context.Context) harness.Result {
	env := t.env

	before, err := env.IPMI.LANPrint(ctx)
	if err != nil {
		return t.fail("dhcp", err, "could not read LAN configuration")
	}
	if before.DHCPEnabled() {
		return t.pass("dhcp", "channel already on DHCP with lease %s", before.IPAddress)
	}

	if err := env.IPMI.SetDHCP(ctx); err != nil {
		return t.fail("dhcp", err, "could not enable DHCP")
	}

	restore := func() error {
		if err := env.IPMI.SetStaticIP(ctx, before.IPAddress, before.SubnetMask, before.DefaultGateway); err != nil {
			return err
		}
		repoint(env, before.IPAddress)
		return nil
	}

	// Wait for a committed lease: source reads DHCP and the address is a
	// settled value.
	deadline := env.Cfg.Network.VerifyTimeout
	leaseCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	var lease string
	for lease == "" {
		lan, err := env.IPMI.LANPrint(leaseCtx)
		if err == nil && lan.DHCPEnabled() && !channel.Transitional(lan.IPAddress) {
			lease = lan.IPAddress
			if lease != env.IPMI.Host() {
				repoint(env, lease)
			}
			break
		}
		select {
		case <-leaseCtx.Done():
			if rerr := restore(); rerr != nil {
				return t.fail("dhcp", rerr, "no DHCP lease within %s and restore failed", deadline)
			}
			return t.fail("dhcp", nil, "no DHCP lease within %s", deadline)
		case <-time.After(env.Cfg.Network.PollInterval):
		}
	}

	if err := restore(); err != nil {
		return t.fail("dhcp", err, "lease %s acquired but static restore failed", lease)
	}
	return t.pass("dhcp", "DHCP lease %s acquired, static configuration restored", lease)
}

type redfishNetTester struct {
	base
}

func (t *redfishNetTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.Network

	if cfg.StaticIP == "" {
		return []harness.Result{t.fail("configuration", nil, "network.static_ip is not configured")}
	}

	nicPath, err := redfishNICPath(ctx, env)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve Redfish NIC")}
	}

	originalHost := env.IPMI.Host()

	apply := func(ctx context.Context, target channel.Snapshot) error {
		ip := target["IP Address"]
		mask := target["Subnet Mask"]
		if mask == "" {
			mask = cfg.DefaultSubnetMask
		}
		gw := target["Default Gateway"]
		if gw == "" {
			gw = "0.0.0.0"
		}
		if err := env.Redfish.SetStaticIPv4(ctx, nicPath, ip, mask, gw); err != nil {
			return err
		}
		if netutil.ValidIPv4(ip) {
			repoint(env, ip)
		}
		return nil
	}

	runner := newRunner(env, channel.Redfish, addressKeys, []roundtrip.Binding{
		{Channel: channel.Redfish, Probe: redfishProbe(env, nicPath), Apply: apply},
		{Channel: channel.IPMI, Probe: ipmiProbe(env)},
		{Channel: channel.SSH, Probe: sshBMCProbe(env)},
	})

	target := channel.Snapshot{
		"IP Address":  cfg.StaticIP,
		"Subnet Mask": cfg.StaticMask,
	}
	if !channel.Transitional(cfg.StaticGateway) {
		target["Default Gateway"] = cfg.StaticGateway
	}
	var invalid []channel.Snapshot
	for _, ip := range cfg.InvalidIPs {
		invalid = append(invalid, channel.Snapshot{"IP Address": ip})
	}

	var results []harness.Result
	results = append(results, t.timed("static-roundtrip", func() harness.Result {
		if err := runner.Run(ctx, target, invalid); err != nil {
			repoint(env, originalHost)
			return t.fail("static-roundtrip", err, "Redfish-driven round trip failed")
		}
		return t.pass("static-roundtrip", "static %s applied via Redfish, visible on all channels, restored", cfg.StaticIP)
	}))

	results = append(results, t.timed("dhcp", func() harness.Result {
		return t.dhcpCheck(ctx, nicPath)
	}))

	return results
}

// dhcpCheck flips the NIC to DHCP through Redfish, waits for a committed
// lease, then restores the previous static addressing. Mirrors the
// IPMI-driven DHCP check but exercises the PATCH path.
func (t *redfishNetTester) dhcpCheck(ctx context.Context, nicPath string) harness.Result {
	env := t.env

	before, _, err := env.Redfish.GetEthernetInterface(ctx, nicPath)
	if err != nil {
		return t.fail("dhcp", err, "could not read NIC state")
	}
	if before.DHCPv4.DHCPEnabled {
		return t.pass("dhcp", "NIC already on DHCP with lease %s", before.ActiveIPv4())
	}
	staticIP := before.ActiveIPv4()
	staticMask := before.ActiveMask()
	staticGW := before.ActiveGateway()

	if err := env.Redfish.EnableDHCPv4(ctx, nicPath); err != nil {
		return t.fail("dhcp", err, "could not enable DHCP via Redfish")
	}

	restore := func() error {
		if err := env.Redfish.SetStaticIPv4(ctx, nicPath, staticIP, staticMask, staticGW); err != nil {
			return err
		}
		repoint(env, staticIP)
		return nil
	}

	deadline := env.Cfg.Network.VerifyTimeout
	leaseCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	var lease string
	for lease == "" {
		iface, _, err := env.Redfish.GetEthernetInterface(leaseCtx, nicPath)
		if err == nil && iface.DHCPv4.DHCPEnabled && !channel.Transitional(iface.ActiveIPv4()) {
			lease = iface.ActiveIPv4()
			if lease != env.IPMI.Host() {
				repoint(env, lease)
			}
			break
		}
		select {
		case <-leaseCtx.Done():
			if rerr := restore(); rerr != nil {
				return t.fail("dhcp", rerr, "no DHCP lease within %s and restore failed", deadline)
			}
			return t.fail("dhcp", nil, "no DHCP lease within %s", deadline)
		case <-time.After(env.Cfg.Network.PollInterval):
		}
	}

	if err := restore(); err != nil {
		return t.fail("dhcp", err, "lease %s acquired but static restore failed", lease)
	}
	return t.pass("dhcp", "DHCP lease %s acquired via Redfish, static configuration restored", lease)
}

type sshNetTester struct {
	base
}

// Run verifies the in-band view: the LAN configuration read through the
// host OS matches what IPMI-over-LAN and Redfish report. With ssh.test_ip
// configured it also round-trips a scratch address on the host interface;
// without it no changes are applied.
func (t *sshNetTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	results = append(results, t.timed("inband-access", func() harness.Result {
		ok, err := env.SSH.CheckSudo(ctx)
		if err != nil {
			return t.fail("inband-access", err, "SSH channel unreachable")
		}
		if !ok {
			return t.fail("inband-access", nil, "SSH user cannot run in-band ipmitool without a password")
		}
		return t.pass("inband-access", "in-band access available")
	}))
	if !results[0].Success {
		return results
	}

	results = append(results, t.timed("cross-verify", func() harness.Result {
		cc := channel.CrossChannel{}
		inband, err := sshBMCProbe(env)(ctx)
		if err != nil {
			return t.fail("cross-verify", err, "in-band lan print failed")
		}
		cc[channel.SSH] = inband

		oob, err := ipmiProbe(env)(ctx)
		if err != nil {
			return t.fail("cross-verify", err, "out-of-band lan print failed")
		}
		cc[channel.IPMI] = oob

		nicPath, err := redfishNICPath(ctx, env)
		if err == nil {
			if snap, perr := redfishProbe(env, nicPath)(ctx); perr == nil {
				cc[channel.Redfish] = snap
			}
		}

		keys := append([]string{"MAC Address", "VLAN ID"}, addressKeys...)
		if err := channel.Verify(cc, keys); err != nil {
			return t.fail("cross-verify", err, "channel views disagree")
		}
		return t.pass("cross-verify", "all channel views agree on %d settings", len(keys))
	}))

	if env.Cfg.SSH.TestIP != "" {
		results = append(results, t.timed("host-static", func() harness.Result {
			return t.hostStatic(ctx)
		}))
	}

	return results
}

// hostStatic adds the scratch address to the host interface, confirms the
// OS reports it, removes it and confirms it is gone. The primary address
// and routes are never touched.
func (t *sshNetTester) hostStatic(ctx context.Context) harness.Result {
	env := t.env
	iface := env.Cfg.SSH.Interface
	cidr := env.Cfg.SSH.TestIP

	ip, _, ok := strings.Cut(cidr, "/")
	if !ok || !netutil.ValidIPv4(ip) {
		return t.fail("host-static", nil, "ssh.test_ip %q is not an IPv4 CIDR", cidr)
	}

	if has, err := env.SSH.HasAddress(ctx, iface, cidr); err != nil {
		return t.fail("host-static", err, "could not inspect %s", iface)
	} else if has {
		return t.fail("host-static", nil, "%s already carries %s, refusing to touch it", iface, cidr)
	}

	added := false
	defer func() {
		if added {
			if err := env.SSH.DeleteAddress(ctx, iface, cidr); err != nil {
				t.log().Warn().Err(err).Str("address", cidr).Msg("Scratch address could not be removed")
			}
		}
	}()

	if err := env.SSH.AddAddress(ctx, iface, cidr); err != nil {
		return t.fail("host-static", err, "could not add %s to %s", cidr, iface)
	}
	added = true

	if has, err := env.SSH.HasAddress(ctx, iface, cidr); err != nil || !has {
		return t.fail("host-static", err, "address %s not visible after add", cidr)
	}

	if err := env.SSH.DeleteAddress(ctx, iface, cidr); err != nil {
		return t.fail("host-static", err, "could not remove %s from %s", cidr, iface)
	}
	added = false

	if has, err := env.SSH.HasAddress(ctx, iface, cidr); err != nil {
		return t.fail("host-static", err, "could not re-inspect %s", iface)
	} else if has {
		return t.fail("host-static", nil, "address %s survived removal", cidr)
	}
	return t.pass("host-static", "scratch address %s added and removed on %s", cidr, iface)
}
