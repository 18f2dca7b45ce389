package testers

import (
	"context"
	"strings"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/channel"
	"github.com/iokuper/bmcqa/pkg/netutil"
	"github.com/iokuper/bmcqa/pkg/roundtrip"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "mac",
		Description: "MAC address validity, cross-channel agreement, optional reprogram",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &macTester{base{"mac", env}} },
	})
}

type macTester struct {
	base
}

func (t *macTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.MAC
	var results []harness.Result

	opts := netutil.MACOptions{
		AllowBroadcast: cfg.AllowBroadcast,
		AllowMulticast: cfg.AllowMulticast,
	}

	results = append(results, t.timed("validity", func() harness.Result {
		lan, err := env.IPMI.LANPrint(ctx)
		if err != nil {
			return t.fail("validity", err, "could not read LAN configuration")
		}
		if err := netutil.ValidateMAC(lan.MACAddress, opts); err != nil {
			return t.fail("validity", err, "programmed MAC %s is not acceptable", lan.MACAddress)
		}
		return t.pass("validity", "MAC %s is well formed", strings.ToLower(lan.MACAddress))
	}))

	results = append(results, t.timed("agreement", func() harness.Result {
		cc := channel.CrossChannel{}
		if snap, err := ipmiProbe(env)(ctx); err == nil {
			cc[channel.IPMI] = snap
		} else {
			return t.fail("agreement", err, "IPMI probe failed")
		}
		if nicPath, err := redfishNICPath(ctx, env); err == nil {
			if snap, perr := redfishProbe(env, nicPath)(ctx); perr == nil {
				cc[channel.Redfish] = snap
			}
		}
		if snap, err := sshBMCProbe(env)(ctx); err == nil {
			cc[channel.SSH] = snap
		}
		if len(cc) < 2 {
			return t.fail("agreement", nil, "fewer than two channels answered")
		}
		if err := channel.Verify(cc, []string{"MAC Address"}); err != nil {
			return t.fail("agreement", err, "channels disagree on the MAC address")
		}
		return t.pass("agreement", "%d channels agree on the MAC address", len(cc))
	}))

	// Reprogramming the MAC is destructive on some boards, so the round
	// trip only runs when a test value is explicitly configured.
	if cfg.TestMAC != "" {
		results = append(results, t.timed("reprogram", func() harness.Result {
			return t.reprogram(ctx, opts)
		}))
	}

	return results
}

func (t *macTester) reprogram(ctx context.Context, opts netutil.MACOptions) harness.Result {
	env := t.env
	cfg := env.Cfg.MAC

	if err := netutil.ValidateMAC(cfg.TestMAC, opts); err != nil {
		return t.fail("reprogram", err, "mac.test_mac %q is itself invalid", cfg.TestMAC)
	}

	ipmiApply := func(ctx context.Context, target channel.Snapshot) error {
		mac := target["MAC Address"]
		if err := netutil.ValidateMAC(mac, opts); err != nil {
			return err
		}
		return env.IPMI.SetMAC(ctx, mac)
	}

	bindings := []roundtrip.Binding{
		{Channel: channel.IPMI, Probe: ipmiProbe(env), Apply: ipmiApply},
	}
	if nicPath, err := redfishNICPath(ctx, env); err == nil {
		redfishApply := func(ctx context.Context, target channel.Snapshot) error {
			mac := target["MAC Address"]
			if err := netutil.ValidateMAC(mac, opts); err != nil {
				return err
			}
			return env.Redfish.SetMACAddress(ctx, nicPath, mac)
		}
		bindings = append(bindings, roundtrip.Binding{Channel: channel.Redfish, Probe: redfishProbe(env, nicPath), Apply: redfishApply})
	}
	if inBandAvailable(ctx, env) {
		bindings = append(bindings, roundtrip.Binding{Channel: channel.SSH, Probe: sshBMCProbe(env)})
	}

	runner := newRunner(env, channel.IPMI, []string{"MAC Address"}, bindings)

	target := channel.Snapshot{"MAC Address": strings.ToLower(cfg.TestMAC)}
	var invalid []channel.Snapshot
	for _, m := range cfg.InvalidMACs {
		invalid = append(invalid, channel.Snapshot{"MAC Address": m})
	}

	if err := runner.Run(ctx, target, invalid); err != nil {
		return t.fail("reprogram", err, "MAC round trip failed")
	}
	return t.pass("reprogram", "MAC %s applied and original restored", cfg.TestMAC)
}
