package testers

import (
	"context"
	"strconv"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/channel"
	"github.com/iokuper/bmcqa/pkg/netutil"
	"github.com/iokuper/bmcqa/pkg/roundtrip"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "vlan",
		Description: "802.1q VLAN tag round trip across IPMI and Redfish",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &vlanTester{base{"vlan", env}} },
	})
}

type vlanTester struct {
	base
}

func (t *vlanTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.VLAN
	var results []harness.Result

	if cfg.ID == 0 {
		return []harness.Result{t.fail("configuration", nil, "vlan.id is not configured")}
	}
	if err := netutil.ValidateVLANID(cfg.ID); err != nil {
		return []harness.Result{t.fail("configuration", err, "vlan.id %d is itself invalid", cfg.ID)}
	}

	nicPath, err := redfishNICPath(ctx, env)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve Redfish NIC")}
	}

	parseID := func(target channel.Snapshot) (int, error) {
		id, err := strconv.Atoi(target["VLAN ID"])
		if err != nil {
			return 0, err
		}
		if id != 0 {
			if verr := netutil.ValidateVLANID(id); verr != nil {
				return 0, verr
			}
		}
		return id, nil
	}
	ipmiApply := func(ctx context.Context, target channel.Snapshot) error {
		id, err := parseID(target)
		if err != nil {
			return err
		}
		return env.IPMI.SetVLAN(ctx, id, cfg.Priority)
	}
	redfishApply := func(ctx context.Context, target channel.Snapshot) error {
		id, err := parseID(target)
		if err != nil {
			return err
		}
		return env.Redfish.SetVLAN(ctx, nicPath, id != 0, id)
	}

	bindings := []roundtrip.Binding{
		{Channel: channel.IPMI, Probe: ipmiProbe(env), Apply: ipmiApply},
		{Channel: channel.Redfish, Probe: redfishProbe(env, nicPath), Apply: redfishApply},
	}
	if inBandAvailable(ctx, env) {
		sshApply := func(ctx context.Context, target channel.Snapshot) error {
			id, err := parseID(target)
			if err != nil {
				return err
			}
			value := strconv.Itoa(id)
			if id == 0 {
				value = "off"
			}
			return sshBMCSet(ctx, env, []string{"vlan", "id", value})
		}
		bindings = append(bindings, roundtrip.Binding{Channel: channel.SSH, Probe: sshBMCProbe(env), Apply: sshApply})
	}

	// Tagging the channel strands any untagged switchport, so the confirm
	// window needs the switch side prepared. That is an environment
	// requirement, not something the tester can detect.
	runner := newRunner(env, channel.IPMI, []string{"VLAN ID"}, bindings)

	target := channel.Snapshot{"VLAN ID": strconv.Itoa(cfg.ID)}
	var invalid []channel.Snapshot
	for _, id := range cfg.InvalidIDs {
		invalid = append(invalid, channel.Snapshot{"VLAN ID": strconv.Itoa(id)})
	}

	results = append(results, t.timed("roundtrip", func() harness.Result {
		if err := runner.Run(ctx, target, invalid); err != nil {
			return t.fail("roundtrip", err, "VLAN round trip failed")
		}
		return t.pass("roundtrip", "VLAN %d applied via %d channels and restored", cfg.ID, len(bindings))
	}))

	return results
}
