package testers

import (
	"context"
	"fmt"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/channel"
	"github.com/iokuper/bmcqa/pkg/netutil"
	"github.com/iokuper/bmcqa/pkg/roundtrip"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "dns",
		Description: "DNS server round trip with optional resolution check",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &dnsTester{base{"dns", env}} },
	})
}

type dnsTester struct {
	base
}

var dnsKeys = []string{"Primary DNS", "Secondary DNS"}

func (t *dnsTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.DNS
	var results []harness.Result

	if cfg.Primary == "" {
		return []harness.Result{t.fail("configuration", nil, "dns.primary is not configured")}
	}
	if !netutil.ValidIPv4(cfg.Primary) || (cfg.Secondary != "" && !netutil.ValidIPv4(cfg.Secondary)) {
		return []harness.Result{t.fail("configuration", nil,
			"dns servers %s/%s are not valid addresses", cfg.Primary, cfg.Secondary)}
	}

	nicPath, err := redfishNICPath(ctx, env)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve Redfish NIC")}
	}

	ipmiApply := func(ctx context.Context, target channel.Snapshot) error {
		return env.IPMI.SetDNS(ctx, target["Primary DNS"], target["Secondary DNS"])
	}
	redfishApply := func(ctx context.Context, target channel.Snapshot) error {
		servers := []string{target["Primary DNS"]}
		if s := target["Secondary DNS"]; s != "" {
			servers = append(servers, s)
		}
		return env.Redfish.SetNameServers(ctx, nicPath, servers)
	}

	bindings := []roundtrip.Binding{
		{Channel: channel.IPMI, Probe: ipmiProbe(env), Apply: ipmiApply},
		{Channel: channel.Redfish, Probe: redfishProbe(env, nicPath), Apply: redfishApply},
	}
	if inBandAvailable(ctx, env) {
		sshApply := func(ctx context.Context, target channel.Snapshot) error {
			params := [][]string{{"dns1", target["Primary DNS"]}}
			if s := target["Secondary DNS"]; s != "" {
				params = append(params, []string{"dns2", s})
			}
			return sshBMCSet(ctx, env, params...)
		}
		bindings = append(bindings, roundtrip.Binding{Channel: channel.SSH, Probe: sshBMCProbe(env), Apply: sshApply})
	}

	runner := newRunner(env, channel.IPMI, dnsKeys, bindings)

	target := channel.Snapshot{"Primary DNS": cfg.Primary}
	// An unset secondary cannot be confirmed; it stays out of the target.
	if !channel.Transitional(cfg.Secondary) {
		target["Secondary DNS"] = cfg.Secondary
	}
	var invalid []channel.Snapshot
	for _, s := range cfg.InvalidServers {
		invalid = append(invalid, channel.Snapshot{"Primary DNS": s})
	}

	results = append(results, t.timed("roundtrip", func() harness.Result {
		if err := runner.Run(ctx, target, invalid); err != nil {
			return t.fail("roundtrip", err, "DNS round trip failed")
		}
		return t.pass("roundtrip", "DNS %s/%s applied via %d channels and restored", cfg.Primary, cfg.Secondary, len(bindings))
	}))

	results = append(results, t.timed("host-view", func() harness.Result {
		return t.hostView(ctx)
	}))

	if cfg.VerifyResolution && len(cfg.TestDomains) > 0 {
		results = append(results, t.timed("resolution", func() harness.Result {
			return t.resolutionCheck(ctx)
		}))
	}

	return results
}

// hostView compares the host's resolv.conf against the resolver settings
// the BMC reports. Keys one side does not carry are skipped; a settled
// disagreement between the two views fails.
func (t *dnsTester) hostView(ctx context.Context) harness.Result {
	env := t.env

	servers, err := env.SSH.GetDNSServers(ctx)
	if err != nil {
		return t.fail("host-view", err, "could not read resolv.conf on the host")
	}
	hostSnap := channel.Snapshot{}
	if len(servers) > 0 {
		hostSnap["Primary DNS"] = servers[0]
	}
	if len(servers) > 1 {
		hostSnap["Secondary DNS"] = servers[1]
	}
	if len(hostSnap) == 0 {
		return t.fail("host-view", nil, "host resolv.conf lists no nameservers")
	}

	bmcSnap, err := ipmiProbe(env)(ctx)
	if err != nil {
		return t.fail("host-view", err, "could not read BMC resolver settings")
	}

	cc := channel.CrossChannel{channel.SSH: hostSnap, channel.IPMI: bmcSnap}
	if err := channel.Verify(cc, dnsKeys); err != nil {
		return t.fail("host-view", err, "host and BMC resolver settings disagree")
	}
	return t.pass("host-view", "host resolv.conf agrees with the BMC (%d servers)", len(servers))
}

// resolutionCheck asks the configured servers directly (dig @server) from
// the host OS, so a broken BMC resolver cannot hide behind the host's own
// resolv.conf.
func (t *dnsTester) resolutionCheck(ctx context.Context) harness.Result {
	cfg := t.env.Cfg.DNS
	servers := []string{cfg.Primary}
	if cfg.CheckBothServers && cfg.Secondary != "" {
		servers = append(servers, cfg.Secondary)
	}

	for _, server := range servers {
		for _, domain := range cfg.TestDomains {
			res, err := t.env.SSH.Run(ctx, fmt.Sprintf("dig +short +time=5 @%s %s", server, domain))
			if err != nil {
				return t.fail("resolution", err, "could not run dig on host OS")
			}
			if !res.Ok() || res.Stdout == "" {
				return t.fail("resolution", nil, "%s did not resolve %s", server, domain)
			}
		}
	}
	return t.pass("resolution", "%d domains resolved via %d servers", len(cfg.TestDomains), len(servers))
}
