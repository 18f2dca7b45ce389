package testers

import (
	"context"
	"fmt"

	"github.com/iokuper/bmcqa/internal/harness"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "snmp",
		Description: "SNMP agent enablement and port reachability",
		Category:    harness.CategorySystem,
		New:         func(env *harness.Env) harness.Tester { return &snmpTester{base{"snmp", env}} },
	})
}

type snmpTester struct {
	base
}

func (t *snmpTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.SNMP
	var results []harness.Result

	mgrPath, err := env.Redfish.FirstManagerPath(ctx)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve manager")}
	}
	before, _, err := env.Redfish.GetNetworkProtocol(ctx, mgrPath)
	if err != nil {
		return []harness.Result{t.fail("capture", err, "could not read network protocol resource")}
	}
	wasEnabled := before.SNMP.ProtocolEnabled

	results = append(results, t.timed("enable", func() harness.Result {
		if wasEnabled {
			return t.pass("enable", "SNMP already enabled on port %d", before.SNMP.Port)
		}
		if err := env.Redfish.SetSNMPEnabled(ctx, mgrPath, true, cfg.Port); err != nil {
			return t.fail("enable", err, "could not enable SNMP")
		}
		after, _, err := env.Redfish.GetNetworkProtocol(ctx, mgrPath)
		if err != nil {
			return t.fail("enable", err, "could not re-read network protocol resource")
		}
		if !after.SNMP.ProtocolEnabled {
			return t.fail("enable", nil, "SNMP still reported disabled after enable")
		}
		return t.pass("enable", "SNMP enabled on port %d", after.SNMP.Port)
	}))
	if !results[len(results)-1].Success {
		return results
	}

	results = append(results, t.timed("agent-query", func() harness.Result {
		// UDP gives no connect signal, so ask the agent a real question
		// from the host OS.
		if cfg.Community == "" {
			return t.pass("agent-query", "no community configured, query skipped")
		}
		res, err := env.SSH.Run(ctx, "command -v snmpget")
		if err != nil || !res.Ok() {
			return t.pass("agent-query", "snmpget not available on the host, query skipped")
		}
		query, err := env.SSH.Run(ctx, snmpGetCmd(cfg.Community, env.Cfg.Network.Host, cfg.Port))
		if err != nil {
			return t.fail("agent-query", err, "could not run snmpget")
		}
		if !query.Ok() {
			return t.fail("agent-query", nil, "sysDescr query failed: %s", query.Stderr)
		}
		return t.pass("agent-query", "agent answered sysDescr")
	}))

	if !wasEnabled {
		results = append(results, t.timed("restore", func() harness.Result {
			if err := env.Redfish.SetSNMPEnabled(ctx, mgrPath, false, cfg.Port); err != nil {
				return t.fail("restore", err, "could not disable SNMP again")
			}
			return t.pass("restore", "SNMP returned to disabled")
		}))
	}

	return results
}

func snmpGetCmd(community, host string, port int) string {
	// sysDescr.0 is mandatory on every agent.
	return fmt.Sprintf("snmpget -v2c -c '%s' -t 5 %s:%d 1.3.6.1.2.1.1.1.0", community, host, port)
}
