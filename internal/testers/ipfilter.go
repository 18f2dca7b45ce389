package testers

import (
	"context"
	"strings"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/netutil"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "ipfilter",
		Description: "Host firewall drop rules install, list and remove cleanly",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &ipFilterTester{base{"ipfilter", env}} },
	})
}

type ipFilterTester struct {
	base
}

func (t *ipFilterTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.IPFilter
	var results []harness.Result

	if len(cfg.BlockedIPs) == 0 {
		return []harness.Result{t.fail("configuration", nil, "ipfilter.blocked_ips is not configured")}
	}
	for _, ip := range cfg.BlockedIPs {
		if !netutil.ValidIPv4(ip) {
			return []harness.Result{t.fail("configuration", nil, "blocked ip %q is not a valid address", ip)}
		}
	}
	// The harness must never firewall itself out of the SSH channel.
	for _, blocked := range cfg.BlockedIPs {
		for _, allowed := range cfg.AllowedIPs {
			if blocked == allowed {
				return []harness.Result{t.fail("configuration", nil,
					"%s appears in both blocked and allowed lists", blocked)}
			}
		}
	}

	results = append(results, t.timed("sudo", func() harness.Result {
		ok, err := env.SSH.CheckSudo(ctx)
		if err != nil {
			return t.fail("sudo", err, "SSH channel unreachable")
		}
		if !ok {
			return t.fail("sudo", nil, "SSH user cannot manage the firewall without a password")
		}
		return t.pass("sudo", "firewall management access available")
	}))
	if !results[0].Success {
		return results
	}

	iface := env.Cfg.SSH.Interface

	if cfg.FlushOnStart {
		results = append(results, t.timed("flush", func() harness.Result {
			if err := env.SSH.FlushInputChain(ctx); err != nil {
				return t.fail("flush", err, "could not flush the INPUT chain")
			}
			return t.pass("flush", "INPUT chain flushed before installing rules")
		}))
		if !results[len(results)-1].Success {
			return results
		}
	}

	installed := make([]string, 0, len(cfg.BlockedIPs))

	// Remove every rule this run added, in reverse order, whatever happened.
	defer func() {
		for i := len(installed) - 1; i >= 0; i-- {
			if err := env.SSH.DeleteDropRule(ctx, iface, installed[i]); err != nil {
				t.log().Warn().Err(err).Str("source", installed[i]).Msg("Leftover drop rule could not be removed")
			}
		}
	}()

	results = append(results, t.timed("install", func() harness.Result {
		for _, ip := range cfg.BlockedIPs {
			if err := env.SSH.AddDropRule(ctx, iface, ip); err != nil {
				return t.fail("install", err, "could not install drop rule for %s", ip)
			}
			installed = append(installed, ip)
		}
		return t.pass("install", "%d drop rules installed on %s", len(installed), iface)
	}))
	if !results[len(results)-1].Success {
		return results
	}

	results = append(results, t.timed("listed", func() harness.Result {
		rules, err := env.SSH.ListFirewallRules(ctx)
		if err != nil {
			return t.fail("listed", err, "could not list firewall rules")
		}
		for _, ip := range cfg.BlockedIPs {
			if !rulePresent(rules, ip) {
				return t.fail("listed", nil, "drop rule for %s not visible in the INPUT chain", ip)
			}
		}
		return t.pass("listed", "all drop rules visible in the INPUT chain")
	}))

	if len(cfg.ProbePorts) > 0 {
		results = append(results, t.timed("port-probe", func() harness.Result {
			// The drop rules name specific sources; traffic from this
			// harness must still reach the probed services.
			for _, port := range cfg.ProbePorts {
				err := netutil.WaitForPort(ctx, env.Cfg.Network.Host, port,
					env.Cfg.Network.CommandTimeout, env.Cfg.Network.PollInterval)
				if err != nil {
					return t.fail("port-probe", err, "port %d unreachable with filters installed", port)
				}
			}
			return t.pass("port-probe", "%d ports still answering with filters installed", len(cfg.ProbePorts))
		}))
	}

	results = append(results, t.timed("management-alive", func() harness.Result {
		// The rules must not have cut off the management plane.
		if err := netutil.CheckManagementAccess(ctx, env.Cfg.Network.Host, env.Cfg.Network.CommandTimeout); err != nil {
			return t.fail("management-alive", err, "Redfish unreachable with filters installed")
		}
		if _, err := env.IPMI.LANPrint(ctx); err != nil {
			return t.fail("management-alive", err, "IPMI unreachable with filters installed")
		}
		return t.pass("management-alive", "management plane still reachable with filters installed")
	}))

	results = append(results, t.timed("remove", func() harness.Result {
		for i := len(installed) - 1; i >= 0; i-- {
			if err := env.SSH.DeleteDropRule(ctx, iface, installed[i]); err != nil {
				return t.fail("remove", err, "could not remove drop rule for %s", installed[i])
			}
		}
		removed := installed
		installed = installed[:0]

		rules, err := env.SSH.ListFirewallRules(ctx)
		if err != nil {
			return t.fail("remove", err, "could not re-list firewall rules")
		}
		for _, ip := range removed {
			if rulePresent(rules, ip) {
				return t.fail("remove", nil, "drop rule for %s survived removal", ip)
			}
		}
		return t.pass("remove", "all drop rules removed")
	}))

	return results
}

// rulePresent looks for a DROP rule naming the source. iptables -S prints
// plain addresses with a /32 suffix.
func rulePresent(rules []string, source string) bool {
	for _, r := range rules {
		if strings.Contains(r, source+"/32") && strings.Contains(r, "DROP") {
			return true
		}
	}
	return false
}
