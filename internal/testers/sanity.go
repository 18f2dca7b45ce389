package testers

import (
	"context"
	"fmt"

	"github.com/iokuper/bmcqa/internal/harness"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "ipmi",
		Description: "IPMI channel sanity: identity, privilege, SEL and sensors readable",
		Category:    harness.CategorySystem,
		New:         func(env *harness.Env) harness.Tester { return &ipmiSanityTester{base{"ipmi", env}} },
	})
	harness.Register(harness.Entry{
		Name:        "redfish",
		Description: "Redfish channel sanity: service root, sessions, manager NIC inventory",
		Category:    harness.CategorySystem,
		New:         func(env *harness.Env) harness.Tester { return &redfishSanityTester{base{"redfish", env}} },
	})
}

type ipmiSanityTester struct {
	base
}

func (t *ipmiSanityTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	results = append(results, t.timed("identity", func() harness.Result {
		info, err := env.IPMI.MCInfo(ctx)
		if err != nil {
			return t.fail("identity", err, "mc info failed")
		}
		fw := info["Firmware Revision"]
		mfg := info["Manufacturer Name"]
		if fw == "" && mfg == "" {
			return t.fail("identity", nil, "mc info returned no identification fields")
		}
		return t.pass("identity", "manufacturer %q, firmware %q", mfg, fw)
	}))

	results = append(results, t.timed("native-session", func() harness.Result {
		info, err := env.Native.DeviceInfo(ctx)
		if err != nil {
			return t.fail("native-session", err, "native RMCP+ session failed")
		}
		return t.pass("native-session", "native session established, firmware %s", info["Firmware Revision"])
	}))

	results = append(results, t.timed("privilege", func() harness.Result {
		ok, err := env.IPMI.CheckPrivilege(ctx, "ADMINISTRATOR")
		if err != nil {
			return t.fail("privilege", err, "channel getaccess failed")
		}
		if !ok {
			return t.fail("privilege", nil, "user %s lacks ADMINISTRATOR on channel %s",
				env.Cfg.IPMI.Username, env.Cfg.Network.Channel)
		}
		return t.pass("privilege", "ADMINISTRATOR privilege confirmed")
	}))

	results = append(results, t.timed("sel", func() harness.Result {
		entries, err := env.IPMI.SELList(ctx)
		if err != nil {
			return t.fail("sel", err, "SEL read failed")
		}
		return t.pass("sel", "SEL readable, %d entries", len(entries))
	}))

	results = append(results, t.timed("sensors", func() harness.Result {
		sensors, err := env.IPMI.SensorList(ctx)
		if err != nil {
			return t.fail("sensors", err, "sensor list failed")
		}
		if len(sensors) == 0 {
			return t.fail("sensors", nil, "sensor list is empty")
		}
		return t.pass("sensors", "%d sensors reported", len(sensors))
	}))

	return results
}

type redfishSanityTester struct {
	base
}

func (t *redfishSanityTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	results = append(results, t.timed("service-root", func() harness.Result {
		root, err := env.Redfish.GetServiceRoot(ctx)
		if err != nil {
			return t.fail("service-root", err, "service root unreachable")
		}
		return t.pass("service-root", "Redfish %s (%s)", root.RedfishVersion, root.Name)
	}))
	if !results[0].Success {
		return results
	}

	results = append(results, t.timed("session", func() harness.Result {
		session, err := env.Redfish.CreateSession(ctx)
		if err != nil {
			return t.fail("session", err, "session create failed")
		}
		if session.Token == "" {
			return t.fail("session", nil, "session created without an X-Auth-Token")
		}
		if err := env.Redfish.DeleteSession(ctx, session); err != nil {
			return t.fail("session", err, "session delete failed, token left active")
		}
		return t.pass("session", "token session created and deleted")
	}))

	results = append(results, t.timed("manager-nics", func() harness.Result {
		mgrPath, err := env.Redfish.FirstManagerPath(ctx)
		if err != nil {
			return t.fail("manager-nics", err, "no manager found")
		}
		paths, err := env.Redfish.ListEthernetInterfacePaths(ctx, mgrPath)
		if err != nil {
			return t.fail("manager-nics", err, "NIC collection walk failed")
		}
		if len(paths) == 0 {
			return t.fail("manager-nics", nil, "manager exposes no ethernet interfaces")
		}
		return t.pass("manager-nics", "%d manager NICs: %s", len(paths), fmt.Sprint(paths))
	}))

	results = append(results, t.timed("system", func() harness.Result {
		sys, err := env.Redfish.GetSystemInfo(ctx)
		if err != nil {
			return t.fail("system", err, "computer system unreachable")
		}
		return t.pass("system", "system %q, power %s", sys.Name, sys.PowerState)
	}))

	return results
}
