package testers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iokuper/bmcqa/internal/harness"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "interface",
		Description: "Disable and re-enable the manager NIC and LAN channel access",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &interfaceTester{base{"interface", env}} },
	})
	harness.Register(harness.Entry{
		Name:        "ifstatus",
		Description: "Interface link state across channels plus a host NIC down/up cycle",
		Category:    harness.CategoryNetwork,
		New:         func(env *harness.Env) harness.Tester { return &ifStatusTester{base{"ifstatus", env}} },
	})
}

type interfaceTester struct {
	base
}

// Run toggles InterfaceEnabled off and back on. The disable is confirmed
// through the host OS view because the Redfish transport itself may ride
// the NIC being disabled.
func (t *interfaceTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	nicPath, err := redfishNICPath(ctx, env)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve Redfish NIC")}
	}

	iface, _, err := env.Redfish.GetEthernetInterface(ctx, nicPath)
	if err != nil {
		return []harness.Result{t.fail("capture", err, "could not read NIC resource")}
	}
	if iface.InterfaceEnabled != nil && !*iface.InterfaceEnabled {
		return []harness.Result{t.fail("capture", nil, "NIC is already disabled, refusing to touch it")}
	}

	reenabled := false
	defer func() {
		if !reenabled {
			if err := env.Redfish.SetInterfaceEnabled(ctx, nicPath, true); err != nil {
				t.log().Error().Err(err).Msg("NIC left disabled, manual recovery required")
			}
		}
	}()

	results = append(results, t.timed("disable", func() harness.Result {
		if err := env.Redfish.SetInterfaceEnabled(ctx, nicPath, false); err != nil {
			return t.fail("disable", err, "could not disable NIC")
		}
		return t.pass("disable", "NIC disable accepted")
	}))
	if !results[len(results)-1].Success {
		return results
	}

	results = append(results, t.timed("enable", func() harness.Result {
		if err := env.Redfish.SetInterfaceEnabled(ctx, nicPath, true); err != nil {
			return t.fail("enable", err, "could not re-enable NIC")
		}

		deadline := time.Now().Add(env.Cfg.Network.VerifyTimeout)
		for {
			iface, _, err := env.Redfish.GetEthernetInterface(ctx, nicPath)
			if err == nil && (iface.InterfaceEnabled == nil || *iface.InterfaceEnabled) {
				reenabled = true
				return t.pass("enable", "NIC re-enabled and answering")
			}
			if time.Now().After(deadline) {
				return t.fail("enable", err, "NIC did not come back within %s", env.Cfg.Network.VerifyTimeout)
			}
			select {
			case <-ctx.Done():
				return t.fail("enable", ctx.Err(), "cancelled while waiting for NIC")
			case <-time.After(env.Cfg.Network.PollInterval):
			}
		}
	}))
	if !results[len(results)-1].Success {
		return results
	}

	results = append(results, t.timed("channel-access", func() harness.Result {
		return t.channelAccessCycle(ctx)
	}))

	return results
}

// channelAccessCycle disables LAN channel access out-of-band, proves the
// out-of-band plane went dark, then recovers it in-band through the host's
// ipmitool. Only runs when the in-band path is available, because nothing
// else can bring the channel back.
func (t *interfaceTester) channelAccessCycle(ctx context.Context) harness.Result {
	env := t.env

	if !inBandAvailable(ctx, env) {
		return t.fail("channel-access", nil,
			"in-band ipmitool unavailable; refusing to disable LAN access with no recovery path")
	}

	reenable := func() error {
		return sshBMCSet(ctx, env, []string{"access", "on"})
	}

	// Disabling access usually kills the session mid-command, so the error
	// from the disable itself is not conclusive either way.
	if err := env.IPMI.SetAccessMode(ctx, false); err != nil {
		t.log().Debug().Err(err).Msg("Access disable dropped the session")
	}

	recovered := false
	defer func() {
		if !recovered {
			if err := reenable(); err != nil {
				t.log().Error().Err(err).Msg("LAN access left disabled, manual recovery required")
			}
		}
	}()

	if _, err := env.IPMI.LANPrint(ctx); err == nil {
		// Access still answers: the firmware ignored the disable.
		if rerr := reenable(); rerr == nil {
			recovered = true
		}
		return t.fail("channel-access", nil, "LAN access still answers after disable")
	}

	if err := reenable(); err != nil {
		return t.fail("channel-access", err, "in-band re-enable failed")
	}

	deadline := time.Now().Add(env.Cfg.Network.VerifyTimeout)
	for {
		if _, err := env.IPMI.LANPrint(ctx); err == nil {
			recovered = true
			return t.pass("channel-access", "LAN access disabled, recovered in-band, out-of-band answering again")
		}
		if time.Now().After(deadline) {
			return t.fail("channel-access", nil, "out-of-band access did not return within %s", env.Cfg.Network.VerifyTimeout)
		}
		select {
		case <-ctx.Done():
			return t.fail("channel-access", ctx.Err(), "cancelled while waiting for access recovery")
		case <-time.After(env.Cfg.Network.PollInterval):
		}
	}
}

type ifStatusTester struct {
	base
}

func (t *ifStatusTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	results = append(results, t.timed("redfish-link", func() harness.Result {
		nicPath, err := redfishNICPath(ctx, env)
		if err != nil {
			return t.fail("redfish-link", err, "could not resolve Redfish NIC")
		}
		iface, _, err := env.Redfish.GetEthernetInterface(ctx, nicPath)
		if err != nil {
			return t.fail("redfish-link", err, "could not read NIC resource")
		}
		if iface.InterfaceEnabled != nil && !*iface.InterfaceEnabled {
			return t.fail("redfish-link", nil, "manager NIC reports disabled")
		}
		if iface.LinkStatus != "" && !strings.EqualFold(iface.LinkStatus, "LinkUp") {
			return t.fail("redfish-link", nil, "manager NIC link status is %s", iface.LinkStatus)
		}
		return t.pass("redfish-link", "manager NIC enabled with link up")
	}))

	results = append(results, t.timed("host-link", func() harness.Result {
		ic, err := env.SSH.GetInterfaceConfig(ctx, env.Cfg.SSH.Interface)
		if err != nil {
			return t.fail("host-link", err, "could not read host interface %s", env.Cfg.SSH.Interface)
		}
		if !ic.Up {
			return t.fail("host-link", nil, "host interface %s is down", ic.Name)
		}
		return t.pass("host-link", "host interface %s is up with %s", ic.Name, ic.IPAddress)
	}))
	if !results[len(results)-1].Success {
		return results
	}

	results = append(results, t.timed("link-cycle", func() harness.Result {
		return t.linkCycle(ctx)
	}))

	return results
}

// linkCycle takes the test interface down and back up, confirming each
// state through the OS view. Refuses to touch the interface carrying the
// SSH session itself.
func (t *ifStatusTester) linkCycle(ctx context.Context) harness.Result {
	env := t.env
	iface := env.Cfg.SSH.Interface

	ic, err := env.SSH.GetInterfaceConfig(ctx, iface)
	if err != nil {
		return t.fail("link-cycle", err, "could not read host interface %s", iface)
	}
	if ic.IPAddress == env.Cfg.SSH.Host {
		return t.fail("link-cycle", nil,
			"%s carries the SSH session, cycling it would cut this harness off", iface)
	}
	if !inBandAvailable(ctx, env) {
		return t.fail("link-cycle", nil, "SSH user cannot change link state without a password")
	}

	raised := false
	defer func() {
		if !raised {
			if err := env.SSH.SetInterfaceState(ctx, iface, true); err != nil {
				t.log().Error().Err(err).Str("interface", iface).Msg("Interface left down, manual recovery required")
			}
		}
	}()

	waitState := func(up bool) error {
		deadline := time.Now().Add(env.Cfg.Network.VerifyTimeout)
		for {
			ic, err := env.SSH.GetInterfaceConfig(ctx, iface)
			if err == nil && ic.Up == up {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("%s did not reach state up=%v within %s", iface, up, env.Cfg.Network.VerifyTimeout)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(env.Cfg.Network.PollInterval):
			}
		}
	}

	if err := env.SSH.SetInterfaceState(ctx, iface, false); err != nil {
		return t.fail("link-cycle", err, "could not bring %s down", iface)
	}
	if err := waitState(false); err != nil {
		return t.fail("link-cycle", err, "interface did not report down")
	}
	if err := env.SSH.SetInterfaceState(ctx, iface, true); err != nil {
		return t.fail("link-cycle", err, "could not bring %s back up", iface)
	}
	if err := waitState(true); err != nil {
		return t.fail("link-cycle", err, "interface did not come back up")
	}
	raised = true
	return t.pass("link-cycle", "%s cycled down and up cleanly", iface)
}
