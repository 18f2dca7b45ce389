package testers

import (
	"context"
	"strings"
	"time"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/netutil"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "power",
		Description: "Power state agreement and chassis power cycle",
		Category:    harness.CategoryPower,
		New:         func(env *harness.Env) harness.Tester { return &powerTester{base{"power", env}} },
	})
}

type powerTester struct {
	base
}

func (t *powerTester) Run(ctx context.Context) []harness.Result {
	var results []harness.Result

	results = append(results, t.timed("state-agreement", func() harness.Result {
		return t.stateAgreement(ctx)
	}))

	results = append(results, t.timed("cycle", func() harness.Result {
		return t.powerCycle(ctx)
	}))

	return results
}

// stateAgreement compares the chassis power state over ipmitool, the
// native IPMI session and Redfish.
func (t *powerTester) stateAgreement(ctx context.Context) harness.Result {
	env := t.env

	toolState, err := env.IPMI.PowerStatus(ctx)
	if err != nil {
		return t.fail("state-agreement", err, "ipmitool power status failed")
	}

	states := map[string]string{"ipmitool": toolState}

	if on, err := env.Native.ChassisPowerOn(ctx); err == nil {
		state := "off"
		if on {
			state = "on"
		}
		states["ipmi-native"] = state
	} else {
		t.log().Warn().Err(err).Msg("Native IPMI session unavailable, skipping")
	}

	if ps, err := env.Redfish.GetPowerState(ctx); err == nil {
		states["redfish"] = strings.ToLower(string(ps))
	} else {
		t.log().Warn().Err(err).Msg("Redfish power state unavailable, skipping")
	}

	if len(states) < 2 {
		return t.fail("state-agreement", nil, "only one channel reported a power state")
	}
	for name, state := range states {
		if state != toolState {
			return t.fail("state-agreement", nil, "%s reports %q, ipmitool reports %q", name, state, toolState)
		}
	}
	return t.pass("state-agreement", "%d channels agree the chassis is %s", len(states), toolState)
}

// powerCycle cycles a powered-on chassis and waits for the host to boot
// back to a reachable SSH port. A powered-off chassis is powered on
// instead, never left running.
func (t *powerTester) powerCycle(ctx context.Context) harness.Result {
	env := t.env
	cfg := env.Cfg.Power

	state, err := env.IPMI.PowerStatus(ctx)
	if err != nil {
		return t.fail("cycle", err, "could not read power state")
	}

	if state == "off" {
		if err := env.IPMI.PowerControl(ctx, "on"); err != nil {
			return t.fail("cycle", err, "power on failed")
		}
		if err := t.waitForState(ctx, "on", cfg.StateTimeout); err != nil {
			return t.fail("cycle", err, "chassis did not reach on state")
		}
		if err := env.IPMI.PowerControl(ctx, "off"); err != nil {
			return t.fail("cycle", err, "power off after on test failed, chassis left on")
		}
		if err := t.waitForState(ctx, "off", cfg.StateTimeout); err != nil {
			return t.fail("cycle", err, "chassis did not return to off state")
		}
		return t.pass("cycle", "chassis was off: on/off transition verified, left off")
	}

	if err := env.IPMI.PowerControl(ctx, "cycle"); err != nil {
		return t.fail("cycle", err, "power cycle command failed")
	}
	if err := t.waitForState(ctx, "on", cfg.StateTimeout); err != nil {
		return t.fail("cycle", err, "chassis did not come back on after cycle")
	}

	// The BMC reports power long before the OS is up; wait for SSH.
	sshHost := env.Cfg.SSH.Host
	if err := netutil.WaitForPort(ctx, sshHost, env.Cfg.SSH.Port, cfg.BootWait, env.Cfg.Network.PollInterval); err != nil {
		return t.fail("cycle", err, "host OS did not come back within %s", cfg.BootWait)
	}
	return t.pass("cycle", "chassis cycled, host OS reachable again")
}

func (t *powerTester) waitForState(ctx context.Context, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		state, err := t.env.IPMI.PowerStatus(ctx)
		if err == nil && state == want {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.env.Cfg.Network.PollInterval):
		}
	}
}
