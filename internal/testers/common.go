// Package testers contains the test scenarios the harness can run. Each
// tester registers itself at init and is built per run from the shared
// environment.
package testers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/channel"
	"github.com/iokuper/bmcqa/pkg/roundtrip"
)

// base carries what every tester needs: its registry name and the shared
// environment.
type base struct {
	name string
	env  *harness.Env
}

func (b *base) Name() string { return b.name }

func (b *base) log() *zerolog.Logger {
	l := b.env.Log.With().Str("tester", b.name).Logger()
	return &l
}

func (b *base) pass(check, format string, args ...any) harness.Result {
	return harness.Pass(b.name, check, format, args...)
}

func (b *base) fail(check string, err error, format string, args ...any) harness.Result {
	return harness.Fail(b.name, check, err, format, args...)
}

// timed wraps a check so its own duration lands in the result instead of
// the whole tester's.
func (b *base) timed(check string, fn func() harness.Result) harness.Result {
	start := time.Now()
	r := fn()
	r.Duration = time.Since(start)
	return r
}

// ipmiProbe reads the LAN configuration snapshot over IPMI.
func ipmiProbe(env *harness.Env) roundtrip.ProbeFunc {
	return func(ctx context.Context) (channel.Snapshot, error) {
		lan, err := env.IPMI.LANPrint(ctx)
		if err != nil {
			return nil, err
		}
		return lan.Snapshot(), nil
	}
}

// redfishNICPath resolves the manager's first ethernet interface path once.
func redfishNICPath(ctx context.Context, env *harness.Env) (string, error) {
	mgrPath, err := env.Redfish.FirstManagerPath(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve manager: %w", err)
	}
	paths, err := env.Redfish.ListEthernetInterfacePaths(ctx, mgrPath)
	if err != nil {
		return "", fmt.Errorf("list manager NICs: %w", err)
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("manager %s has no ethernet interfaces", mgrPath)
	}
	return paths[0], nil
}

// redfishProbe reads the manager NIC snapshot over Redfish.
func redfishProbe(env *harness.Env, nicPath string) roundtrip.ProbeFunc {
	return func(ctx context.Context) (channel.Snapshot, error) {
		iface, _, err := env.Redfish.GetEthernetInterface(ctx, nicPath)
		if err != nil {
			return nil, err
		}
		return iface.Snapshot(), nil
	}
}

// sshProbe reads the host OS view of the configured interface.
func sshProbe(env *harness.Env) roundtrip.ProbeFunc {
	return func(ctx context.Context) (channel.Snapshot, error) {
		ic, err := env.SSH.GetInterfaceConfig(ctx, env.Cfg.SSH.Interface)
		if err != nil {
			return nil, err
		}
		return ic.Snapshot(), nil
	}
}

// sshBMCSet writes LAN parameters in-band: ipmitool on the host OS over
// /dev/ipmi0, reached through SSH. Each params slice is one lan set call.
func sshBMCSet(ctx context.Context, env *harness.Env, params ...[]string) error {
	for _, p := range params {
		cmd := fmt.Sprintf("sudo -n ipmitool lan set %s %s", env.Cfg.Network.Channel, strings.Join(p, " "))
		res, err := env.SSH.Run(ctx, cmd)
		if err != nil {
			return err
		}
		if !res.Ok() {
			return fmt.Errorf("in-band %q exited %d: %s", cmd, res.ExitCode, res.Stderr)
		}
	}
	return nil
}

// inBandAvailable reports whether the SSH user can drive ipmitool on the
// host. Errors count as unavailable; callers then skip the SSH binding.
func inBandAvailable(ctx context.Context, env *harness.Env) bool {
	ok, err := env.SSH.CheckSudo(ctx)
	return err == nil && ok
}

// newRunner assembles a round-trip runner with the shared poll policy. The
// authoritative channel must be among the bindings.
func newRunner(env *harness.Env, auth channel.Name, keys []string, bindings []roundtrip.Binding) *roundtrip.Runner {
	return &roundtrip.Runner{
		Bindings:       bindings,
		Authoritative:  auth,
		Keys:           keys,
		PollInterval:   env.Cfg.Network.PollInterval,
		ConfirmTimeout: env.Cfg.Network.VerifyTimeout,
		RestoreRetries: uint(env.Cfg.Network.RetryCount),
		RestoreDelay:   env.Cfg.Network.RetryDelay,
		Log:            env.Log,
	}
}
