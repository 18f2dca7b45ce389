package testers

import (
	"context"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/channel"
	"github.com/iokuper/bmcqa/pkg/netutil"
	"github.com/iokuper/bmcqa/pkg/roundtrip"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "hostname",
		Description: "BMC hostname round trip across IPMI and Redfish",
		Category:    harness.CategorySystem,
		New:         func(env *harness.Env) harness.Tester { return &hostnameTester{base{"hostname", env}} },
	})
}

type hostnameTester struct {
	base
}

func (t *hostnameTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.Hostname
	var results []harness.Result

	if cfg.TestHostname == "" {
		return []harness.Result{t.fail("configuration", nil, "hostname.test_hostname is not configured")}
	}
	if err := netutil.ValidateHostname(cfg.TestHostname); err != nil {
		return []harness.Result{t.fail("configuration", err, "test hostname %q is itself invalid", cfg.TestHostname)}
	}

	// An empty current name would make the restore target transitional and
	// the restore unconfirmable.
	current, err := env.IPMI.GetHostname(ctx)
	if err != nil {
		return []harness.Result{t.fail("capture", err, "could not read current hostname")}
	}
	if current == "" {
		return []harness.Result{t.fail("capture", nil,
			"device has no hostname set; set one before running this tester")}
	}

	nicPath, err := redfishNICPath(ctx, env)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve Redfish NIC")}
	}

	ipmiHostProbe := func(ctx context.Context) (channel.Snapshot, error) {
		name, err := env.IPMI.GetHostname(ctx)
		if err != nil {
			return nil, err
		}
		return channel.Snapshot{"Hostname": name}, nil
	}
	ipmiApply := func(ctx context.Context, target channel.Snapshot) error {
		name := target["Hostname"]
		// The firmware accepts almost anything over setsysinfo; validate
		// here so malformed names count as rejected.
		if err := netutil.ValidateHostname(name); err != nil {
			return err
		}
		return env.IPMI.SetHostname(ctx, name)
	}
	redfishApply := func(ctx context.Context, target channel.Snapshot) error {
		name := target["Hostname"]
		if err := netutil.ValidateHostname(name); err != nil {
			return err
		}
		return env.Redfish.SetHostName(ctx, nicPath, name)
	}

	runner := newRunner(env, channel.IPMI, []string{"Hostname"}, []roundtrip.Binding{
		{Channel: channel.IPMI, Probe: ipmiHostProbe, Apply: ipmiApply},
		{Channel: channel.Redfish, Probe: redfishProbe(env, nicPath), Apply: redfishApply},
	})

	target := channel.Snapshot{"Hostname": cfg.TestHostname}
	var invalid []channel.Snapshot
	for _, h := range cfg.InvalidHostnames {
		invalid = append(invalid, channel.Snapshot{"Hostname": h})
	}

	results = append(results, t.timed("roundtrip", func() harness.Result {
		if err := runner.Run(ctx, target, invalid); err != nil {
			return t.fail("roundtrip", err, "hostname round trip failed")
		}
		return t.pass("roundtrip", "hostname %q applied on both channels and restored", cfg.TestHostname)
	}))

	results = append(results, t.timed("host-view", func() harness.Result {
		return t.hostView(ctx)
	}))

	return results
}

// hostView reads the host OS hostname over SSH. The OS name lives in its
// own namespace, so only readability and syntax are asserted; the result
// records whether it mirrors the BMC name.
func (t *hostnameTester) hostView(ctx context.Context) harness.Result {
	env := t.env

	osName, err := env.SSH.GetHostname(ctx)
	if err != nil {
		return t.fail("host-view", err, "could not read the host OS hostname")
	}
	if verr := netutil.ValidateHostname(osName); verr != nil {
		return t.fail("host-view", verr, "host OS hostname %q is malformed", osName)
	}

	bmcName, err := env.IPMI.GetHostname(ctx)
	if err != nil {
		return t.fail("host-view", err, "could not read the BMC hostname")
	}
	if osName == bmcName {
		return t.pass("host-view", "host OS hostname %q mirrors the BMC", osName)
	}
	return t.pass("host-view", "host OS hostname %q is valid (BMC reports %q)", osName, bmcName)
}
