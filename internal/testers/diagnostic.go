package testers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/internal/report"
	"github.com/iokuper/bmcqa/pkg/ipmi"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "diagnostic",
		Description: "Collect SEL, sensor readings and health state, flag anomalies",
		Category:    harness.CategorySystem,
		New:         func(env *harness.Env) harness.Tester { return &diagnosticTester{base{"diagnostic", env}} },
	})
}

type diagnosticTester struct {
	base
}

func (t *diagnosticTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	results = append(results, t.timed("sel-scan", func() harness.Result {
		entries, err := env.IPMI.SELList(ctx)
		if err != nil {
			return t.fail("sel-scan", err, "SEL read failed")
		}
		var critical []string
		for _, e := range entries {
			lower := strings.ToLower(e)
			if strings.Contains(lower, "critical") || strings.Contains(lower, "non-recoverable") {
				critical = append(critical, e)
			}
		}
		if len(critical) > 0 {
			return t.fail("sel-scan", nil, "%d critical SEL entries, first: %s", len(critical), critical[0])
		}
		return t.pass("sel-scan", "%d SEL entries, none critical", len(entries))
	}))

	results = append(results, t.timed("sensor-scan", func() harness.Result {
		sensors, err := env.IPMI.SensorList(ctx)
		if err != nil {
			return t.fail("sensor-scan", err, "sensor read failed")
		}
		bad := flagSensors(sensors)
		if len(bad) > 0 {
			return t.fail("sensor-scan", nil, "%d sensors outside nominal state, first: %s", len(bad), bad[0])
		}
		return t.pass("sensor-scan", "%d sensors nominal", len(sensors))
	}))

	results = append(results, t.timed("manager-health", func() harness.Result {
		mgrPath, err := env.Redfish.FirstManagerPath(ctx)
		if err != nil {
			return t.fail("manager-health", err, "no manager found")
		}
		mgr, err := env.Redfish.GetManager(ctx, mgrPath)
		if err != nil {
			return t.fail("manager-health", err, "manager resource unreachable")
		}
		if mgr.Status.Health != "" && !strings.EqualFold(mgr.Status.Health, "OK") {
			return t.fail("manager-health", nil, "manager health is %s", mgr.Status.Health)
		}
		return t.pass("manager-health", "manager %s healthy, firmware %s", mgr.ID, mgr.FirmwareVersion)
	}))

	results = append(results, t.timed("host-dmesg", func() harness.Result {
		res, err := env.SSH.Run(ctx, "sudo -n dmesg --level=err,crit,alert,emerg --since '1 hour ago' 2>/dev/null | tail -n 20")
		if err != nil {
			return t.fail("host-dmesg", err, "could not read host kernel log")
		}
		if !res.Ok() {
			// Older util-linux lacks --since; treat as a skip, not a failure.
			return t.pass("host-dmesg", "host kernel log not scannable on this image")
		}
		if strings.TrimSpace(res.Stdout) != "" {
			lines := strings.Split(res.Stdout, "\n")
			return t.fail("host-dmesg", nil, "%d recent kernel errors, first: %s", len(lines), lines[0])
		}
		return t.pass("host-dmesg", "no recent kernel errors on the host")
	}))

	results = append(results, t.timed("collect", func() harness.Result {
		return t.collect(ctx)
	}))

	return results
}

// collect dumps the SEL and the host logs into the reports directory so a
// failing run leaves evidence behind.
func (t *diagnosticTester) collect(ctx context.Context) harness.Result {
	env := t.env

	w, err := report.NewWriter(env.Cfg.Report.Dir)
	if err != nil {
		return t.fail("collect", err, "reports directory unavailable")
	}
	stamp := time.Now().Format("20060102-150405")

	sources := []struct {
		name string
		read func() (string, error)
	}{
		{"sel", func() (string, error) {
			entries, err := env.IPMI.SELList(ctx)
			if err != nil {
				return "", err
			}
			return strings.Join(entries, "\n"), nil
		}},
		{"dmesg", func() (string, error) {
			res, err := env.SSH.Run(ctx, "sudo -n dmesg | tail -n 500")
			if err != nil {
				return "", err
			}
			if !res.Ok() {
				return "", fmt.Errorf("dmesg exited %d: %s", res.ExitCode, res.Stderr)
			}
			return res.Stdout, nil
		}},
		{"journal", func() (string, error) {
			res, err := env.SSH.Run(ctx, "sudo -n journalctl -n 500 --no-pager 2>/dev/null")
			if err != nil {
				return "", err
			}
			if !res.Ok() {
				return "", fmt.Errorf("journalctl exited %d: %s", res.ExitCode, res.Stderr)
			}
			return res.Stdout, nil
		}},
	}

	var written []string
	for _, src := range sources {
		out, err := src.read()
		if err != nil {
			// Images without systemd or sudo still yield the other dumps.
			t.log().Warn().Err(err).Str("source", src.name).Msg("Log source not collectable")
			continue
		}
		path, err := w.WriteArtifact(fmt.Sprintf("diag-%s-%s.log", stamp, src.name), []byte(out))
		if err != nil {
			return t.fail("collect", err, "could not persist %s dump", src.name)
		}
		written = append(written, path)
	}
	if len(written) == 0 {
		return t.fail("collect", nil, "no log source could be collected")
	}
	return t.pass("collect", "%d log dumps written to %s", len(written), env.Cfg.Report.Dir)
}

// flagSensors returns descriptions of sensors whose status is outside the
// nominal set. Discrete and absent sensors read "ns" and are skipped.
func flagSensors(sensors []ipmi.SensorReading) []string {
	var bad []string
	for _, s := range sensors {
		switch strings.ToLower(s.Status) {
		case "ok", "ns", "na", "":
		default:
			bad = append(bad, s.Name+"="+s.Status)
		}
	}
	return bad
}
