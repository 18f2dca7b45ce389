package testers

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/pkg/redfish"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "ntp",
		Description: "NTP protocol state and host clock synchronization",
		Category:    harness.CategorySystem,
		New:         func(env *harness.Env) harness.Tester { return &ntpTester{base{"ntp", env}} },
	})
	harness.Register(harness.Entry{
		Name:        "manualntp",
		Description: "Configure specific NTP servers and verify the clock follows them",
		Category:    harness.CategorySystem,
		New:         func(env *harness.Env) harness.Tester { return &manualNTPTester{base{"manualntp", env}} },
	})
}

type ntpTester struct {
	base
}

func (t *ntpTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	var results []harness.Result

	results = append(results, t.timed("protocol", func() harness.Result {
		mgrPath, err := env.Redfish.FirstManagerPath(ctx)
		if err != nil {
			return t.fail("protocol", err, "could not resolve manager")
		}
		proto, _, err := env.Redfish.GetNetworkProtocol(ctx, mgrPath)
		if err != nil {
			return t.fail("protocol", err, "could not read network protocol resource")
		}
		if !proto.NTP.ProtocolEnabled {
			return t.fail("protocol", nil, "NTP is disabled on the manager")
		}
		if len(proto.NTP.NTPServers) == 0 {
			return t.fail("protocol", nil, "NTP is enabled but no servers are configured")
		}
		return t.pass("protocol", "NTP enabled with servers %s", strings.Join(proto.NTP.NTPServers, ", "))
	}))

	results = append(results, t.timed("host-sync", func() harness.Result {
		st, err := env.SSH.GetNTPStatus(ctx)
		if err != nil {
			return t.fail("host-sync", err, "could not read host NTP status")
		}
		if !st.Enabled {
			return t.fail("host-sync", nil, "host NTP service is disabled")
		}
		if !st.Synchronized {
			return t.fail("host-sync", nil, "host clock is not synchronized")
		}
		return t.pass("host-sync", "host clock synchronized (%d sources)", len(st.Servers))
	}))

	return results
}

type manualNTPTester struct {
	base
}

func (t *manualNTPTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.NTP
	var results []harness.Result

	if len(cfg.Servers) == 0 {
		return []harness.Result{t.fail("configuration", nil, "ntp.servers is not configured")}
	}

	mgrPath, err := env.Redfish.FirstManagerPath(ctx)
	if err != nil {
		return []harness.Result{t.fail("discovery", err, "could not resolve manager")}
	}

	before, _, err := env.Redfish.GetNetworkProtocol(ctx, mgrPath)
	if err != nil {
		return []harness.Result{t.fail("capture", err, "could not read network protocol resource")}
	}
	original := before.NTP.NTPServers

	restore := func() error {
		if len(original) == 0 {
			return nil
		}
		return env.Redfish.SetNTPServers(ctx, mgrPath, original)
	}

	results = append(results, t.timed("configure", func() harness.Result {
		if err := env.Redfish.SetNTPServers(ctx, mgrPath, cfg.Servers); err != nil {
			return t.fail("configure", err, "could not set NTP servers")
		}
		after, _, err := env.Redfish.GetNetworkProtocol(ctx, mgrPath)
		if err != nil {
			return t.fail("configure", err, "could not re-read network protocol resource")
		}
		if !sameServers(after.NTP.NTPServers, cfg.Servers) {
			return t.fail("configure", nil, "manager reports %v, wanted %v", after.NTP.NTPServers, cfg.Servers)
		}
		return t.pass("configure", "NTP servers set to %s", strings.Join(cfg.Servers, ", "))
	}))
	if !results[len(results)-1].Success {
		return results
	}

	results = append(results, t.timed("offset", func() harness.Result {
		return t.offsetCheck(ctx)
	}))

	for _, server := range cfg.InvalidServers {
		server := server
		results = append(results, t.timed("reject-invalid", func() harness.Result {
			err := env.Redfish.SetNTPServers(ctx, mgrPath, []string{server})
			if err == nil {
				// Some firmware accepts freeform strings here; the manager
				// silently dropping the value also counts.
				after, _, rerr := env.Redfish.GetNetworkProtocol(ctx, mgrPath)
				if rerr == nil && !sameServers(after.NTP.NTPServers, []string{server}) {
					return t.pass("reject-invalid", "invalid server %q silently ignored", server)
				}
				return t.fail("reject-invalid", nil, "invalid server %q was accepted", server)
			}
			if redfish.IsRejected(err) {
				return t.pass("reject-invalid", "invalid server %q rejected", server)
			}
			return t.fail("reject-invalid", err, "unexpected error applying invalid server %q", server)
		}))
	}

	if err := restore(); err != nil {
		results = append(results, t.fail("restore", err, "could not restore original NTP servers"))
	} else if len(original) > 0 {
		results = append(results, t.pass("restore", "original NTP servers restored"))
	}

	return results
}

// offsetCheck waits for resynchronization and compares the clock offset
// against the allowed maximum using chrony's tracking output.
func (t *manualNTPTester) offsetCheck(ctx context.Context) harness.Result {
	env := t.env
	cfg := env.Cfg.NTP

	waitCtx, cancel := context.WithTimeout(ctx, cfg.SyncWait)
	defer cancel()
	for {
		res, err := env.SSH.Run(waitCtx, "chronyc -c tracking")
		if err == nil && res.Ok() {
			if offset, perr := parseChronyOffset(res.Stdout); perr == nil {
				if offset <= cfg.MaxOffset {
					return t.pass("offset", "clock offset %s within limit %s", offset, cfg.MaxOffset)
				}
			}
		}
		select {
		case <-waitCtx.Done():
			return t.fail("offset", nil, "clock did not settle within %s of the servers in %s", cfg.MaxOffset, cfg.SyncWait)
		case <-time.After(env.Cfg.Network.PollInterval):
		}
	}
}

// parseChronyOffset extracts the absolute system time offset from
// `chronyc -c tracking` CSV output (field 5, seconds).
func parseChronyOffset(out string) (time.Duration, error) {
	fields := strings.Split(strings.TrimSpace(out), ",")
	if len(fields) < 6 {
		return 0, fmt.Errorf("unexpected tracking output %q", out)
	}
	seconds, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return 0, fmt.Errorf("parse offset %q: %w", fields[4], err)
	}
	return time.Duration(math.Abs(seconds) * float64(time.Second)), nil
}

func sameServers(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !strings.EqualFold(strings.TrimSpace(got[i]), strings.TrimSpace(want[i])) {
			return false
		}
	}
	return true
}
