// Package harness runs registered testers against one BMC and collects
// their results.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iokuper/bmcqa/pkg/config"
	"github.com/iokuper/bmcqa/pkg/netutil"
)

// Harness owns one run: the environment, the selected testers and the
// accumulated results.
type Harness struct {
	env *Env
}

// New builds a harness around a loaded configuration.
func New(cfg *config.Config) *Harness {
	return &Harness{env: NewEnv(cfg)}
}

// Env exposes the shared environment, mainly for the interactive menu.
func (h *Harness) Env() *Env { return h.env }

// Preflight verifies the device is reachable on the management ports and
// that the IPMI account has sufficient privilege before any tester runs.
func (h *Harness) Preflight(ctx context.Context) error {
	cfg := h.env.Cfg
	if err := netutil.CheckManagementAccess(ctx, cfg.Network.Host, cfg.Network.CommandTimeout); err != nil {
		return fmt.Errorf("management access check: %w", err)
	}
	ok, err := h.env.IPMI.CheckPrivilege(ctx, "ADMINISTRATOR")
	if err != nil {
		return fmt.Errorf("ipmi privilege check: %w", err)
	}
	if !ok {
		return fmt.Errorf("ipmi user %s lacks ADMINISTRATOR privilege", cfg.IPMI.Username)
	}
	return nil
}

// Run executes the entries in order, iterations times each, and returns
// the aggregated summary. A tester failure does not stop the run; context
// cancellation does.
func (h *Harness) Run(ctx context.Context, entries []Entry, iterations int) (*Summary, error) {
	if iterations < 1 {
		iterations = 1
	}
	if iterations > 10 {
		iterations = 10
	}

	summary := &Summary{
		RunID:     uuid.NewString(),
		Host:      h.env.Cfg.Network.Host,
		StartedAt: time.Now(),
	}

	log.Info().
		Str("run_id", summary.RunID).
		Str("host", summary.Host).
		Int("testers", len(entries)).
		Int("iterations", iterations).
		Msg("Starting test run")

	for iter := 1; iter <= iterations; iter++ {
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				summary.Duration = time.Since(summary.StartedAt)
				return summary, err
			}

			tester := e.New(h.env)
			log.Info().Str("tester", e.Name).Int("iteration", iter).Msg("Running tester")

			start := time.Now()
			results := tester.Run(ctx)
			elapsed := time.Since(start)

			for i := range results {
				if results[i].Duration == 0 {
					results[i].Duration = elapsed
				}
				h.logResult(&results[i])
			}
			summary.Results = append(summary.Results, results...)
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	log.Info().
		Str("run_id", summary.RunID).
		Int("passed", summary.Passed()).
		Int("failed", summary.Failed()).
		Dur("duration", summary.Duration).
		Msg("Test run finished")
	return summary, nil
}

func (h *Harness) logResult(r *Result) {
	ev := log.Info()
	if !r.Success {
		ev = log.Error().Str("error", r.ErrorDetail)
	}
	ev.Str("tester", r.Tester).
		Str("check", r.Name).
		Bool("success", r.Success).
		Dur("duration", r.Duration).
		Msg(r.Message)
}
