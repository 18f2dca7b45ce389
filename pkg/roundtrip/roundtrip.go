// Package roundtrip drives the apply-and-confirm cycle every network tester
// follows: capture the current configuration, push a target value through
// each control plane that can write it, wait for every plane to report the
// value and agree after each apply, and restore the original configuration.
package roundtrip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/iokuper/bmcqa/pkg/channel"
)

// ProbeFunc reads the current configuration as one channel sees it.
type ProbeFunc func(ctx context.Context) (channel.Snapshot, error)

// ApplyFunc pushes target values through one channel. An error means the
// channel rejected or failed the change.
type ApplyFunc func(ctx context.Context, target channel.Snapshot) error

// Binding ties a channel name to its probe and optional apply.
type Binding struct {
	Channel channel.Name
	Probe   ProbeFunc
	Apply   ApplyFunc
}

// Runner executes round trips over a fixed set of bindings. Every binding
// with an apply takes a turn writing the target; the authoritative channel
// goes first, restores the baseline, and is the one plane expected to stay
// reachable while addresses move.
type Runner struct {
	Bindings      []Binding
	Authoritative channel.Name
	Keys          []string

	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	RestoreRetries uint
	RestoreDelay   time.Duration

	Log zerolog.Logger
}

func (r *Runner) authoritative() (*Binding, error) {
	for i := range r.Bindings {
		if r.Bindings[i].Channel == r.Authoritative {
			if r.Bindings[i].Apply == nil {
				return nil, fmt.Errorf("authoritative channel %s has no apply", r.Authoritative)
			}
			return &r.Bindings[i], nil
		}
	}
	return nil, fmt.Errorf("no binding for authoritative channel %s", r.Authoritative)
}

// appliers returns every binding that can write, authoritative first. The
// authoritative binding must exist and carry an apply.
func (r *Runner) appliers() ([]*Binding, error) {
	auth, err := r.authoritative()
	if err != nil {
		return nil, err
	}
	out := []*Binding{auth}
	for i := range r.Bindings {
		b := &r.Bindings[i]
		if b.Apply != nil && b.Channel != r.Authoritative {
			out = append(out, b)
		}
	}
	return out, nil
}

// Capture probes every binding. The authoritative channel must answer;
// the others may be temporarily unreachable and are skipped with a log.
func (r *Runner) Capture(ctx context.Context) (channel.CrossChannel, error) {
	cc := make(channel.CrossChannel, len(r.Bindings))
	for _, b := range r.Bindings {
		snap, err := b.Probe(ctx)
		if err != nil {
			if b.Channel == r.Authoritative {
				return nil, fmt.Errorf("capture via %s: %w", b.Channel, err)
			}
			r.Log.Warn().Err(err).Str("channel", string(b.Channel)).Msg("Capture failed, channel skipped")
			continue
		}
		cc[b.Channel] = snap
	}
	return cc, nil
}

// ApplyAndConfirm applies target through the binding, then polls its probe
// until the target is visible or the confirm window closes. The apply is
// issued exactly once; only the probe repeats.
func (r *Runner) ApplyAndConfirm(ctx context.Context, b *Binding, target channel.Snapshot) error {
	if err := b.Apply(ctx, target); err != nil {
		return fmt.Errorf("apply via %s: %w", b.Channel, err)
	}
	return r.Confirm(ctx, b, target)
}

// Confirm polls the binding's probe until target matches or the window
// closes. Transitional readings ("" and 0.0.0.0) never satisfy a match.
func (r *Runner) Confirm(ctx context.Context, b *Binding, target channel.Snapshot) error {
	deadline := time.Now().Add(r.ConfirmTimeout)
	var lastDiff string
	for {
		snap, err := b.Probe(ctx)
		if err != nil {
			lastDiff = err.Error()
			r.Log.Debug().Err(err).Str("channel", string(b.Channel)).Msg("Probe failed, will retry")
		} else {
			ok, diff := snap.Matches(target)
			if ok {
				return nil
			}
			lastDiff = diff
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%s did not reach target within %s: %s", b.Channel, r.ConfirmTimeout, lastDiff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.PollInterval):
		}
	}
}

// ConfirmAll waits for every binding to report the target.
func (r *Runner) ConfirmAll(ctx context.Context, target channel.Snapshot) error {
	for i := range r.Bindings {
		if err := r.Confirm(ctx, &r.Bindings[i], target); err != nil {
			return err
		}
	}
	return nil
}

// VerifyAcross probes every binding and checks that no two channels report
// different settled values for the compared keys.
func (r *Runner) VerifyAcross(ctx context.Context) error {
	cc := make(channel.CrossChannel, len(r.Bindings))
	for _, b := range r.Bindings {
		snap, err := b.Probe(ctx)
		if err != nil {
			return fmt.Errorf("verify probe via %s: %w", b.Channel, err)
		}
		cc[b.Channel] = snap
	}
	return channel.Verify(cc, r.Keys)
}

// ExpectRejection applies a value that must NOT be accepted. The channel
// rejecting the apply outright is a pass. If the apply is accepted, the
// probe is consulted once: a device that silently ignored the value also
// passes, one that installed it fails.
func (r *Runner) ExpectRejection(ctx context.Context, b *Binding, target channel.Snapshot) error {
	if err := b.Apply(ctx, target); err != nil {
		r.Log.Debug().Err(err).Str("channel", string(b.Channel)).Msg("Invalid value rejected at apply")
		return nil
	}
	snap, err := b.Probe(ctx)
	if err != nil {
		return fmt.Errorf("probe after invalid apply via %s: %w", b.Channel, err)
	}
	if ok, _ := snap.Matches(target); ok {
		return fmt.Errorf("%s accepted invalid value %v", b.Channel, target)
	}
	return nil
}

// Restore drives the device back to baseline through the authoritative
// channel, retrying with exponential backoff. Called even after failed
// runs, so it re-resolves its own binding.
func (r *Runner) Restore(ctx context.Context, baseline channel.Snapshot) error {
	auth, err := r.authoritative()
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.RestoreDelay
	b.MaxInterval = 2 * time.Minute

	op := func() (struct{}, error) {
		if err := auth.Apply(ctx, baseline); err != nil {
			r.Log.Warn().Err(err).Msg("Restore apply failed, retrying")
			return struct{}{}, err
		}
		if err := r.Confirm(ctx, auth, baseline); err != nil {
			r.Log.Warn().Err(err).Msg("Restore not confirmed, retrying")
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.RestoreRetries))
	if err != nil {
		return fmt.Errorf("restore baseline: %w", err)
	}
	return nil
}

// Run executes one full round trip: capture baseline, then push the target
// through every binding that can write, authoritative first. After each
// apply, every channel must report the target and the planes must agree
// with each other before the next channel takes its turn. The invalid
// targets are then probed for rejection and the baseline restored. Restore
// runs even when an earlier phase failed; if it fails too, both errors are
// reported because the device is left misconfigured.
func (r *Runner) Run(ctx context.Context, target channel.Snapshot, invalid []channel.Snapshot) (err error) {
	appliers, err := r.appliers()
	if err != nil {
		return err
	}
	auth := appliers[0]

	full, err := auth.Probe(ctx)
	if err != nil {
		return fmt.Errorf("capture baseline via %s: %w", r.Authoritative, err)
	}
	// Restore only the keys under test, and only those that were settled
	// at capture time: a transitional baseline value can never be
	// confirmed back.
	baseline := channel.Snapshot{}
	for _, k := range r.Keys {
		if v, ok := full[k]; ok && !channel.Transitional(v) {
			baseline[k] = v
		}
	}
	if len(baseline) == 0 {
		r.Log.Warn().Strs("keys", r.Keys).Msg("No settled baseline values, restore will be skipped")
	} else {
		r.Log.Info().Interface("baseline", baseline).Msg("Baseline captured")
		defer func() {
			if rerr := r.Restore(ctx, baseline); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}()
	}

	for _, b := range appliers {
		if err = r.ApplyAndConfirm(ctx, b, target); err != nil {
			return err
		}
		if err = r.ConfirmAll(ctx, target); err != nil {
			return err
		}
		if err = r.VerifyAcross(ctx); err != nil {
			return err
		}
	}
	for _, inv := range invalid {
		if err = r.ExpectRejection(ctx, auth, inv); err != nil {
			return err
		}
	}
	return nil
}
