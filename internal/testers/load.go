package testers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iokuper/bmcqa/internal/harness"
)

func init() {
	harness.Register(harness.Entry{
		Name:        "load",
		Description: "BMC stays responsive while the shared NIC carries iperf3 traffic",
		Category:    harness.CategoryLoad,
		New:         func(env *harness.Env) harness.Tester { return &loadTester{base{"load", env}} },
	})
}

type loadTester struct {
	base
}

// iperfSummary is the slice of iperf3 JSON output the tester reads.
type iperfSummary struct {
	End struct {
		SumReceived struct {
			BitsPerSecond float64 `json:"bits_per_second"`
		} `json:"sum_received"`
	} `json:"end"`
	Error string `json:"error"`
}

// Run saturates the host NIC with a loopback iperf3 pair (server and
// client both on the host OS) and polls the BMC sideband during the run.
// On shared-NIC (NC-SI) designs this is where management traffic starves.
func (t *loadTester) Run(ctx context.Context) []harness.Result {
	env := t.env
	cfg := env.Cfg.Load
	var results []harness.Result

	results = append(results, t.timed("tooling", func() harness.Result {
		res, err := env.SSH.Run(ctx, "command -v iperf3")
		if err != nil {
			return t.fail("tooling", err, "SSH channel unreachable")
		}
		if !res.Ok() {
			return t.fail("tooling", nil, "iperf3 is not installed on the host OS")
		}
		return t.pass("tooling", "iperf3 available at %s", res.Stdout)
	}))
	if !results[0].Success {
		return results
	}

	// One-shot daemonized server; -1 makes it exit after the first client.
	res, err := env.SSH.Run(ctx, fmt.Sprintf("iperf3 -s -D -1 -p %d", cfg.ServerPort))
	if err != nil || !res.Ok() {
		return append(results, t.fail("server", err, "could not start iperf3 server on port %d", cfg.ServerPort))
	}

	seconds := int(cfg.Duration.Seconds())
	if seconds < 1 {
		seconds = 10
	}

	var (
		wg                     sync.WaitGroup
		probeErrs              int
		probeTotal             int
		probeWorst             time.Duration
		probeCtx, cancelProbes = context.WithCancel(ctx)
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			start := time.Now()
			_, err := env.IPMI.PowerStatus(probeCtx)
			elapsed := time.Since(start)
			if probeCtx.Err() != nil {
				return
			}
			probeTotal++
			if err != nil {
				probeErrs++
			}
			if elapsed > probeWorst {
				probeWorst = elapsed
			}
			select {
			case <-probeCtx.Done():
				return
			case <-time.After(env.Cfg.Network.PollInterval):
			}
		}
	}()

	statBefore, statBeforeErr := env.SSH.Run(ctx, "head -n 1 /proc/stat")

	clientCmd := fmt.Sprintf("iperf3 -c 127.0.0.1 -p %d -t %d -P %d --json",
		cfg.ServerPort, seconds, cfg.Parallel)
	clientRes, clientErr := env.SSH.Run(ctx, clientCmd)
	cancelProbes()
	wg.Wait()

	statAfter, statAfterErr := env.SSH.Run(ctx, "head -n 1 /proc/stat")

	results = append(results, t.timed("throughput", func() harness.Result {
		if clientErr != nil {
			return t.fail("throughput", clientErr, "iperf3 client did not run")
		}
		var sum iperfSummary
		if err := json.Unmarshal([]byte(clientRes.Stdout), &sum); err != nil {
			return t.fail("throughput", err, "could not parse iperf3 output")
		}
		if sum.Error != "" {
			return t.fail("throughput", nil, "iperf3 reported: %s", sum.Error)
		}
		mbps := sum.End.SumReceived.BitsPerSecond / 1e6
		if cfg.MinMbps > 0 && mbps < cfg.MinMbps {
			return t.fail("throughput", nil, "measured %.1f Mbps, floor is %.1f Mbps", mbps, cfg.MinMbps)
		}
		return t.pass("throughput", "%.1f Mbps over %ds with %d streams", mbps, seconds, cfg.Parallel)
	}))

	if cfg.MaxCPUPercent > 0 {
		results = append(results, t.timed("host-cpu", func() harness.Result {
			if statBeforeErr != nil || statAfterErr != nil {
				return t.fail("host-cpu", statBeforeErr, "could not sample /proc/stat on the host")
			}
			busy, err := cpuBusyPercent(statBefore.Stdout, statAfter.Stdout)
			if err != nil {
				return t.fail("host-cpu", err, "could not compute CPU utilization")
			}
			if busy > cfg.MaxCPUPercent {
				return t.fail("host-cpu", nil, "host CPU at %.1f%% under load, ceiling is %.1f%%",
					busy, cfg.MaxCPUPercent)
			}
			return t.pass("host-cpu", "host CPU at %.1f%% under load (ceiling %.1f%%)", busy, cfg.MaxCPUPercent)
		}))
	}

	results = append(results, t.timed("sideband", func() harness.Result {
		if probeTotal == 0 {
			return t.fail("sideband", nil, "no sideband probes completed during the load window")
		}
		if probeErrs > 0 {
			return t.fail("sideband", nil, "%d of %d sideband probes failed under load (worst %s)",
				probeErrs, probeTotal, probeWorst.Round(time.Millisecond))
		}
		return t.pass("sideband", "%d sideband probes answered under load, worst %s",
			probeTotal, probeWorst.Round(time.Millisecond))
	}))

	return results
}

type cpuSample struct {
	total uint64
	idle  uint64
}

func parseCPULine(line string) (cpuSample, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuSample{}, fmt.Errorf("not an aggregate cpu line: %q", line)
	}
	var s cpuSample
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return cpuSample{}, fmt.Errorf("cpu field %d: %w", i+1, err)
		}
		s.total += v
		// Fields 4 and 5 are idle and iowait.
		if i == 3 || i == 4 {
			s.idle += v
		}
	}
	return s, nil
}

// cpuBusyPercent computes aggregate CPU utilization between two /proc/stat
// cpu summary lines. Idle and iowait jiffies count as not busy.
func cpuBusyPercent(before, after string) (float64, error) {
	b, err := parseCPULine(before)
	if err != nil {
		return 0, err
	}
	a, err := parseCPULine(after)
	if err != nil {
		return 0, err
	}
	total := a.total - b.total
	if a.total <= b.total {
		return 0, fmt.Errorf("cpu counters did not advance between samples")
	}
	idle := a.idle - b.idle
	return 100 * float64(total-idle) / float64(total), nil
}
