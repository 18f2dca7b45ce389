package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iokuper/bmcqa/internal/harness"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summaryAt(runID, host string, started time.Time, results ...harness.Result) *harness.Summary {
	return &harness.Summary{
		RunID:     runID,
		Host:      host,
		StartedAt: started,
		Duration:  42 * time.Second,
		Results:   results,
	}
}

// Opening twice against the same file must not trip over existing tables.
func TestOpen_MigrationIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}

func TestSaveSummaryAndRecentRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSummary(ctx, summaryAt("run-1", "bmc-a", base,
		harness.Pass("network", "static-ip", "ok"),
		harness.Fail("vlan", "apply", errors.New("timeout"), "not visible"))))
	require.NoError(t, s.SaveSummary(ctx, summaryAt("run-2", "bmc-a", base.Add(time.Hour),
		harness.Pass("network", "static-ip", "ok"))))
	require.NoError(t, s.SaveSummary(ctx, summaryAt("run-3", "bmc-b", base.Add(2*time.Hour))))

	runs, err := s.RecentRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID, "newest first")
	assert.Equal(t, "run-1", runs[2].ID)
	assert.Equal(t, 42*time.Second, runs[0].Duration)

	runs, err = s.RecentRuns(ctx, "bmc-a", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[1].Passed)
	assert.Equal(t, 1, runs[1].Failed)
}

func TestRecentRuns_Limit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveSummary(ctx,
			summaryAt(fmt.Sprintf("run-%d", i), "bmc-a", base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.RecentRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestFailuresFor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSummary(ctx, summaryAt("run-1", "bmc-a", base,
		harness.Pass("network", "static-ip", "ok"),
		harness.Fail("vlan", "apply", errors.New("timeout"), "not visible"),
		harness.Fail("dns", "resolution", nil, "no answer"))))

	fails, err := s.FailuresFor(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, fails, 2)
	for _, f := range fails {
		assert.False(t, f.Success)
	}
	testers := []string{fails[0].Tester, fails[1].Tester}
	assert.ElementsMatch(t, []string{"vlan", "dns"}, testers)
}

func TestSaveSummary_DuplicateRunIDFails(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSummary(ctx, summaryAt("run-1", "bmc-a", base)))
	assert.Error(t, s.SaveSummary(ctx, summaryAt("run-1", "bmc-a", base)))
}
