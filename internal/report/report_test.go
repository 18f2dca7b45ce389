package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iokuper/bmcqa/internal/harness"
)

func sampleSummary() *harness.Summary {
	started, _ := time.Parse(time.RFC3339, "2026-03-14T10:30:00Z")
	return &harness.Summary{
		RunID:     "0b7f9a2c-1111-2222-3333-444455556666",
		Host:      "192.168.10.50",
		StartedAt: started,
		Duration:  95 * time.Second,
		Results: []harness.Result{
			harness.Pass("network", "static-ip", "confirmed on all channels"),
			harness.Fail("vlan", "apply", errors.New("timeout after 60s"), "VLAN 100 | not visible"),
		},
	}
}

func TestWrite_ProducesBothFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "reports"))
	require.NoError(t, err)

	logPath, mdPath, err := w.Write(sampleSummary())
	require.NoError(t, err)

	assert.Equal(t, "run-20260314-103000-0b7f9a2c.log", filepath.Base(logPath))
	assert.Equal(t, "run-20260314-103000-0b7f9a2c.md", filepath.Base(mdPath))

	for _, p := range []string{logPath, mdPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestRenderText(t *testing.T) {
	out := renderText(sampleSummary())

	assert.Contains(t, out, "Host     192.168.10.50")
	assert.Contains(t, out, "Passed   1")
	assert.Contains(t, out, "Failed   1")
	assert.Contains(t, out, "PASS network/static-ip: confirmed on all channels")
	assert.Contains(t, out, "FAIL vlan/apply")
	assert.Contains(t, out, "timeout after 60s")
}

func TestRenderMarkdown(t *testing.T) {
	out := renderMarkdown(sampleSummary())

	assert.Contains(t, out, "# Test Run 0b7f9a2c")
	assert.Contains(t, out, "- **Result:** 1 passed, 1 failed")
	assert.Contains(t, out, "| network | static-ip | ✅ |")
	assert.Contains(t, out, "❌")
	// Pipes inside messages must not break the table.
	assert.Contains(t, out, `VLAN 100 \| not visible`)
	assert.Contains(t, out, "timeout after 60s")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0b7f9a2c", shortID("0b7f9a2c-1111"))
	assert.Equal(t, "tiny", shortID("tiny"))
}

func TestRenderText_NoResults(t *testing.T) {
	s := &harness.Summary{RunID: "x", Host: "h", StartedAt: time.Now()}
	out := renderText(s)
	assert.True(t, strings.Contains(out, "Passed   0"))
	assert.True(t, strings.Contains(out, "Failed   0"))
}

func TestWriteArtifact(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	path, err := w.WriteArtifact("diag-20260314-103000-sel.log", []byte("1 | OS Boot | Initiated\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "diag-20260314-103000-sel.log"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "OS Boot"))
}
