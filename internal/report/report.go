// Package report writes run results to the reports directory and prints
// the console summary table.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iokuper/bmcqa/internal/harness"
)

// Writer persists summaries as plain-text and markdown files.
type Writer struct {
	dir string
}

// NewWriter ensures the reports directory exists.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Write produces both report files and returns their paths.
func (w *Writer) Write(s *harness.Summary) (logPath, mdPath string, err error) {
	stamp := s.StartedAt.Format("20060102-150405")
	base := fmt.Sprintf("run-%s-%s", stamp, shortID(s.RunID))

	logPath = filepath.Join(w.dir, base+".log")
	if err = os.WriteFile(logPath, []byte(renderText(s)), 0o644); err != nil {
		return "", "", fmt.Errorf("write log report: %w", err)
	}

	mdPath = filepath.Join(w.dir, base+".md")
	if err = os.WriteFile(mdPath, []byte(renderMarkdown(s)), 0o644); err != nil {
		return "", "", fmt.Errorf("write markdown report: %w", err)
	}

	log.Info().Str("log", logPath).Str("markdown", mdPath).Msg("Reports written")
	return logPath, mdPath, nil
}

// WriteArtifact stores raw collected output, such as a SEL dump or a host
// log excerpt, next to the report files. Returns the written path.
func (w *Writer) WriteArtifact(name string, data []byte) (string, error) {
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderText(s *harness.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run      %s\n", s.RunID)
	fmt.Fprintf(&b, "Host     %s\n", s.Host)
	fmt.Fprintf(&b, "Started  %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Passed   %d\nFailed   %d\n\n", s.Passed(), s.Failed())

	for _, r := range s.Results {
		status := "PASS"
		if !r.Success {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s %s/%s: %s\n",
			r.Timestamp.Format("15:04:05"), status, r.Tester, r.Name, r.Message)
		if r.ErrorDetail != "" {
			fmt.Fprintf(&b, "         %s\n", r.ErrorDetail)
		}
	}
	return b.String()
}

func renderMarkdown(s *harness.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Test Run %s\n\n", shortID(s.RunID))
	fmt.Fprintf(&b, "- **Host:** %s\n", s.Host)
	fmt.Fprintf(&b, "- **Started:** %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "- **Result:** %d passed, %d failed\n\n", s.Passed(), s.Failed())

	b.WriteString("| Tester | Check | Status | Duration | Message |\n")
	b.WriteString("|--------|-------|--------|----------|--------|\n")
	for _, r := range s.Results {
		status := "✅"
		if !r.Success {
			status = "❌"
		}
		msg := r.Message
		if r.ErrorDetail != "" {
			msg += " - " + r.ErrorDetail
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.Tester, r.Name, status, r.Duration.Round(time.Millisecond),
			strings.ReplaceAll(msg, "|", "\\|"))
	}
	return b.String()
}
