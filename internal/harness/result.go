package harness

import (
	"fmt"
	"time"
)

// Result records the outcome of one check within a tester run.
type Result struct {
	Tester      string        `json:"tester"`
	Name        string        `json:"name"`
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
}

// Pass builds a successful result.
func Pass(tester, name, format string, args ...any) Result {
	return Result{
		Tester:    tester,
		Name:      name,
		Success:   true,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// Fail builds a failed result. err may be nil when the message carries the
// whole story.
func Fail(tester, name string, err error, format string, args ...any) Result {
	r := Result{
		Tester:    tester,
		Name:      name,
		Success:   false,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
	if err != nil {
		r.ErrorDetail = err.Error()
	}
	return r
}

// Summary aggregates the results of one harness run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Host      string        `json:"host"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Results   []Result      `json:"results"`
}

// Passed counts successful results.
func (s *Summary) Passed() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed counts failed results.
func (s *Summary) Failed() int { return len(s.Results) - s.Passed() }

// Ok reports whether every result passed.
func (s *Summary) Ok() bool { return s.Failed() == 0 }
