package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/iokuper/bmcqa/internal/harness"
)

// PrintSummary renders the per-check result table followed by totals.
func PrintSummary(w io.Writer, s *harness.Summary) {
	table := tablewriter.NewTable(w)
	table.Header("Tester", "Check", "Status", "Duration", "Message")
	for _, r := range s.Results {
		status := "PASS"
		if !r.Success {
			status = "FAIL"
		}
		table.Append(r.Tester, r.Name, status, r.Duration.Round(time.Millisecond).String(), r.Message)
	}
	table.Render()

	fmt.Fprintf(w, "\n%d passed, %d failed in %s\n",
		s.Passed(), s.Failed(), s.Duration.Round(time.Millisecond))
}

// PrintTesterList renders the registry for the list command.
func PrintTesterList(w io.Writer, entries []harness.Entry) {
	table := tablewriter.NewTable(w)
	table.Header("Name", "Category", "Description")
	for _, e := range entries {
		table.Append(e.Name, string(e.Category), e.Description)
	}
	table.Render()
}

// PrintNumberedTesterList renders the registry with menu numbers.
func PrintNumberedTesterList(w io.Writer, entries []harness.Entry) {
	table := tablewriter.NewTable(w)
	table.Header("#", "Name", "Category", "Description")
	for i, e := range entries {
		table.Append(strconv.Itoa(i+1), e.Name, string(e.Category), e.Description)
	}
	table.Render()
}
