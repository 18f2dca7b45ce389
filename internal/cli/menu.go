package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iokuper/bmcqa/internal/harness"
	"github.com/iokuper/bmcqa/internal/report"
)

// parseSelection resolves one menu input line into tester names. Tokens may
// be menu numbers, tester names, category names or "all", separated by
// spaces or commas. An empty line selects nothing.
func parseSelection(line string, entries []harness.Entry) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	var names []string
	tokens := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' })
	for _, tok := range tokens {
		if n, err := strconv.Atoi(tok); err == nil {
			if n < 1 || n > len(entries) {
				return nil, fmt.Errorf("no menu entry numbered %d", n)
			}
			names = append(names, entries[n-1].Name)
			continue
		}
		names = append(names, tok)
	}
	return names, nil
}

// parseIterations reads the iteration prompt. An empty line keeps the
// default; anything else must be a count between 1 and 10.
func parseIterations(line string, def int) (int, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > 10 {
		return 0, fmt.Errorf("iterations must be a number between 1 and 10")
	}
	return n, nil
}

// confirmed accepts y/yes in any case.
func confirmed(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// menuSelect shows the numbered tester menu, prompts for iterations and a
// confirmation, and returns the chosen names and count. Errors out when
// stdin is not a terminal so scripted runs fail fast instead of hanging.
func menuSelect(cmd *cobra.Command, defaultIterations int) ([]string, int, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, 0, fmt.Errorf("no testers named and stdin is not a terminal; try 'bmcqa run all'")
	}

	out := cmd.OutOrStdout()
	entries := harness.All()
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprintf(out, "Target: %s\n\n", cfg.Network.Host)
	report.PrintNumberedTesterList(out, entries)
	fmt.Fprint(out, "\nSelect testers by number, name or category, or \"all\" (empty to quit): ")

	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, 0, fmt.Errorf("read selection: %w", err)
	}
	names, err := parseSelection(line, entries)
	if err != nil {
		return nil, 0, err
	}
	if len(names) == 0 {
		return nil, 0, nil
	}

	// Resolve now so typos surface before the iteration prompt.
	resolved, err := harness.Resolve(names)
	if err != nil {
		return nil, 0, err
	}

	fmt.Fprintf(out, "Iterations 1-10 [%d]: ", defaultIterations)
	line, err = reader.ReadString('\n')
	if err != nil {
		return nil, 0, fmt.Errorf("read iterations: %w", err)
	}
	iters, err := parseIterations(line, defaultIterations)
	if err != nil {
		return nil, 0, err
	}

	var chosen []string
	for _, e := range resolved {
		chosen = append(chosen, e.Name)
	}
	fmt.Fprintf(out, "Run %s x%d against %s? [y/N]: ", strings.Join(chosen, ", "), iters, cfg.Network.Host)
	line, err = reader.ReadString('\n')
	if err != nil {
		return nil, 0, fmt.Errorf("read confirmation: %w", err)
	}
	if !confirmed(line) {
		return nil, 0, nil
	}
	return names, iters, nil
}
