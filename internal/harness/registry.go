package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Category groups testers for menu display and bulk selection.
type Category string

const (
	CategoryNetwork Category = "network"
	CategorySystem  Category = "system"
	CategoryPower   Category = "power"
	CategoryLoad    Category = "load"
)

// Tester is one named test scenario against the device under test.
type Tester interface {
	// Name is the registry key, also used on the command line.
	Name() string
	// Run executes the scenario and returns one result per check.
	Run(ctx context.Context) []Result
}

// Entry describes a registered tester and how to build it.
type Entry struct {
	Name        string
	Description string
	Category    Category
	New         func(env *Env) Tester
}

var registry = map[string]Entry{}

// Register adds a tester to the global registry. Called from init in the
// tester packages; duplicate names are a programming error.
func Register(e Entry) {
	if _, dup := registry[e.Name]; dup {
		panic(fmt.Sprintf("tester %q registered twice", e.Name))
	}
	registry[e.Name] = e
}

// Lookup finds a registered tester entry by name.
func Lookup(name string) (Entry, bool) {
	e, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// All returns every registered entry sorted by category then name.
func All() []Entry {
	out := make([]Entry, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ByCategory returns entries in one category, sorted by name.
func ByCategory(c Category) []Entry {
	var out []Entry
	for _, e := range All() {
		if e.Category == c {
			out = append(out, e)
		}
	}
	return out
}

// Resolve expands a list of tester or category names into entries,
// preserving order and dropping duplicates. The special name "all" selects
// everything.
func Resolve(names []string) ([]Entry, error) {
	seen := map[string]bool{}
	var out []Entry
	add := func(e Entry) {
		if !seen[e.Name] {
			seen[e.Name] = true
			out = append(out, e)
		}
	}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "all" {
			for _, e := range All() {
				add(e)
			}
			continue
		}
		if e, ok := Lookup(name); ok {
			add(e)
			continue
		}
		matched := false
		for _, e := range ByCategory(Category(name)) {
			add(e)
			matched = true
		}
		if !matched {
			return nil, fmt.Errorf("unknown tester or category %q", name)
		}
	}
	return out, nil
}
