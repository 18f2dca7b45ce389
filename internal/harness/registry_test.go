package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTester struct{ name string }

func (s *stubTester) Name() string                 { return s.name }
func (s *stubTester) Run(context.Context) []Result { return nil }

func registerStub(name string, cat Category) {
	Register(Entry{
		Name:     name,
		Category: cat,
		New:      func(*Env) Tester { return &stubTester{name: name} },
	})
}

func init() {
	registerStub("alpha", CategoryNetwork)
	registerStub("bravo", CategoryNetwork)
	registerStub("charlie", CategoryPower)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { registerStub("alpha", CategoryNetwork) })
}

func TestLookup_NormalizesName(t *testing.T) {
	e, ok := Lookup("  Alpha ")
	require.True(t, ok)
	assert.Equal(t, "alpha", e.Name)

	_, ok = Lookup("missing")
	assert.False(t, ok)
}

func TestAll_SortedByCategoryThenName(t *testing.T) {
	var names []string
	for _, e := range All() {
		names = append(names, e.Name)
	}
	// network sorts before power.
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names)
}

func TestResolve(t *testing.T) {
	entries, err := Resolve([]string{"charlie", "alpha"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "charlie", entries[0].Name)
	assert.Equal(t, "alpha", entries[1].Name)
}

func TestResolve_ExpandsCategoryAndAll(t *testing.T) {
	entries, err := Resolve([]string{"network"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = Resolve([]string{"all"})
	require.NoError(t, err)
	assert.Len(t, entries, len(All()))
}

func TestResolve_DropsDuplicates(t *testing.T) {
	entries, err := Resolve([]string{"alpha", "network", "alpha"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "bravo", entries[1].Name)
}

func TestResolve_UnknownName(t *testing.T) {
	_, err := Resolve([]string{"alpha", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`)
}

func TestSummaryCounts(t *testing.T) {
	s := Summary{Results: []Result{
		Pass("t", "a", "fine"),
		Fail("t", "b", errors.New("boom"), "broken"),
		Pass("t", "c", "fine"),
	}}
	assert.Equal(t, 2, s.Passed())
	assert.Equal(t, 1, s.Failed())
	assert.False(t, s.Ok())

	empty := Summary{}
	assert.True(t, empty.Ok())
}

func TestResultConstructors(t *testing.T) {
	p := Pass("net", "static-ip", "confirmed %s", "192.168.1.5")
	assert.True(t, p.Success)
	assert.Equal(t, "confirmed 192.168.1.5", p.Message)
	assert.False(t, p.Timestamp.IsZero())

	f := Fail("net", "static-ip", errors.New("timeout"), "not confirmed")
	assert.False(t, f.Success)
	assert.Equal(t, "timeout", f.ErrorDetail)

	f2 := Fail("net", "static-ip", nil, "rejected")
	assert.Empty(t, f2.ErrorDetail)
}
