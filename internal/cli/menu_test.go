package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iokuper/bmcqa/internal/harness"
)

func menuEntries() []harness.Entry {
	return []harness.Entry{
		{Name: "dns", Category: harness.CategoryNetwork},
		{Name: "network", Category: harness.CategoryNetwork},
		{Name: "power", Category: harness.CategoryPower},
	}
}

func TestParseSelection_Numbers(t *testing.T) {
	names, err := parseSelection("1 3", menuEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"dns", "power"}, names)
}

func TestParseSelection_MixedNamesAndNumbers(t *testing.T) {
	names, err := parseSelection("network, 3", menuEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"network", "power"}, names)
}

func TestParseSelection_All(t *testing.T) {
	names, err := parseSelection("all", menuEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, names)
}

func TestParseSelection_EmptySelectsNothing(t *testing.T) {
	names, err := parseSelection("  \n", menuEntries())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestParseSelection_NumberOutOfRange(t *testing.T) {
	_, err := parseSelection("4", menuEntries())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "numbered 4")

	_, err = parseSelection("0", menuEntries())
	require.Error(t, err)
}

func TestParseIterations(t *testing.T) {
	cases := []struct {
		line    string
		def     int
		want    int
		wantErr bool
	}{
		{"", 1, 1, false},
		{"\n", 3, 3, false},
		{"5", 1, 5, false},
		{"10", 1, 10, false},
		{"0", 1, 0, true},
		{"11", 1, 0, true},
		{"many", 1, 0, true},
	}
	for _, tc := range cases {
		got, err := parseIterations(tc.line, tc.def)
		if tc.wantErr {
			assert.Error(t, err, "line %q", tc.line)
			continue
		}
		require.NoError(t, err, "line %q", tc.line)
		assert.Equal(t, tc.want, got, "line %q", tc.line)
	}
}

func TestConfirmed(t *testing.T) {
	assert.True(t, confirmed("y\n"))
	assert.True(t, confirmed("YES"))
	assert.False(t, confirmed(""))
	assert.False(t, confirmed("n"))
	assert.False(t, confirmed("sure"))
}
