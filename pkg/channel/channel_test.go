package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitional(t *testing.T) {
	assert.True(t, Transitional(""))
	assert.True(t, Transitional("0.0.0.0"))
	assert.True(t, Transitional("  0.0.0.0  "))
	assert.False(t, Transitional("192.168.1.1"))
	assert.False(t, Transitional("0"))
}

func TestSnapshotMatches(t *testing.T) {
	s := Snapshot{
		"IP Address":  "10.0.0.5",
		"Subnet Mask": "255.255.255.0",
	}

	ok, _ := s.Matches(Snapshot{"IP Address": "10.0.0.5"})
	assert.True(t, ok)

	ok, diff := s.Matches(Snapshot{"IP Address": "10.0.0.6"})
	assert.False(t, ok)
	assert.Contains(t, diff, "IP Address")

	// Keys absent from the target are not compared.
	ok, _ = s.Matches(Snapshot{})
	assert.True(t, ok)
}

func TestSnapshotMatches_TransitionalNeverSatisfies(t *testing.T) {
	s := Snapshot{"IP Address": "0.0.0.0"}
	ok, _ := s.Matches(Snapshot{"IP Address": "0.0.0.0"})
	assert.False(t, ok, "a mid-transition reading must not count as applied")
}

func TestSnapshotClone(t *testing.T) {
	s := Snapshot{"IP Address": "10.0.0.5"}
	c := s.Clone()
	c["IP Address"] = "10.0.0.6"
	assert.Equal(t, "10.0.0.5", s["IP Address"])
}

func TestVerify_Agreement(t *testing.T) {
	cc := CrossChannel{
		IPMI:    Snapshot{"IP Address": "10.0.0.5", "VLAN ID": "0"},
		Redfish: Snapshot{"IP Address": "10.0.0.5", "VLAN ID": "0"},
		SSH:     Snapshot{"IP Address": "10.0.0.5"},
	}
	require.NoError(t, Verify(cc, []string{"IP Address", "VLAN ID"}))
}

func TestVerify_Mismatch(t *testing.T) {
	cc := CrossChannel{
		IPMI:    Snapshot{"IP Address": "10.0.0.5"},
		Redfish: Snapshot{"IP Address": "10.0.0.6"},
	}
	err := Verify(cc, []string{"IP Address"})
	require.Error(t, err)

	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "IP Address", mismatch.Key)
	assert.Len(t, mismatch.Values, 2)
}

func TestVerify_TransitionalValuesDoNotConflict(t *testing.T) {
	cc := CrossChannel{
		IPMI:    Snapshot{"Default Gateway": "10.0.0.1"},
		Redfish: Snapshot{"Default Gateway": "0.0.0.0"},
		SSH:     Snapshot{"Default Gateway": ""},
	}
	require.NoError(t, Verify(cc, []string{"Default Gateway"}))
}

func TestVerify_EmptySnapshotFailsFast(t *testing.T) {
	cc := CrossChannel{
		IPMI:    Snapshot{"IP Address": "10.0.0.5"},
		Redfish: Snapshot{},
	}
	err := Verify(cc, []string{"IP Address"})
	require.Error(t, err)

	var empty *EmptySnapshotError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, Redfish, empty.Channel)
}

func TestVerify_MissingKeySkipsChannel(t *testing.T) {
	cc := CrossChannel{
		IPMI:    Snapshot{"IP Address": "10.0.0.5", "VLAN ID": "100"},
		Redfish: Snapshot{"IP Address": "10.0.0.5"},
	}
	require.NoError(t, Verify(cc, []string{"IP Address", "VLAN ID"}))
}
