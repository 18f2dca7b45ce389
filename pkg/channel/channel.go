// Package channel defines the common vocabulary shared by the three BMC
// control planes (IPMI, Redfish, SSH): normalized settings snapshots and
// the cross-channel agreement check.
package channel

import (
	"fmt"
	"strings"
)

// Name identifies one of the independent ways to observe or mutate the
// managed device.
type Name string

const (
	IPMI    Name = "ipmi"
	Redfish Name = "redfish"
	SSH     Name = "ssh"
)

// Snapshot maps a human-readable setting key (e.g. "IP Address") to the
// value observed through one channel at one point in time.
type Snapshot map[string]string

// Clone returns a copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Matches reports whether every key present in target has the same value in
// s. Transitional values in s are treated as "not yet applied" rather than
// a mismatch; the caller keeps polling.
func (s Snapshot) Matches(target Snapshot) (bool, string) {
	for k, want := range target {
		got := s[k]
		if Transitional(got) || got != want {
			return false, fmt.Sprintf("%s is %q, want %q", k, got, want)
		}
	}
	return true, ""
}

// CrossChannel holds one snapshot per channel for a single verification.
type CrossChannel map[Name]Snapshot

// Transitional reports whether a probed value means the BMC has not yet
// committed a change. Empty strings and the zero address show up while the
// firmware is mid-apply.
func Transitional(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "0.0.0.0":
		return true
	}
	return false
}
