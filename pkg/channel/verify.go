package channel

import "fmt"

// EmptySnapshotError indicates a channel probe returned nothing; the whole
// verification fails fast rather than comparing against a blank record.
type EmptySnapshotError struct {
	Channel Name
}

func (e *EmptySnapshotError) Error() string {
	return fmt.Sprintf("channel %s returned an empty snapshot", e.Channel)
}

// MismatchError reports a key whose value differs between channels.
type MismatchError struct {
	Key    string
	Values map[Name]string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("channels disagree on %q: %v", e.Key, e.Values)
}

// Verify checks that all channels agree on every key of interest. A key
// passes when the set of distinct non-transitional values across channels
// has cardinality at most one. Channels that do not report a key at all are
// skipped for that key.
func Verify(cc CrossChannel, keys []string) error {
	for name, snap := range cc {
		if len(snap) == 0 {
			return &EmptySnapshotError{Channel: name}
		}
	}

	for _, key := range keys {
		values := make(map[Name]string)
		distinct := make(map[string]struct{})
		for name, snap := range cc {
			v, ok := snap[key]
			if !ok {
				continue
			}
			values[name] = v
			if !Transitional(v) {
				distinct[v] = struct{}{}
			}
		}
		if len(distinct) > 1 {
			return &MismatchError{Key: key, Values: values}
		}
	}
	return nil
}
