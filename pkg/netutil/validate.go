package netutil

import (
	"fmt"
	"net"
	"strings"
)

// ValidIPv4 reports whether s parses as a dotted-quad IPv4 address.
func ValidIPv4(s string) bool {
	ip := net.ParseIP(strings.TrimSpace(s))
	return ip != nil && ip.To4() != nil
}

// ValidNetmask reports whether s is a contiguous IPv4 subnet mask
// (e.g. 255.255.255.0). Non-contiguous masks are rejected.
func ValidNetmask(s string) bool {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	mask := net.IPv4Mask(v4[0], v4[1], v4[2], v4[3])
	// Size returns 0,0 for non-contiguous masks; a /0 mask is useless for
	// BMC configuration and is rejected as well.
	ones, bits := mask.Size()
	return bits == 32 && ones > 0
}

// NetmaskToCIDR converts a dotted-quad mask to its prefix length.
func NetmaskToCIDR(s string) (int, error) {
	if !ValidNetmask(s) {
		return 0, fmt.Errorf("invalid netmask %q", s)
	}
	v4 := net.ParseIP(strings.TrimSpace(s)).To4()
	ones, _ := net.IPv4Mask(v4[0], v4[1], v4[2], v4[3]).Size()
	return ones, nil
}

// CIDRToNetmask converts a prefix length to a dotted-quad mask.
func CIDRToNetmask(prefix int) (string, error) {
	if prefix < 0 || prefix > 32 {
		return "", fmt.Errorf("invalid prefix length %d", prefix)
	}
	mask := net.CIDRMask(prefix, 32)
	return net.IP(mask).String(), nil
}

// MACOptions controls which categories of MAC address are acceptable.
type MACOptions struct {
	AllowBroadcast bool
	AllowMulticast bool
	AllowZero      bool
}

// ValidateMAC checks syntax and category of a MAC address. The broadcast
// address and multicast group addresses are rejected unless the options say
// otherwise, since a BMC with a broadcast MAC is unreachable.
func ValidateMAC(s string, opts MACOptions) error {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	if len(hw) != 6 {
		return fmt.Errorf("invalid MAC address %q: expected 48-bit address", s)
	}

	allFF, allZero := true, true
	for _, b := range hw {
		if b != 0xFF {
			allFF = false
		}
		if b != 0x00 {
			allZero = false
		}
	}
	if allFF && !opts.AllowBroadcast {
		return fmt.Errorf("broadcast MAC address %q not allowed", s)
	}
	if allZero && !opts.AllowZero {
		return fmt.Errorf("zero MAC address %q not allowed", s)
	}
	if hw[0]&0x01 == 1 && !allFF && !opts.AllowMulticast {
		return fmt.Errorf("multicast MAC address %q not allowed", s)
	}
	return nil
}

// ValidateHostname applies the RFC 1123 host name rules: 1-63 character
// labels of letters, digits and hyphens, no leading or trailing hyphen,
// total length at most 253.
func ValidateHostname(s string) error {
	name := strings.TrimSpace(s)
	if name == "" {
		return fmt.Errorf("hostname is empty")
	}
	if len(name) > 253 {
		return fmt.Errorf("hostname %q exceeds 253 characters", name)
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return fmt.Errorf("hostname %q contains an empty label", name)
		}
		if len(label) > 63 {
			return fmt.Errorf("hostname label %q exceeds 63 characters", label)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("hostname label %q starts or ends with a hyphen", label)
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return fmt.Errorf("hostname label %q contains invalid character %q", label, r)
			}
		}
	}
	return nil
}

// ValidateVLANID checks the 802.1Q usable range.
func ValidateVLANID(id int) error {
	if id < 1 || id > 4094 {
		return fmt.Errorf("VLAN id %d out of range 1-4094", id)
	}
	return nil
}
