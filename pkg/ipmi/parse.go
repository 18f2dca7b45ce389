package ipmi

import (
	"strconv"
	"strings"

	"github.com/iokuper/bmcqa/pkg/channel"
)

// LANConfig is the typed view of "ipmitool lan print" output. Raw keeps
// every parsed field for settings the struct does not model.
type LANConfig struct {
	IPSource       string
	IPAddress      string
	SubnetMask     string
	DefaultGateway string
	MACAddress     string
	VLANID         string
	VLANPriority   string
	DNS1           string
	DNS2           string
	Raw            map[string]string
}

// ParseColonFields splits colon-delimited "key : value" lines into a map.
// Continuation lines without a colon are ignored.
func ParseColonFields(output string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key != "" {
			fields[key] = value
		}
	}
	return fields
}

// ParseLANPrint builds a LANConfig from raw lan print output. SplitN keeps
// MAC addresses and IPv6 values intact despite their embedded colons.
func ParseLANPrint(output string) *LANConfig {
	raw := ParseColonFields(output)

	cfg := &LANConfig{
		IPSource:       raw["IP Address Source"],
		IPAddress:      raw["IP Address"],
		SubnetMask:     raw["Subnet Mask"],
		DefaultGateway: raw["Default Gateway IP"],
		MACAddress:     raw["MAC Address"],
		VLANID:         raw["802.1q VLAN ID"],
		VLANPriority:   raw["802.1q VLAN Priority"],
		DNS1:           raw["DNS Server 1"],
		DNS2:           raw["DNS Server 2"],
		Raw:            raw,
	}
	return cfg
}

// DHCPEnabled reports whether the channel gets its address from DHCP.
func (c *LANConfig) DHCPEnabled() bool {
	return strings.Contains(strings.ToLower(c.IPSource), "dhcp")
}

// VLANEnabled reports whether 802.1q tagging is active.
func (c *LANConfig) VLANEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(c.VLANID))
	return v != "" && v != "disabled" && v != "0"
}

// Snapshot converts the typed config into the normalized record the
// cross-channel verifier consumes.
func (c *LANConfig) Snapshot() channel.Snapshot {
	return channel.Snapshot{
		"IP Address":      c.IPAddress,
		"Subnet Mask":     c.SubnetMask,
		"Default Gateway": c.DefaultGateway,
		"MAC Address":     strings.ToLower(c.MACAddress),
		"VLAN ID":         normalizeVLAN(c.VLANID),
		"Primary DNS":     c.DNS1,
		"Secondary DNS":   c.DNS2,
	}
}

func normalizeVLAN(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "Disabled") {
		return "0"
	}
	return v
}

// SensorReading is one row of "ipmitool sensor list".
type SensorReading struct {
	Name   string
	Value  string
	Unit   string
	Status string
}

// ParseSensorList parses the pipe-delimited sensor table.
func ParseSensorList(output string) []SensorReading {
	var readings []SensorReading
	for _, line := range strings.Split(output, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) < 4 {
			continue
		}
		r := SensorReading{
			Name:   strings.TrimSpace(parts[0]),
			Value:  strings.TrimSpace(parts[1]),
			Unit:   strings.TrimSpace(parts[2]),
			Status: strings.TrimSpace(parts[3]),
		}
		if r.Name != "" {
			readings = append(readings, r)
		}
	}
	return readings
}

// NumericValue parses the reading as a float where the sensor reports one.
func (r SensorReading) NumericValue() (float64, bool) {
	v, err := strconv.ParseFloat(r.Value, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
