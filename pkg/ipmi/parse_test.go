package ipmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lanPrintFixture mirrors real Supermicro X11 output, including the
// continuation lines that must not confuse the parser.
const lanPrintFixture = `Set in Progress         : Set Complete
Auth Type Support       : MD5 PASSWORD
Auth Type Enable        : Callback : MD5 PASSWORD
IP Address Source       : Static Address
IP Address              : 192.168.10.50
Subnet Mask             : 255.255.255.0
MAC Address             : 00:25:90:AB:CD:EF
SNMP Community String   : public
BMC ARP Control         : ARP Responses Enabled, Gratuitous ARP Disabled
Default Gateway IP      : 192.168.10.1
Default Gateway MAC     : 00:00:00:00:00:00
802.1q VLAN ID          : Disabled
802.1q VLAN Priority    : 0
RMCP+ Cipher Suites     : 1,2,3,6,7,8,11,12
Cipher Suite Priv Max   : XaaaXXaaaXXaaXX
DNS Server 1            : 8.8.8.8
DNS Server 2            :
`

func TestParseLANPrint(t *testing.T) {
	cfg := ParseLANPrint(lanPrintFixture)

	assert.Equal(t, "Static Address", cfg.IPSource)
	assert.Equal(t, "192.168.10.50", cfg.IPAddress)
	assert.Equal(t, "255.255.255.0", cfg.SubnetMask)
	assert.Equal(t, "192.168.10.1", cfg.DefaultGateway)
	assert.Equal(t, "00:25:90:AB:CD:EF", cfg.MACAddress, "MAC colons must survive the split")
	assert.Equal(t, "Disabled", cfg.VLANID)
	assert.Equal(t, "8.8.8.8", cfg.DNS1)
	assert.Equal(t, "", cfg.DNS2)

	assert.False(t, cfg.DHCPEnabled())
	assert.False(t, cfg.VLANEnabled())
}

func TestParseLANPrint_DHCP(t *testing.T) {
	cfg := ParseLANPrint("IP Address Source       : DHCP Address\nIP Address              : 10.1.2.3\n")
	assert.True(t, cfg.DHCPEnabled())
}

func TestLANConfigSnapshot(t *testing.T) {
	snap := ParseLANPrint(lanPrintFixture).Snapshot()

	assert.Equal(t, "192.168.10.50", snap["IP Address"])
	assert.Equal(t, "255.255.255.0", snap["Subnet Mask"])
	assert.Equal(t, "192.168.10.1", snap["Default Gateway"])
	assert.Equal(t, "00:25:90:ab:cd:ef", snap["MAC Address"], "snapshot normalizes MAC to lowercase")
	assert.Equal(t, "0", snap["VLAN ID"], "disabled VLAN reads as 0")
	assert.Equal(t, "8.8.8.8", snap["Primary DNS"])
	assert.Equal(t, "", snap["Secondary DNS"])
}

func TestVLANEnabled(t *testing.T) {
	assert.True(t, (&LANConfig{VLANID: "100"}).VLANEnabled())
	assert.False(t, (&LANConfig{VLANID: "Disabled"}).VLANEnabled())
	assert.False(t, (&LANConfig{VLANID: "0"}).VLANEnabled())
	assert.False(t, (&LANConfig{VLANID: ""}).VLANEnabled())
}

func TestParseColonFields_SkipsNoise(t *testing.T) {
	fields := ParseColonFields("no colon here\n\nKey : Value\n   : orphan value\n")
	require.Len(t, fields, 1)
	assert.Equal(t, "Value", fields["Key"])
}

const sensorFixture = `CPU Temp         | 45.000     | degrees C  | ok    | 0.000     | 0.000     | 0.000     | 95.000    | 100.000   | 100.000
System Temp      | 28.000     | degrees C  | ok    | -9.000    | -7.000    | -5.000    | 80.000    | 85.000    | 90.000
FAN1             | 4200.000   | RPM        | ok    | 300.000   | 500.000   | 700.000   | 25300.000 | 25400.000 | 25500.000
PS1 Status       | 0x1        | discrete   | 0x0100| na        | na        | na        | na        | na        | na
VBAT             | na         |            | ns    | na        | na        | na        | na        | na        | na
`

func TestParseSensorList(t *testing.T) {
	readings := ParseSensorList(sensorFixture)
	require.Len(t, readings, 5)

	assert.Equal(t, "CPU Temp", readings[0].Name)
	assert.Equal(t, "ok", readings[0].Status)

	v, ok := readings[0].NumericValue()
	require.True(t, ok)
	assert.InDelta(t, 45.0, v, 0.001)

	_, ok = readings[4].NumericValue()
	assert.False(t, ok, "na readings carry no number")
}
