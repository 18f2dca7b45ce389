package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIPv4(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"192.168.1.1", true},
		{"0.0.0.0", true},
		{" 10.0.0.5 ", true},
		{"255.255.255.255", true},
		{"256.1.1.1", false},
		{"10.0.0", false},
		{"fe80::1", false},
		{"", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidIPv4(tt.in), "input %q", tt.in)
	}
}

func TestValidNetmask(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"255.255.255.0", true},
		{"255.255.254.0", true},
		{"255.255.255.255", true},
		{"255.255.255.1", false}, // non-contiguous
		{"255.0.255.0", false},   // non-contiguous
		{"0.0.0.0", false},       // /0 is useless for a BMC
		{"garbage", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidNetmask(tt.in), "input %q", tt.in)
	}
}

func TestNetmaskCIDRConversion(t *testing.T) {
	prefix, err := NetmaskToCIDR("255.255.255.0")
	require.NoError(t, err)
	assert.Equal(t, 24, prefix)

	mask, err := CIDRToNetmask(24)
	require.NoError(t, err)
	assert.Equal(t, "255.255.255.0", mask)

	_, err = NetmaskToCIDR("255.255.255.1")
	assert.Error(t, err)

	_, err = CIDRToNetmask(33)
	assert.Error(t, err)
}

func TestValidateMAC(t *testing.T) {
	var none MACOptions

	assert.NoError(t, ValidateMAC("00:25:90:aa:bb:cc", none))
	assert.NoError(t, ValidateMAC("00-25-90-AA-BB-CC", none))

	assert.Error(t, ValidateMAC("not-a-mac", none))
	assert.Error(t, ValidateMAC("00:25:90:aa:bb", none))

	// Broadcast, zero and multicast are policy decisions.
	assert.Error(t, ValidateMAC("ff:ff:ff:ff:ff:ff", none))
	assert.NoError(t, ValidateMAC("ff:ff:ff:ff:ff:ff", MACOptions{AllowBroadcast: true}))

	assert.Error(t, ValidateMAC("00:00:00:00:00:00", none))
	assert.NoError(t, ValidateMAC("00:00:00:00:00:00", MACOptions{AllowZero: true}))

	assert.Error(t, ValidateMAC("01:00:5e:00:00:01", none))
	assert.NoError(t, ValidateMAC("01:00:5e:00:00:01", MACOptions{AllowMulticast: true}))
}

func TestValidateHostname(t *testing.T) {
	assert.NoError(t, ValidateHostname("bmc-lab-42"))
	assert.NoError(t, ValidateHostname("bmc.example.com"))
	assert.NoError(t, ValidateHostname("a"))

	assert.Error(t, ValidateHostname(""))
	assert.Error(t, ValidateHostname("-leading"))
	assert.Error(t, ValidateHostname("trailing-"))
	assert.Error(t, ValidateHostname("under_score"))
	assert.Error(t, ValidateHostname("double..dot"))

	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateHostname(string(long)))
}

func TestValidateVLANID(t *testing.T) {
	assert.NoError(t, ValidateVLANID(1))
	assert.NoError(t, ValidateVLANID(100))
	assert.NoError(t, ValidateVLANID(4094))

	assert.Error(t, ValidateVLANID(0))
	assert.Error(t, ValidateVLANID(4095))
	assert.Error(t, ValidateVLANID(-1))
}
