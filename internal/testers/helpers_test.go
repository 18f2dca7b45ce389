package testers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iokuper/bmcqa/pkg/ipmi"
)

func TestParseChronyOffset(t *testing.T) {
	// chronyc -c tracking: refid, name, stratum, reftime, offset, ...
	const tracking = "A29FC87B,162.159.200.123,3,1741946400.123,-0.000012345,0.000456,..."

	off, err := parseChronyOffset(tracking)
	require.NoError(t, err)
	assert.InDelta(t, float64(12345*time.Nanosecond), float64(off), 10)
	assert.True(t, off > 0, "offset magnitude, sign dropped")
}

func TestParseChronyOffset_Errors(t *testing.T) {
	_, err := parseChronyOffset("short,output")
	assert.Error(t, err)

	_, err = parseChronyOffset("a,b,c,d,not-a-number,f")
	assert.Error(t, err)
}

func TestSameServers(t *testing.T) {
	assert.True(t, sameServers([]string{"pool.ntp.org", " 10.0.0.1"}, []string{"POOL.NTP.ORG", "10.0.0.1"}))
	assert.False(t, sameServers([]string{"pool.ntp.org"}, []string{"pool.ntp.org", "10.0.0.1"}))
	assert.False(t, sameServers([]string{"a"}, []string{"b"}))
	assert.True(t, sameServers(nil, nil))
}

func TestRulePresent(t *testing.T) {
	rules := []string{
		"-P INPUT ACCEPT",
		"-A INPUT -s 10.0.0.5/32 -i eth0 -j DROP",
		"-A INPUT -s 10.0.0.50/32 -j ACCEPT",
	}
	assert.True(t, rulePresent(rules, "10.0.0.5"))
	// Prefix of a longer address must not match.
	assert.False(t, rulePresent(rules, "10.0.0"))
	// ACCEPT rule for the address is not a drop rule.
	assert.False(t, rulePresent(rules, "10.0.0.50"))
	assert.False(t, rulePresent(nil, "10.0.0.5"))
}

func TestFlagSensors(t *testing.T) {
	sensors := []ipmi.SensorReading{
		{Name: "CPU Temp", Status: "ok"},
		{Name: "FAN1", Status: "ns"},
		{Name: "FAN2", Status: "na"},
		{Name: "PSU1", Status: ""},
		{Name: "VBAT", Status: "cr"},
		{Name: "12V", Status: "nr"},
	}
	bad := flagSensors(sensors)
	assert.Equal(t, []string{"VBAT=cr", "12V=nr"}, bad)

	assert.Empty(t, flagSensors(nil))
}

func TestIperfSummaryDecoding(t *testing.T) {
	const doc = `{
		"end": {"sum_received": {"bits_per_second": 941300000.5}}
	}`
	var sum iperfSummary
	require.NoError(t, json.Unmarshal([]byte(doc), &sum))
	assert.InDelta(t, 941.3, sum.End.SumReceived.BitsPerSecond/1e6, 0.01)
	assert.Empty(t, sum.Error)

	var failed iperfSummary
	require.NoError(t, json.Unmarshal([]byte(`{"error": "unable to connect"}`), &failed))
	assert.Equal(t, "unable to connect", failed.Error)
}

func TestCPUBusyPercent(t *testing.T) {
	// user nice system idle iowait irq softirq: 100 busy jiffies against
	// 900 idle ones across the window.
	before := "cpu  100 0 50 1000 100 0 0 0 0 0"
	after := "cpu  150 0 100 1850 150 0 0 0 0 0"

	busy, err := cpuBusyPercent(before, after)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, busy, 0.01)
}

func TestCPUBusyPercent_Errors(t *testing.T) {
	_, err := cpuBusyPercent("cpu0 1 2 3 4 5", "cpu0 2 3 4 5 6")
	assert.Error(t, err, "per-core lines are not the aggregate")

	_, err = cpuBusyPercent("cpu 1 2 3 4 5", "cpu 1 2 3 4 5")
	assert.Error(t, err, "counters that did not advance have no window")

	_, err = cpuBusyPercent("cpu a b c d e", "cpu 1 2 3 4 5")
	assert.Error(t, err)
}
