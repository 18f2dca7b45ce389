package ipmi

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and replays canned responses.
type fakeRunner struct {
	calls     [][]string
	stdout    string
	stderr    string
	err       error
	failFirst bool // fail the lanplus attempt, succeed on the lan retry
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.failFirst && len(f.calls) == 1 {
		return "", "Error: Unable to establish IPMI v2 / RMCP+ session", errors.New("exit status 1")
	}
	return f.stdout, f.stderr, f.err
}

func newTestClient(r Runner) *Client {
	return NewClient("192.168.10.50", "admin", "hunter2", "1", WithRunner(r))
}

func TestClientRun_SessionArguments(t *testing.T) {
	fake := &fakeRunner{stdout: lanPrintFixture}
	c := newTestClient(fake)

	_, err := c.LANPrint(context.Background())
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, "ipmitool", call[0])
	assert.Equal(t, []string{"-I", "lanplus", "-H", "192.168.10.50", "-U", "admin", "-P", "hunter2"}, call[1:9])
	assert.Equal(t, []string{"lan", "print", "1"}, call[9:])
}

func TestClientRun_FallsBackToLegacyLan(t *testing.T) {
	fake := &fakeRunner{stdout: lanPrintFixture, failFirst: true}
	c := newTestClient(fake)

	_, err := c.LANPrint(context.Background())
	require.NoError(t, err)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, "lanplus", fake.calls[0][2])
	assert.Equal(t, "lan", fake.calls[1][2])
}

func TestClientRun_ErrorOmitsPassword(t *testing.T) {
	fake := &fakeRunner{stderr: "Error: Unable to establish", err: errors.New("exit status 1")}
	c := newTestClient(fake)

	_, err := c.LANPrint(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, []string{"lan", "print", "1"}, cmdErr.Args)
}

func TestSetStaticIP_CommandSequence(t *testing.T) {
	fake := &fakeRunner{}
	c := newTestClient(fake)

	err := c.SetStaticIP(context.Background(), "192.168.10.60", "255.255.255.0", "192.168.10.1")
	require.NoError(t, err)

	require.Len(t, fake.calls, 4)
	// Source must flip to static before the address lands.
	assert.Equal(t, []string{"lan", "set", "1", "ipsrc", "static"}, fake.calls[0][9:])
	assert.Equal(t, []string{"lan", "set", "1", "ipaddr", "192.168.10.60"}, fake.calls[1][9:])
	assert.Equal(t, []string{"lan", "set", "1", "netmask", "255.255.255.0"}, fake.calls[2][9:])
	assert.Equal(t, []string{"lan", "set", "1", "defgw", "ipaddr", "192.168.10.1"}, fake.calls[3][9:])
}

func TestSetVLAN(t *testing.T) {
	fake := &fakeRunner{}
	c := newTestClient(fake)

	require.NoError(t, c.SetVLAN(context.Background(), 100, 3))
	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"lan", "set", "1", "vlan", "id", "100"}, fake.calls[0][9:])
	assert.Equal(t, []string{"lan", "set", "1", "vlan", "priority", "3"}, fake.calls[1][9:])

	fake.calls = nil
	require.NoError(t, c.SetVLAN(context.Background(), 0, 0))
	require.Len(t, fake.calls, 1, "disabling tagging must not touch priority")
	assert.Equal(t, []string{"lan", "set", "1", "vlan", "id", "off"}, fake.calls[0][9:])
}

func TestPowerStatus(t *testing.T) {
	fake := &fakeRunner{stdout: "Chassis Power is on"}
	c := newTestClient(fake)

	state, err := c.PowerStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "on", state)

	fake.stdout = "Chassis Power is off"
	state, err = c.PowerStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "off", state)
}

func TestPowerControl_RejectsUnknownAction(t *testing.T) {
	fake := &fakeRunner{}
	c := newTestClient(fake)

	err := c.PowerControl(context.Background(), "explode")
	require.Error(t, err)
	assert.Empty(t, fake.calls, "invalid actions must never reach the subprocess")
}

func TestSetHost(t *testing.T) {
	fake := &fakeRunner{stdout: "ok"}
	c := newTestClient(fake)

	c.SetHost("192.168.10.99")
	assert.Equal(t, "192.168.10.99", c.Host())

	_, err := c.GetHostname(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(strings.Join(fake.calls[0], " "), "192.168.10.99"))
}

func TestCheckPrivilege(t *testing.T) {
	fake := &fakeRunner{stdout: "Maximum User Privilege Level : ADMINISTRATOR\n"}
	c := newTestClient(fake)

	ok, err := c.CheckPrivilege(context.Background(), "ADMINISTRATOR")
	require.NoError(t, err)
	assert.True(t, ok)

	fake.stdout = "Maximum User Privilege Level : USER\n"
	ok, err = c.CheckPrivilege(context.Background(), "ADMINISTRATOR")
	require.NoError(t, err)
	assert.False(t, ok)
}
