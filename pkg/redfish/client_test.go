package redfish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockBMC builds a minimal Redfish tree: service root, one manager with
// one NIC and a network protocol resource, one system with a reset action.
func newMockBMC(t *testing.T) (*httptest.Server, *mockState) {
	t.Helper()

	state := &mockState{
		etag: `"v1"`,
		nic: map[string]interface{}{
			"Id":         "eth0",
			"MACAddress": "00:25:90:AB:CD:EF",
			"HostName":   "bmc-lab-1",
			"IPv4Addresses": []map[string]string{{
				"Address":    "192.168.10.50",
				"SubnetMask": "255.255.255.0",
				"Gateway":    "192.168.10.1",
			}},
			"VLAN": map[string]interface{}{"VLANEnable": false, "VLANId": 0},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/redfish/v1/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"Id":             "RootService",
			"RedfishVersion": "1.9.0",
			"Managers":       map[string]string{"@odata.id": "/redfish/v1/Managers"},
			"Systems":        map[string]string{"@odata.id": "/redfish/v1/Systems"},
		})
	})
	mux.HandleFunc("/redfish/v1/Managers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"Members": []map[string]string{{"@odata.id": "/redfish/v1/Managers/1"}},
		})
	})
	mux.HandleFunc("/redfish/v1/Managers/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"Id":                 "1",
			"ManagerType":        "BMC",
			"FirmwareVersion":    "3.88",
			"Status":             map[string]string{"State": "Enabled", "Health": "OK"},
			"EthernetInterfaces": map[string]string{"@odata.id": "/redfish/v1/Managers/1/EthernetInterfaces"},
			"NetworkProtocol":    map[string]string{"@odata.id": "/redfish/v1/Managers/1/NetworkProtocol"},
		})
	})
	mux.HandleFunc("/redfish/v1/Managers/1/EthernetInterfaces", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"Members": []map[string]string{{"@odata.id": "/redfish/v1/Managers/1/EthernetInterfaces/eth0"}},
		})
	})
	mux.HandleFunc("/redfish/v1/Managers/1/EthernetInterfaces/eth0", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", state.etag)
			writeJSON(w, state.nic)
		case http.MethodPatch:
			state.patches++
			if r.Header.Get("If-Match") != state.etag {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			state.lastPatch = payload
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/redfish/v1/Managers/1/NetworkProtocol", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", state.etag)
		writeJSON(w, map[string]interface{}{
			"Id":  "NetworkProtocol",
			"NTP": map[string]interface{}{"ProtocolEnabled": true, "NTPServers": []string{"pool.ntp.org"}},
			"SNMP": map[string]interface{}{
				"ProtocolEnabled": false, "Port": 161,
			},
		})
	})
	mux.HandleFunc("/redfish/v1/Systems", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"Members": []map[string]string{{"@odata.id": "/redfish/v1/Systems/1"}},
		})
	})
	mux.HandleFunc("/redfish/v1/Systems/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"Id":         "1",
			"Name":       "System",
			"PowerState": "On",
			"Actions": map[string]interface{}{
				"#ComputerSystem.Reset": map[string]interface{}{
					"target": "/redfish/v1/Systems/1/Actions/ComputerSystem.Reset",
				},
			},
		})
	})
	mux.HandleFunc("/redfish/v1/Systems/1/Actions/ComputerSystem.Reset", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		state.lastReset = payload["ResetType"]
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/redfish/v1/SessionService/Sessions", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		state.sessionUser = creds["UserName"]
		w.Header().Set("X-Auth-Token", "tok-12345")
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{
			"@odata.id": "/redfish/v1/SessionService/Sessions/42",
			"Id":        "42",
		})
	})
	mux.HandleFunc("/redfish/v1/SessionService/Sessions/42", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			state.deletedToken = r.Header.Get("X-Auth-Token")
			w.WriteHeader(http.StatusNoContent)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, state
}

type mockState struct {
	etag         string
	nic          map[string]interface{}
	lastPatch    map[string]interface{}
	lastReset    string
	patches      int
	sessionUser  string
	deletedToken string
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, "admin", "secret", false)
}

func TestDiscovery(t *testing.T) {
	srv, _ := newMockBMC(t)
	c := newTestClient(srv)
	ctx := context.Background()

	assert.True(t, c.IsAccessible(ctx))

	root, err := c.GetServiceRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.9.0", root.RedfishVersion)

	mgrPath, err := c.FirstManagerPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/redfish/v1/Managers/1", mgrPath)

	paths, err := c.ListEthernetInterfacePaths(ctx, mgrPath)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	iface, etag, err := c.GetEthernetInterface(ctx, paths[0])
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, etag)
	assert.Equal(t, "00:25:90:AB:CD:EF", iface.MACAddress)
}

func TestSetStaticIPv4_SinglePatchDisablesDHCP(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)

	err := c.SetStaticIPv4(context.Background(),
		"/redfish/v1/Managers/1/EthernetInterfaces/eth0",
		"192.168.10.60", "255.255.255.0", "192.168.10.1")
	require.NoError(t, err)

	// DHCP off and the static address must land in the same PATCH.
	require.NotNil(t, state.lastPatch)
	dhcp := state.lastPatch["DHCPv4"].(map[string]interface{})
	assert.Equal(t, false, dhcp["DHCPEnabled"])
	addrs := state.lastPatch["IPv4StaticAddresses"].([]interface{})
	require.Len(t, addrs, 1)
	assert.Equal(t, "192.168.10.60", addrs[0].(map[string]interface{})["Address"])
}

func TestEnableDHCPv4_Payload(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)

	err := c.EnableDHCPv4(context.Background(), "/redfish/v1/Managers/1/EthernetInterfaces/eth0")
	require.NoError(t, err)

	require.NotNil(t, state.lastPatch)
	dhcp := state.lastPatch["DHCPv4"].(map[string]interface{})
	assert.Equal(t, true, dhcp["DHCPEnabled"])
	assert.NotContains(t, state.lastPatch, "IPv4StaticAddresses")
}

func TestSetNameServers_Payload(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)

	err := c.SetNameServers(context.Background(),
		"/redfish/v1/Managers/1/EthernetInterfaces/eth0", []string{"8.8.8.8", "8.8.4.4"})
	require.NoError(t, err)

	require.NotNil(t, state.lastPatch)
	servers := state.lastPatch["StaticNameServers"].([]interface{})
	require.Len(t, servers, 2)
	assert.Equal(t, "8.8.8.8", servers[0])
	assert.Equal(t, "8.8.4.4", servers[1])
}

func TestSetHostName_Payload(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)

	err := c.SetHostName(context.Background(),
		"/redfish/v1/Managers/1/EthernetInterfaces/eth0", "bmc-lab-42")
	require.NoError(t, err)

	require.NotNil(t, state.lastPatch)
	assert.Equal(t, "bmc-lab-42", state.lastPatch["HostName"])
}

func TestSetVLAN_Payload(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)

	err := c.SetVLAN(context.Background(),
		"/redfish/v1/Managers/1/EthernetInterfaces/eth0", true, 100)
	require.NoError(t, err)

	require.NotNil(t, state.lastPatch)
	vlan := state.lastPatch["VLAN"].(map[string]interface{})
	assert.Equal(t, true, vlan["VLANEnable"])
	assert.Equal(t, float64(100), vlan["VLANId"])

	// Clearing the tag disables tagging instead of writing id 0.
	err = c.SetVLAN(context.Background(),
		"/redfish/v1/Managers/1/EthernetInterfaces/eth0", false, 0)
	require.NoError(t, err)
	vlan = state.lastPatch["VLAN"].(map[string]interface{})
	assert.Equal(t, false, vlan["VLANEnable"])
}

func TestSetMACAddress_Payload(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)

	err := c.SetMACAddress(context.Background(),
		"/redfish/v1/Managers/1/EthernetInterfaces/eth0", "00:25:90:aa:bb:cc")
	require.NoError(t, err)

	require.NotNil(t, state.lastPatch)
	assert.Equal(t, "00:25:90:aa:bb:cc", state.lastPatch["MACAddress"])
}

func TestPatch_RetriesOnceOnStaleETag(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)

	// Client fetched under "v1"; rotate the ETag so the first PATCH hits 412.
	path := "/redfish/v1/Managers/1/EthernetInterfaces/eth0"
	_, staleTag, err := c.GetEthernetInterface(context.Background(), path)
	require.NoError(t, err)
	state.etag = `"v2"`

	err = c.patch(context.Background(), path, map[string]string{"HostName": "renamed"}, staleTag)
	require.NoError(t, err)
	assert.Equal(t, 2, state.patches, "one stale attempt, one retry with the fresh ETag")
	assert.Equal(t, "renamed", state.lastPatch["HostName"])
}

func TestNetworkProtocolAndNTP(t *testing.T) {
	srv, _ := newMockBMC(t)
	c := newTestClient(srv)
	ctx := context.Background()

	np, _, err := c.GetNetworkProtocol(ctx, "/redfish/v1/Managers/1")
	require.NoError(t, err)
	assert.True(t, np.NTP.ProtocolEnabled)
	assert.Equal(t, []string{"pool.ntp.org"}, np.NTP.NTPServers)
	assert.False(t, np.SNMP.ProtocolEnabled)
}

func TestPowerStateAndReset(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)
	ctx := context.Background()

	ps, err := c.GetPowerState(ctx)
	require.NoError(t, err)
	assert.Equal(t, PowerStateOn, ps)

	require.NoError(t, c.Reset(ctx, "ForceRestart"))
	assert.Equal(t, "ForceRestart", state.lastReset)
}

func TestSessionLifecycle(t *testing.T) {
	srv, state := newMockBMC(t)
	c := newTestClient(srv)
	ctx := context.Background()

	sess, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-12345", sess.Token)
	assert.Equal(t, "/redfish/v1/SessionService/Sessions/42", sess.URI)
	assert.Equal(t, "admin", state.sessionUser)

	require.NoError(t, c.DeleteSession(ctx, sess))
	assert.Equal(t, "tok-12345", state.deletedToken)
}

func TestHTTPErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(srv)
	_, err := c.GetServiceRoot(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsRejected(err))
}

func TestSnapshot(t *testing.T) {
	srv, _ := newMockBMC(t)
	c := newTestClient(srv)

	iface, _, err := c.GetEthernetInterface(context.Background(), "/redfish/v1/Managers/1/EthernetInterfaces/eth0")
	require.NoError(t, err)

	snap := iface.Snapshot()
	assert.Equal(t, "192.168.10.50", snap["IP Address"])
	assert.Equal(t, "255.255.255.0", snap["Subnet Mask"])
	assert.Equal(t, "192.168.10.1", snap["Default Gateway"])
	assert.Equal(t, "00:25:90:ab:cd:ef", snap["MAC Address"])
	assert.Equal(t, "bmc-lab-1", snap["Hostname"])
	assert.Equal(t, "0", snap["VLAN ID"])
}
