// Package redfish is the HTTP adapter for the BMC's Redfish API: service
// root discovery, manager NIC configuration with ETag-conditional PATCH,
// network protocol settings and system power actions.
package redfish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client handles Redfish BMC communications for a single endpoint.
type Client struct {
	endpoint   string
	username   string
	password   string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a client for https://host[:port]. BMCs almost always
// present self-signed certificates, so verification is off unless asked for.
func NewClient(endpoint, username, password string, verifyTLS bool) *Client {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !verifyTLS,
			},
		},
	}

	return &Client{
		endpoint:   normalizeEndpoint(endpoint),
		username:   username,
		password:   password,
		httpClient: httpClient,
		timeout:    10 * time.Second,
	}
}

// Endpoint returns the base endpoint currently in use.
func (c *Client) Endpoint() string { return c.endpoint }

// SetEndpoint repoints the client after the BMC moved to a new address.
func (c *Client) SetEndpoint(endpoint string) {
	log.Info().Str("old", c.endpoint).Str("new", endpoint).Msg("Repointing Redfish client to new BMC address")
	c.endpoint = normalizeEndpoint(endpoint)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var req *http.Request
	var err error
	url := BuildRedfishURL(c.endpoint, path)
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// get fetches a resource and decodes it into target, returning the ETag.
func (c *Client) get(ctx context.Context, path string, target interface{}) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewHTTPError(resp.StatusCode, resp.Status, "GET "+path)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	return resp.Header.Get("ETag"), nil
}

// patch sends a conditional PATCH with If-Match when an ETag is known. A
// 412 means the resource changed under us: refetch the ETag once and retry.
func (c *Client) patch(ctx context.Context, path string, payload interface{}, etag string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		req, err := c.newRequest(ctx, http.MethodPatch, path, body)
		if err != nil {
			return err
		}
		if etag != "" {
			req.Header.Set("If-Match", etag)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("PATCH %s: %w", path, err)
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusPreconditionFailed && attempt == 0 {
			log.Debug().Str("path", path).Msg("ETag stale, refetching before retry")
			etag, err = c.get(ctx, path, nil)
			if err != nil {
				return fmt.Errorf("failed to refresh ETag: %w", err)
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return NewHTTPError(resp.StatusCode, resp.Status, "PATCH "+path)
		}
		return nil
	}
	return fmt.Errorf("PATCH %s: precondition kept failing", path)
}

// IsAccessible checks if the Redfish service root answers at all.
func (c *Client) IsAccessible(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(reqCtx, http.MethodGet, "/redfish/v1/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Str("endpoint", c.endpoint).Err(err).Msg("Redfish connection failed")
		return false
	}
	defer resp.Body.Close()

	return (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusUnauthorized
}

// GetServiceRoot fetches the service root document.
func (c *Client) GetServiceRoot(ctx context.Context) (*ServiceRoot, error) {
	var root ServiceRoot
	if _, err := c.get(ctx, "/redfish/v1/", &root); err != nil {
		return nil, fmt.Errorf("failed to get service root: %w", err)
	}
	return &root, nil
}

// FirstManagerPath walks the Managers collection and returns the resource
// path of the first manager (the BMC).
func (c *Client) FirstManagerPath(ctx context.Context) (string, error) {
	var collection Collection
	if _, err := c.get(ctx, "/redfish/v1/Managers", &collection); err != nil {
		return "", fmt.Errorf("failed to get managers collection: %w", err)
	}
	if len(collection.Members) == 0 {
		return "", fmt.Errorf("no managers found")
	}
	return collection.Members[0].ODataID, nil
}

// GetManager fetches a manager resource by path.
func (c *Client) GetManager(ctx context.Context, path string) (*Manager, error) {
	var manager Manager
	if _, err := c.get(ctx, path, &manager); err != nil {
		return nil, fmt.Errorf("failed to get manager: %w", err)
	}
	return &manager, nil
}

// ListEthernetInterfacePaths returns the resource paths of all NICs on the
// manager.
func (c *Client) ListEthernetInterfacePaths(ctx context.Context, managerPath string) ([]string, error) {
	manager, err := c.GetManager(ctx, managerPath)
	if err != nil {
		return nil, err
	}
	if manager.EthernetInterfaces.ODataID == "" {
		return nil, fmt.Errorf("manager %s exposes no ethernet interfaces", manager.ID)
	}

	var collection Collection
	if _, err := c.get(ctx, manager.EthernetInterfaces.ODataID, &collection); err != nil {
		return nil, fmt.Errorf("failed to get ethernet interfaces collection: %w", err)
	}

	paths := make([]string, 0, len(collection.Members))
	for _, m := range collection.Members {
		paths = append(paths, m.ODataID)
	}
	return paths, nil
}

// GetEthernetInterface fetches one NIC resource along with its ETag.
func (c *Client) GetEthernetInterface(ctx context.Context, path string) (*EthernetInterface, string, error) {
	var iface EthernetInterface
	etag, err := c.get(ctx, path, &iface)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get ethernet interface: %w", err)
	}
	return &iface, etag, nil
}

// PatchEthernetInterface applies a settings change to a NIC with
// ETag-conditional semantics.
func (c *Client) PatchEthernetInterface(ctx context.Context, path string, payload interface{}, etag string) error {
	return c.patch(ctx, path, payload, etag)
}

// SetStaticIPv4 reconfigures a NIC to a static address. DHCP is disabled in
// the same PATCH so firmware does not fight over the address origin.
func (c *Client) SetStaticIPv4(ctx context.Context, path, ip, mask, gateway string) error {
	_, etag, err := c.GetEthernetInterface(ctx, path)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"DHCPv4": map[string]interface{}{"DHCPEnabled": false},
		"IPv4StaticAddresses": []map[string]string{{
			"Address":    ip,
			"SubnetMask": mask,
			"Gateway":    gateway,
		}},
	}
	return c.patch(ctx, path, payload, etag)
}

// EnableDHCPv4 switches a NIC to DHCP addressing.
func (c *Client) EnableDHCPv4(ctx context.Context, path string) error {
	_, etag, err := c.GetEthernetInterface(ctx, path)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"DHCPv4": map[string]interface{}{"DHCPEnabled": true},
	}
	return c.patch(ctx, path, payload, etag)
}

// SetNameServers writes the static DNS server list of a NIC.
func (c *Client) SetNameServers(ctx context.Context, path string, servers []string) error {
	_, etag, err := c.GetEthernetInterface(ctx, path)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"StaticNameServers": servers,
	}
	return c.patch(ctx, path, payload, etag)
}

// SetHostName writes the host name of a NIC.
func (c *Client) SetHostName(ctx context.Context, path, hostname string) error {
	_, etag, err := c.GetEthernetInterface(ctx, path)
	if err != nil {
		return err
	}
	return c.patch(ctx, path, map[string]string{"HostName": hostname}, etag)
}

// SetVLAN configures 802.1q tagging on a NIC; enable=false clears the tag.
func (c *Client) SetVLAN(ctx context.Context, path string, enable bool, id int) error {
	_, etag, err := c.GetEthernetInterface(ctx, path)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"VLAN": map[string]interface{}{
			"VLANEnable": enable,
			"VLANId":     id,
		},
	}
	return c.patch(ctx, path, payload, etag)
}

// SetMACAddress reprograms the NIC MAC address.
func (c *Client) SetMACAddress(ctx context.Context, path, mac string) error {
	_, etag, err := c.GetEthernetInterface(ctx, path)
	if err != nil {
		return err
	}
	return c.patch(ctx, path, map[string]string{"MACAddress": mac}, etag)
}

// SetInterfaceEnabled toggles a NIC up or down.
func (c *Client) SetInterfaceEnabled(ctx context.Context, path string, enabled bool) error {
	_, etag, err := c.GetEthernetInterface(ctx, path)
	if err != nil {
		return err
	}
	return c.patch(ctx, path, map[string]bool{"InterfaceEnabled": enabled}, etag)
}

// GetNetworkProtocol fetches the manager's protocol configuration.
func (c *Client) GetNetworkProtocol(ctx context.Context, managerPath string) (*NetworkProtocol, string, error) {
	manager, err := c.GetManager(ctx, managerPath)
	if err != nil {
		return nil, "", err
	}
	if manager.NetworkProtocol.ODataID == "" {
		return nil, "", fmt.Errorf("manager %s exposes no network protocol resource", manager.ID)
	}
	var np NetworkProtocol
	etag, err := c.get(ctx, manager.NetworkProtocol.ODataID, &np)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get network protocol: %w", err)
	}
	return &np, etag, nil
}

// SetNTPServers writes the NTP server list on the manager.
func (c *Client) SetNTPServers(ctx context.Context, managerPath string, servers []string) error {
	manager, err := c.GetManager(ctx, managerPath)
	if err != nil {
		return err
	}
	_, etag, err := c.GetNetworkProtocol(ctx, managerPath)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"NTP": map[string]interface{}{
			"ProtocolEnabled": true,
			"NTPServers":      servers,
		},
	}
	return c.patch(ctx, manager.NetworkProtocol.ODataID, payload, etag)
}

// SetSNMPEnabled toggles the manager's SNMP agent.
func (c *Client) SetSNMPEnabled(ctx context.Context, managerPath string, enabled bool, port int) error {
	manager, err := c.GetManager(ctx, managerPath)
	if err != nil {
		return err
	}
	_, etag, err := c.GetNetworkProtocol(ctx, managerPath)
	if err != nil {
		return err
	}
	snmp := map[string]interface{}{"ProtocolEnabled": enabled}
	if port > 0 {
		snmp["Port"] = port
	}
	return c.patch(ctx, manager.NetworkProtocol.ODataID, map[string]interface{}{"SNMP": snmp}, etag)
}

// firstSystem walks the Systems collection and fetches the first member.
func (c *Client) firstSystem(ctx context.Context) (*ComputerSystem, error) {
	var collection Collection
	if _, err := c.get(ctx, "/redfish/v1/Systems", &collection); err != nil {
		return nil, fmt.Errorf("failed to get systems collection: %w", err)
	}
	if len(collection.Members) == 0 {
		return nil, fmt.Errorf("no computer systems found")
	}
	var system ComputerSystem
	if _, err := c.get(ctx, collection.Members[0].ODataID, &system); err != nil {
		return nil, fmt.Errorf("failed to get computer system: %w", err)
	}
	return &system, nil
}

// GetPowerState retrieves the current power state of the server.
func (c *Client) GetPowerState(ctx context.Context) (PowerState, error) {
	system, err := c.firstSystem(ctx)
	if err != nil {
		return PowerStateUnknown, err
	}
	return system.PowerState, nil
}

// GetSystemInfo returns the first system's inventory fields.
func (c *Client) GetSystemInfo(ctx context.Context) (*ComputerSystem, error) {
	return c.firstSystem(ctx)
}

// Reset issues a ComputerSystem.Reset action (On, ForceOff, PowerCycle,
// ForceRestart, GracefulShutdown).
func (c *Client) Reset(ctx context.Context, resetType string) error {
	system, err := c.firstSystem(ctx)
	if err != nil {
		return err
	}
	target := system.Actions.ComputerSystemReset.Target
	if target == "" {
		return fmt.Errorf("system %s exposes no reset action", system.ID)
	}

	body, err := json.Marshal(map[string]string{"ResetType": resetType})
	if err != nil {
		return fmt.Errorf("failed to marshal reset payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, target, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reset action: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewHTTPError(resp.StatusCode, resp.Status, "reset "+resetType)
	}

	log.Debug().Str("reset", resetType).Msg("Power action completed")
	return nil
}
