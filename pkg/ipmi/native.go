package ipmi

import (
	"context"
	"fmt"

	goipmi "github.com/bougou/go-ipmi"
	"github.com/rs/zerolog/log"
)

// NativeClient wraps the go-ipmi LAN client for the operations where the
// library is more reliable than shelling out: chassis status and device
// identification. Each call brackets its own session.
type NativeClient struct {
	host     string
	port     int
	username string
	password string
}

// NewNativeClient builds a native IPMI client for the standard RMCP+ port.
func NewNativeClient(host, username, password string) *NativeClient {
	return &NativeClient{
		host:     host,
		port:     623,
		username: username,
		password: password,
	}
}

// SetHost repoints the client after a BMC address change.
func (c *NativeClient) SetHost(host string) { c.host = host }

func (c *NativeClient) connect(ctx context.Context) (*goipmi.Client, error) {
	client, err := goipmi.NewClient(c.host, c.port, c.username, c.password)
	if err != nil {
		return nil, fmt.Errorf("failed to create IPMI client: %w", err)
	}
	client.WithInterface(goipmi.InterfaceLanplus)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to open IPMI session: %w", err)
	}
	return client, nil
}

// ChassisPowerOn reports whether the chassis reports power on.
func (c *NativeClient) ChassisPowerOn(ctx context.Context) (bool, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := client.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close IPMI session")
		}
	}()

	status, err := client.GetChassisStatus(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get chassis status: %w", err)
	}
	return status.PowerIsOn, nil
}

// DeviceInfo returns firmware and manufacturer identification from the
// Get Device ID command.
func (c *NativeClient) DeviceInfo(ctx context.Context) (map[string]string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close IPMI session")
		}
	}()

	dev, err := client.GetDeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device id: %w", err)
	}

	return map[string]string{
		"Firmware Revision": fmt.Sprintf("%d.%d", dev.MajorFirmwareRevision, dev.MinorFirmwareRevision),
		"Manufacturer ID":   fmt.Sprintf("%d", dev.ManufacturerID),
		"Product ID":        fmt.Sprintf("%d", dev.ProductID),
	}, nil
}
