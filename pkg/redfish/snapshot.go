package redfish

import (
	"strconv"
	"strings"

	"github.com/iokuper/bmcqa/pkg/channel"
)

// Snapshot converts a NIC resource into the normalized record the
// cross-channel verifier consumes. Keys line up with the IPMI and SSH
// probes for the same settings.
func (e *EthernetInterface) Snapshot() channel.Snapshot {
	snap := channel.Snapshot{
		"MAC Address": strings.ToLower(e.MACAddress),
		"Hostname":    e.HostName,
	}

	if len(e.IPv4Addresses) > 0 {
		addr := e.IPv4Addresses[0]
		snap["IP Address"] = addr.Address
		snap["Subnet Mask"] = addr.SubnetMask
		snap["Default Gateway"] = addr.Gateway
	}

	if len(e.NameServers) > 0 {
		snap["Primary DNS"] = e.NameServers[0]
	} else {
		snap["Primary DNS"] = ""
	}
	if len(e.NameServers) > 1 {
		snap["Secondary DNS"] = e.NameServers[1]
	} else {
		snap["Secondary DNS"] = ""
	}

	if e.VLAN.VLANEnable {
		snap["VLAN ID"] = strconv.Itoa(e.VLAN.VLANID)
	} else {
		snap["VLAN ID"] = "0"
	}

	return snap
}

// ActiveIPv4 returns the first configured IPv4 address, if any.
func (e *EthernetInterface) ActiveIPv4() string {
	if len(e.IPv4Addresses) > 0 {
		return e.IPv4Addresses[0].Address
	}
	return ""
}

// ActiveMask returns the netmask of the first configured IPv4 address.
func (e *EthernetInterface) ActiveMask() string {
	if len(e.IPv4Addresses) > 0 {
		return e.IPv4Addresses[0].SubnetMask
	}
	return ""
}

// ActiveGateway returns the gateway of the first configured IPv4 address.
func (e *EthernetInterface) ActiveGateway() string {
	if len(e.IPv4Addresses) > 0 {
		return e.IPv4Addresses[0].Gateway
	}
	return ""
}
