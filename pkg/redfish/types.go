package redfish

// PowerState represents the power state of a server.
type PowerState string

const (
	PowerStateOn      PowerState = "On"
	PowerStateOff     PowerState = "Off"
	PowerStateUnknown PowerState = "Unknown"
)

// ODataRef is a bare @odata.id reference.
type ODataRef struct {
	ODataID string `json:"@odata.id"`
}

// Collection is a Redfish resource collection body.
type Collection struct {
	Members []ODataRef `json:"Members"`
}

// ServiceRoot represents the Redfish service root response.
type ServiceRoot struct {
	ID             string   `json:"Id"`
	Name           string   `json:"Name"`
	RedfishVersion string   `json:"RedfishVersion"`
	UUID           string   `json:"UUID"`
	Systems        ODataRef `json:"Systems"`
	Managers       ODataRef `json:"Managers"`
	Chassis        ODataRef `json:"Chassis"`
}

// Status is the common Redfish status block.
type Status struct {
	State  string `json:"State"`
	Health string `json:"Health"`
}

// Manager represents a Redfish Manager (the BMC itself).
type Manager struct {
	ID                 string   `json:"Id"`
	Name               string   `json:"Name"`
	ManagerType        string   `json:"ManagerType"`
	Model              string   `json:"Model"`
	FirmwareVersion    string   `json:"FirmwareVersion"`
	Manufacturer       string   `json:"Manufacturer"`
	Status             Status   `json:"Status"`
	EthernetInterfaces ODataRef `json:"EthernetInterfaces"`
	NetworkProtocol    ODataRef `json:"NetworkProtocol"`
}

// IPv4Address is one address entry on an EthernetInterface.
type IPv4Address struct {
	Address       string `json:"Address,omitempty"`
	SubnetMask    string `json:"SubnetMask,omitempty"`
	Gateway       string `json:"Gateway,omitempty"`
	AddressOrigin string `json:"AddressOrigin,omitempty"`
}

// VLANInfo is the 802.1q block of an EthernetInterface.
type VLANInfo struct {
	VLANEnable bool `json:"VLANEnable"`
	VLANID     int  `json:"VLANId"`
}

// DHCPv4Config is the DHCPv4 block of an EthernetInterface.
type DHCPv4Config struct {
	DHCPEnabled bool `json:"DHCPEnabled"`
}

// EthernetInterface represents one manager NIC.
type EthernetInterface struct {
	ID                  string        `json:"Id"`
	Name                string        `json:"Name"`
	HostName            string        `json:"HostName"`
	FQDN                string        `json:"FQDN"`
	MACAddress          string        `json:"MACAddress"`
	InterfaceEnabled    *bool         `json:"InterfaceEnabled"`
	LinkStatus          string        `json:"LinkStatus"`
	Status              Status        `json:"Status"`
	NameServers         []string      `json:"NameServers"`
	StaticNameServers   []string      `json:"StaticNameServers"`
	IPv4Addresses       []IPv4Address `json:"IPv4Addresses"`
	IPv4StaticAddresses []IPv4Address `json:"IPv4StaticAddresses"`
	IPv6Addresses       []struct {
		Address       string `json:"Address"`
		PrefixLength  int    `json:"PrefixLength"`
		AddressOrigin string `json:"AddressOrigin"`
	} `json:"IPv6Addresses"`
	VLAN   VLANInfo     `json:"VLAN"`
	DHCPv4 DHCPv4Config `json:"DHCPv4"`
}

// NTPProtocol is the NTP block of the manager network protocol resource.
type NTPProtocol struct {
	ProtocolEnabled bool     `json:"ProtocolEnabled"`
	NTPServers      []string `json:"NTPServers"`
}

// SNMPProtocol is the SNMP block of the manager network protocol resource.
type SNMPProtocol struct {
	ProtocolEnabled bool `json:"ProtocolEnabled"`
	Port            int  `json:"Port"`
}

// NetworkProtocol represents the manager's protocol configuration.
type NetworkProtocol struct {
	ID       string       `json:"Id"`
	Name     string       `json:"Name"`
	HostName string       `json:"HostName"`
	FQDN     string       `json:"FQDN"`
	Status   Status       `json:"Status"`
	NTP      NTPProtocol  `json:"NTP"`
	SNMP     SNMPProtocol `json:"SNMP"`
	HTTP     struct {
		ProtocolEnabled bool `json:"ProtocolEnabled"`
		Port            int  `json:"Port"`
	} `json:"HTTP"`
	HTTPS struct {
		ProtocolEnabled bool `json:"ProtocolEnabled"`
		Port            int  `json:"Port"`
	} `json:"HTTPS"`
	SSH struct {
		ProtocolEnabled bool `json:"ProtocolEnabled"`
		Port            int  `json:"Port"`
	} `json:"SSH"`
	IPMI struct {
		ProtocolEnabled bool `json:"ProtocolEnabled"`
		Port            int  `json:"Port"`
	} `json:"IPMI"`
}

// ComputerSystem represents a Redfish computer system.
type ComputerSystem struct {
	ID           string     `json:"Id"`
	Name         string     `json:"Name"`
	Manufacturer string     `json:"Manufacturer"`
	Model        string     `json:"Model"`
	SerialNumber string     `json:"SerialNumber"`
	HostName     string     `json:"HostName"`
	BiosVersion  string     `json:"BiosVersion"`
	PowerState   PowerState `json:"PowerState"`
	Status       Status     `json:"Status"`
	Actions      struct {
		ComputerSystemReset struct {
			Target                   string   `json:"target"`
			ResetTypeAllowableValues []string `json:"ResetType@Redfish.AllowableValues"`
		} `json:"#ComputerSystem.Reset"`
	} `json:"Actions"`
}
