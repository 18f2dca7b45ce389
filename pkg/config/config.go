// Package config loads the harness configuration and resolves encrypted
// credentials. The configuration is constructed once and passed by
// reference; there is no process-wide cache.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config is the root configuration object. Every tester receives a pointer
// to it together with the channel clients built from it.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Network  NetworkConfig  `mapstructure:"network"`
	IPMI     IPMIConfig     `mapstructure:"ipmi"`
	SSH      SSHConfig      `mapstructure:"ssh"`
	Redfish  RedfishConfig  `mapstructure:"redfish"`
	DNS      DNSConfig      `mapstructure:"dns"`
	NTP      NTPConfig      `mapstructure:"ntp"`
	VLAN     VLANConfig     `mapstructure:"vlan"`
	MAC      MACConfig      `mapstructure:"mac"`
	Hostname HostnameConfig `mapstructure:"hostname"`
	IPFilter IPFilterConfig `mapstructure:"ipfilter"`
	Power    PowerConfig    `mapstructure:"power"`
	Load     LoadConfig     `mapstructure:"load"`
	SNMP     SNMPConfig     `mapstructure:"snmp"`
	Report   ReportConfig   `mapstructure:"report"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ConfigureZerolog applies the configured level globally.
func (c *LogConfig) ConfigureZerolog() {
	level := zerolog.InfoLevel
	switch strings.ToLower(c.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)
}

// NetworkConfig holds the BMC address, the LAN channel under test and the
// shared retry/poll policy, plus the static values the network testers push.
type NetworkConfig struct {
	Host              string        `mapstructure:"host"`
	Channel           string        `mapstructure:"channel"`
	DefaultSubnetMask string        `mapstructure:"default_subnet_mask"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	VerifyTimeout     time.Duration `mapstructure:"verify_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RetryCount        int           `mapstructure:"retry_count"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`

	StaticIP      string `mapstructure:"static_ip"`
	StaticMask    string `mapstructure:"static_mask"`
	StaticGateway string `mapstructure:"static_gateway"`

	InvalidIPs      []string `mapstructure:"invalid_ips"`
	InvalidMasks    []string `mapstructure:"invalid_masks"`
	InvalidGateways []string `mapstructure:"invalid_gateways"`
}

// IPMIConfig holds credentials for the IPMI channel.
type IPMIConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SSHConfig holds the host-OS SSH endpoint and credentials.
type SSHConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Interface string        `mapstructure:"interface"`

	// TestIP is a scratch CIDR the host round trip may add and remove on
	// the interface. Empty skips that check.
	TestIP string `mapstructure:"test_ip"`
}

// RedfishConfig holds the Redfish endpoint and credentials.
type RedfishConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	VerifySSL bool          `mapstructure:"verify_ssl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Endpoint returns the https base endpoint, host:port.
func (c *RedfishConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DNSConfig parameterizes the DNS round trip.
type DNSConfig struct {
	Primary          string   `mapstructure:"primary"`
	Secondary        string   `mapstructure:"secondary"`
	TestDomains      []string `mapstructure:"test_domains"`
	VerifyResolution bool     `mapstructure:"verify_resolution"`
	CheckBothServers bool     `mapstructure:"check_both_servers"`
	InvalidServers   []string `mapstructure:"invalid_servers"`
}

// NTPConfig parameterizes the NTP testers.
type NTPConfig struct {
	Servers        []string      `mapstructure:"servers"`
	MaxOffset      time.Duration `mapstructure:"max_offset"`
	SyncWait       time.Duration `mapstructure:"sync_wait"`
	InvalidServers []string      `mapstructure:"invalid_servers"`
}

// VLANConfig parameterizes the VLAN round trip.
type VLANConfig struct {
	ID         int   `mapstructure:"id"`
	Priority   int   `mapstructure:"priority"`
	InvalidIDs []int `mapstructure:"invalid_ids"`
}

// MACConfig parameterizes the MAC round trip.
type MACConfig struct {
	TestMAC        string   `mapstructure:"test_mac"`
	AllowBroadcast bool     `mapstructure:"allow_broadcast"`
	AllowMulticast bool     `mapstructure:"allow_multicast"`
	InvalidMACs    []string `mapstructure:"invalid_macs"`
}

// HostnameConfig parameterizes the hostname round trip.
type HostnameConfig struct {
	TestHostname     string   `mapstructure:"test_hostname"`
	InvalidHostnames []string `mapstructure:"invalid_hostnames"`
}

// IPFilterConfig parameterizes the IP filtering tester.
type IPFilterConfig struct {
	BlockedIPs   []string `mapstructure:"blocked_ips"`
	AllowedIPs   []string `mapstructure:"allowed_ips"`
	ProbePorts   []int    `mapstructure:"probe_ports"`
	FlushOnStart bool     `mapstructure:"flush_on_start"`
}

// PowerConfig parameterizes the power state tester.
type PowerConfig struct {
	StateTimeout time.Duration `mapstructure:"state_timeout"`
	BootWait     time.Duration `mapstructure:"boot_wait"`
}

// LoadConfig parameterizes the iperf3 load tester.
type LoadConfig struct {
	ServerPort    int           `mapstructure:"server_port"`
	Duration      time.Duration `mapstructure:"duration"`
	Parallel      int           `mapstructure:"parallel"`
	MinMbps       float64       `mapstructure:"min_mbps"`
	MaxCPUPercent float64       `mapstructure:"max_cpu_percent"`
}

// SNMPConfig parameterizes the SNMP tester.
type SNMPConfig struct {
	Community string `mapstructure:"community"`
	Port      int    `mapstructure:"port"`
}

// ReportConfig controls report and history output.
type ReportConfig struct {
	Dir       string `mapstructure:"dir"`
	HistoryDB string `mapstructure:"history_db"`
}

// Load reads the configuration file, applies defaults and environment
// overrides (BMCQA_ prefix), validates required fields and resolves any
// ENC[...] credentials through the secret provider.
func Load(path string, secrets SecretProvider) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.bmcqa")
	}

	v.SetEnvPrefix("BMCQA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Redfish and SSH usually share the BMC address.
	if cfg.Redfish.Host == "" {
		cfg.Redfish.Host = cfg.Network.Host
	}
	if cfg.SSH.Host == "" {
		cfg.SSH.Host = cfg.Network.Host
	}

	if err := cfg.resolveSecrets(secrets); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("network.channel", "1")
	v.SetDefault("network.default_subnet_mask", "255.255.255.0")
	v.SetDefault("network.command_timeout", "30s")
	v.SetDefault("network.verify_timeout", "60s")
	v.SetDefault("network.poll_interval", "2s")
	v.SetDefault("network.retry_count", 3)
	v.SetDefault("network.retry_delay", "10s")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.timeout", "30s")
	v.SetDefault("ssh.interface", "eth0")
	v.SetDefault("redfish.port", 443)
	v.SetDefault("redfish.timeout", "30s")
	v.SetDefault("dns.verify_resolution", true)
	v.SetDefault("dns.check_both_servers", true)
	v.SetDefault("ntp.max_offset", "5s")
	v.SetDefault("ntp.sync_wait", "60s")
	v.SetDefault("power.state_timeout", "120s")
	v.SetDefault("power.boot_wait", "180s")
	v.SetDefault("load.server_port", 5201)
	v.SetDefault("load.duration", "10s")
	v.SetDefault("load.parallel", 1)
	v.SetDefault("snmp.port", 161)
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.history_db", "reports/history.db")
}

// resolveSecrets replaces ENC[...] credential values in place.
func (c *Config) resolveSecrets(secrets SecretProvider) error {
	for _, field := range []*string{
		&c.IPMI.Password, &c.SSH.Password, &c.Redfish.Password, &c.SNMP.Community,
	} {
		plain, err := MaybeDecrypt(*field, secrets)
		if err != nil {
			return fmt.Errorf("failed to decrypt credential: %w", err)
		}
		*field = plain
	}
	return nil
}

func (c *Config) validate() error {
	if c.Network.Host == "" {
		return fmt.Errorf("network.host is required")
	}
	for section, creds := range map[string][2]string{
		"ipmi":    {c.IPMI.Username, c.IPMI.Password},
		"ssh":     {c.SSH.Username, c.SSH.Password},
		"redfish": {c.Redfish.Username, c.Redfish.Password},
	} {
		if creds[0] == "" {
			return fmt.Errorf("%s.username is required", section)
		}
		if creds[1] == "" {
			return fmt.Errorf("%s.password is required", section)
		}
	}
	if c.Network.RetryCount < 0 {
		return fmt.Errorf("network.retry_count must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"network.command_timeout": c.Network.CommandTimeout,
		"network.verify_timeout":  c.Network.VerifyTimeout,
		"network.poll_interval":   c.Network.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
