package harness

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iokuper/bmcqa/pkg/config"
	"github.com/iokuper/bmcqa/pkg/ipmi"
	"github.com/iokuper/bmcqa/pkg/redfish"
	"github.com/iokuper/bmcqa/pkg/sshx"
)

// Env carries the shared clients every tester works through. Built once per
// run; testers must not assume exclusive ownership.
type Env struct {
	Cfg *config.Config

	IPMI    *ipmi.Client
	Native  *ipmi.NativeClient
	Redfish *redfish.Client
	SSH     *sshx.Client

	Log zerolog.Logger
}

// NewEnv wires the three channel clients from configuration.
func NewEnv(cfg *config.Config) *Env {
	return &Env{
		Cfg: cfg,
		IPMI: ipmi.NewClient(
			cfg.Network.Host,
			cfg.IPMI.Username,
			cfg.IPMI.Password,
			cfg.Network.Channel,
			ipmi.WithTimeout(cfg.Network.CommandTimeout),
		),
		Native: ipmi.NewNativeClient(cfg.Network.Host, cfg.IPMI.Username, cfg.IPMI.Password),
		Redfish: redfish.NewClient(
			cfg.Redfish.Endpoint(),
			cfg.Redfish.Username,
			cfg.Redfish.Password,
			cfg.Redfish.VerifySSL,
		),
		SSH: sshx.NewClient(
			cfg.SSH.Host,
			cfg.SSH.Port,
			cfg.SSH.Username,
			cfg.SSH.Password,
			cfg.SSH.Timeout,
		),
		Log: log.Logger,
	}
}

// PollInterval returns the configured probe interval.
func (e *Env) PollInterval() time.Duration { return e.Cfg.Network.PollInterval }

// VerifyTimeout returns the window for a change to settle on all channels.
func (e *Env) VerifyTimeout() time.Duration { return e.Cfg.Network.VerifyTimeout }
