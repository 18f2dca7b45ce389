// Package cli wires the cobra command tree for the bmcqa binary.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iokuper/bmcqa/pkg/config"
)

var (
	cfgFile string
	keyFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bmcqa",
	Short: "Firmware QA harness for BMC network configuration",
	Long: `bmcqa drives a BMC's network configuration through its three control
planes (IPMI-over-LAN, Redfish and the host OS over SSH), verifies that
all planes agree after every change, and restores the original
configuration when done.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// encrypt and list work without a target device.
		switch cmd.Name() {
		case "encrypt", "list", "help", "completion":
			return nil
		}
		secrets, err := config.NewAESProvider(keyFile)
		if err != nil {
			return fmt.Errorf("failed to open secret key: %w", err)
		}
		cfg, err = config.Load(cfgFile, secrets)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Network.Host = host
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Log.Level = level
		}
		configureLogging()
		return nil
	},
}

// Execute is the binary entry point.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.bmcqa/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key-file", defaultKeyFile(), "AES key file for ENC[...] credentials")
	rootCmd.PersistentFlags().String("host", "", "BMC address, overrides network.host")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
}

func defaultKeyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bmcqa.key"
	}
	return filepath.Join(home, ".bmcqa", "secret.key")
}

func configureLogging() {
	cfg.Log.ConfigureZerolog()

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	if cfg.Log.File == "" {
		log.Logger = log.Output(console)
		return
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Logger = log.Output(console)
		log.Warn().Err(err).Str("file", cfg.Log.File).Msg("Could not open log file, console only")
		return
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(console, f))
}
