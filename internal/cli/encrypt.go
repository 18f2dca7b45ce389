package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/iokuper/bmcqa/pkg/config"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [value]",
	Short: "Encrypt a credential for use as ENC[...] in the config file",
	Long: `Encrypt a secret with the local AES key and print the ENC[...] form to
paste into the configuration. With no argument the value is read from the
terminal without echo.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secrets, err := config.NewAESProvider(keyFile)
		if err != nil {
			return fmt.Errorf("failed to open secret key: %w", err)
		}

		var plain string
		if len(args) == 1 {
			plain = args[0]
		} else if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprint(cmd.OutOrStdout(), "Value: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read value: %w", err)
			}
			plain = string(raw)
		} else {
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read value: %w", err)
			}
			plain = strings.TrimRight(line, "\n")
		}

		if plain == "" {
			return fmt.Errorf("refusing to encrypt an empty value")
		}

		enc, err := secrets.Encrypt(plain)
		if err != nil {
			return fmt.Errorf("encrypt failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ENC[%s]\n", enc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encryptCmd)
}
