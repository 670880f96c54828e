package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the pph command tree.
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pph",
		Short: "PolyPasswordHasher password store",
		Long: `pph manages a PolyPasswordHasher password file.

Password hashes are stored XORed with Shamir shares of a secret key, so the
file alone does not allow checking a single password. After a restart the
store is locked until the passwords of accounts holding a threshold of shares
are entered. Until then logins can only be partially verified.

Features:
- Threshold accounts holding one or more shares
- Shielded accounts protected by the recovered key
- Partial verification while locked
- Generated BIP-39 passphrases
- HTTP login service with Prometheus metrics`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		NewInitCommand(),
		NewAddCommand(),
		NewLoginCommand(),
		NewInfoCommand(),
		NewConfigCommand(),
		NewServeCommand(),
	)

	rootCmd.PersistentFlags().StringP("file", "f", "", "Password file (default from config)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default $PPH_CONFIG or ~/.config/pph/config.json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	return rootCmd
}
