package cli

import (
	"fmt"

	"github.com/Davincible/polypasshash/internal/validation"
	"github.com/Davincible/polypasshash/pkg/crypto/shield"
	"github.com/Davincible/polypasshash/pkg/passwords"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type InitResult struct {
	File         string                  `json:"file"`
	ID           string                  `json:"id"`
	Threshold    int                     `json:"threshold"`
	PartialBytes int                     `json:"partial_bytes"`
	Cipher       string                  `json:"cipher"`
	Accounts     []passwords.AccountInfo `json:"accounts"`
	Generated    map[string]string       `json:"generated,omitempty"`
}

func NewInitCommand() *cobra.Command {
	var (
		threshold    int
		users        []string
		partialBytes int
		cipherName   string
		generate     bool
		words        int
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new password file",
		Long: `Create a new password file with the initial accounts.

Each --user takes "name:shares". Accounts with shares take part in unlocking
the file; accounts with 0 shares are shielded and can only be verified while
unlocked. Together the accounts must hold at least --threshold shares.`,
		Example: `  # 2 admins with 5 shares each, any 10 shares unlock
  pph init --threshold 10 --user admin:5 --user root:5 --user guest:0

  # Generate passphrases instead of prompting
  pph init -t 2 -u alice -u bob -u carol --generate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			cfg := e.cfg.GetConfig()

			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Defaults.Threshold
			}
			if !cmd.Flags().Changed("partial-bytes") {
				partialBytes = cfg.Defaults.PartialBytes
			}
			if !cmd.Flags().Changed("cipher") {
				cipherName = cfg.Defaults.Cipher
			}
			if !cmd.Flags().Changed("words") {
				words = cfg.Security.GeneratedWords
			}

			if err := validation.ValidateThreshold(threshold); err != nil {
				return err
			}
			if err := validation.ValidatePartialBytes(partialBytes); err != nil {
				return err
			}
			if generate && !validation.ValidateWordCount(words) {
				return fmt.Errorf("words must be 12, 15, 18, 21, or 24 (got %d)", words)
			}
			if len(users) == 0 {
				return fmt.Errorf("at least one --user is required")
			}
			specs, err := validation.ParseUserSpecs(users)
			if err != nil {
				return err
			}
			if err := validation.ValidateThresholdReachable(threshold, specs); err != nil {
				return err
			}

			cipher, err := shield.ByName(cipherName)
			if err != nil {
				return err
			}

			// --force replaces the file only once the new store is saved
			if e.file.Exists() && !force {
				return fmt.Errorf("password file %s already exists, use --force to replace it", e.file.Path())
			}

			store, err := passwords.New(threshold,
				passwords.WithPartialBytes(partialBytes),
				passwords.WithCipher(cipher),
				passwords.WithVerifierIterations(cfg.Security.VerifierIterations),
				passwords.WithLogger(e.logger),
			)
			if err != nil {
				return fmt.Errorf("failed to create password store: %w", err)
			}
			defer store.Close()

			generated := make(map[string]string)
			for _, spec := range specs {
				password, wasGenerated, err := e.newPassword(spec.Username, generate, words)
				if err != nil {
					return err
				}
				if wasGenerated {
					generated[spec.Username] = password
				}
				if err := store.CreateAccount(spec.Username, password, spec.Shares); err != nil {
					return fmt.Errorf("failed to create account %s: %w", spec.Username, err)
				}
			}

			if err := e.saveStore(store); err != nil {
				return err
			}

			result := InitResult{
				File:         e.file.Path(),
				ID:           store.ID(),
				Threshold:    store.Threshold(),
				PartialBytes: store.PartialBytes(),
				Cipher:       store.Cipher(),
				Accounts:     store.Accounts(),
				Generated:    generated,
			}
			if e.jsonOut {
				return e.writeJSON(result)
			}
			outputInitText(e, result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "Shares needed to unlock (default from config)")
	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "Account as name:shares, repeatable")
	cmd.Flags().IntVarP(&partialBytes, "partial-bytes", "p", 0, "Hash bytes kept for partial verification (default from config)")
	cmd.Flags().StringVar(&cipherName, "cipher", "", fmt.Sprintf("Shielded account cipher %v (default from config)", shield.Names()))
	cmd.Flags().BoolVarP(&generate, "generate", "g", false, "Generate BIP-39 passphrases instead of prompting")
	cmd.Flags().IntVarP(&words, "words", "w", 0, "Words per generated passphrase (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing password file")

	return cmd
}

func outputInitText(e *env, result InitResult) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Fprintln(e.out)
	green.Fprintf(e.out, "✓ Created password file %s\n", result.File)
	fmt.Fprintf(e.out, "Any %d shares unlock the file, %d hash bytes allow partial verification\n\n",
		result.Threshold, result.PartialBytes)

	yellow.Fprintln(e.out, "Accounts:")
	displayAccounts(e.out, result.Accounts)

	if len(result.Generated) == 0 {
		return
	}

	fmt.Fprintln(e.out)
	yellow.Fprintln(e.out, "Generated passphrases:")
	for _, account := range result.Accounts {
		if phrase, ok := result.Generated[account.Username]; ok {
			fmt.Fprintf(e.out, "  %s: %s\n", account.Username, phrase)
		}
	}
	fmt.Fprintln(e.out)
	red.Fprintln(e.out, "⚠️  These passphrases are shown only once. Hand each to its owner.")
}
