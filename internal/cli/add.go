package cli

import (
	"fmt"

	"github.com/Davincible/polypasshash/internal/validation"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type AddResult struct {
	Username  string `json:"username"`
	Shares    []int  `json:"shares,omitempty"`
	Shielded  bool   `json:"shielded"`
	Generated string `json:"generated,omitempty"`
}

func NewAddCommand() *cobra.Command {
	var (
		username  string
		shares    int
		unlockers []string
		threshold int
		generate  bool
		words     int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account to the password file",
		Long: `Add an account to an existing password file.

New accounts can only be created once the file is unlocked, so the passwords
of accounts holding at least threshold shares are asked for first.`,
		Example: `  # Add a threshold account with one share
  pph add --user alice --unlock admin --unlock root

  # Add a shielded account with a generated passphrase
  pph add --user guest --shares 0 --generate --unlock admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("words") {
				words = e.cfg.GetConfig().Security.GeneratedWords
			}

			if err := validation.ValidateUsername(username); err != nil {
				return err
			}
			if err := validation.ValidateShareCount(shares); err != nil {
				return err
			}
			if generate && !validation.ValidateWordCount(words) {
				return fmt.Errorf("words must be 12, 15, 18, 21, or 24 (got %d)", words)
			}

			store, err := e.loadStore(threshold)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := e.unlock(store, unlockers); err != nil {
				return err
			}

			password, generated, err := e.newPassword(username, generate, words)
			if err != nil {
				return err
			}
			if err := store.CreateAccount(username, password, shares); err != nil {
				return fmt.Errorf("failed to create account %s: %w", username, err)
			}
			if err := e.saveStore(store); err != nil {
				return err
			}

			result := AddResult{Username: username}
			for _, account := range store.Accounts() {
				if account.Username == username {
					result.Shares = account.Shares
					result.Shielded = account.Shielded
				}
			}
			if generated {
				result.Generated = password
			}

			if e.jsonOut {
				return e.writeJSON(result)
			}

			green := color.New(color.FgGreen, color.Bold)
			if result.Shielded {
				green.Fprintf(e.out, "✓ Added shielded account %s\n", username)
			} else {
				green.Fprintf(e.out, "✓ Added account %s with shares %s\n", username, shareList(result.Shares))
			}
			if generated {
				fmt.Fprintf(e.out, "Passphrase: %s\n", password)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "", "Account to add")
	cmd.Flags().IntVarP(&shares, "shares", "n", 1, "Shares for the account, 0 for a shielded account")
	cmd.Flags().StringArrayVar(&unlockers, "unlock", nil, "Account whose password unlocks the file, repeatable")
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "Expected threshold (default from the file)")
	cmd.Flags().BoolVarP(&generate, "generate", "g", false, "Generate a BIP-39 passphrase instead of prompting")
	cmd.Flags().IntVarP(&words, "words", "w", 0, "Words in the generated passphrase (default from config)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
