package cli

import (
	"errors"
	"fmt"

	"github.com/Davincible/polypasshash/pkg/passwords"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ErrInvalidLogin is returned when the checked password is wrong.
var ErrInvalidLogin = errors.New("invalid login")

type LoginResult struct {
	Username     string `json:"username"`
	Valid        bool   `json:"valid"`
	Verification string `json:"verification"`
}

func NewLoginCommand() *cobra.Command {
	var (
		username  string
		unlockers []string
		threshold int
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check an account password",
		Long: `Check the password of an account.

Without --unlock only the partial verification bytes are compared, which
accepts a small fraction of wrong passwords. With --unlock the file is
unlocked first and the password is verified in full.`,
		Example: `  # Partial verification
  pph login --user alice

  # Full verification
  pph login --user alice --unlock admin --unlock root`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}

			store, err := e.loadStore(threshold)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(unlockers) > 0 {
				if err := e.unlock(store, unlockers); err != nil {
					return err
				}
			}

			password, err := e.prompt.password(fmt.Sprintf("Password for %s: ", username))
			if err != nil {
				return err
			}

			valid, err := store.IsValidLogin(username, password)
			if errors.Is(err, passwords.ErrLocked) {
				return fmt.Errorf("%w, pass --unlock to verify in full", err)
			}
			if err != nil {
				return err
			}

			result := LoginResult{Username: username, Valid: valid, Verification: "partial"}
			if store.IsUnlocked() {
				result.Verification = "full"
			}

			if e.jsonOut {
				if err := e.writeJSON(result); err != nil {
					return err
				}
			} else if valid {
				color.New(color.FgGreen, color.Bold).Fprintf(e.out, "✓ Password for %s is valid (%s verification)\n",
					username, result.Verification)
			} else {
				color.New(color.FgRed, color.Bold).Fprintf(e.out, "✗ Password for %s is invalid\n", username)
			}

			if !valid {
				return ErrInvalidLogin
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "", "Account to check")
	cmd.Flags().StringArrayVar(&unlockers, "unlock", nil, "Account whose password unlocks the file, repeatable")
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 0, "Expected threshold (default from the file)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
