package cli

import (
	"fmt"

	"github.com/Davincible/polypasshash/pkg/passwords"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type InfoResult struct {
	File         string                  `json:"file"`
	ID           string                  `json:"id"`
	Threshold    int                     `json:"threshold"`
	PartialBytes int                     `json:"partial_bytes"`
	Cipher       string                  `json:"cipher"`
	NextShare    int                     `json:"next_share"`
	Accounts     []passwords.AccountInfo `json:"accounts"`
}

func NewInfoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show password file details",
		Long:  `Show the threshold, partial verification and accounts of a password file. No password is needed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}

			store, err := e.loadStore(0)
			if err != nil {
				return err
			}
			defer store.Close()

			result := InfoResult{
				File:         e.file.Path(),
				ID:           store.ID(),
				Threshold:    store.Threshold(),
				PartialBytes: store.PartialBytes(),
				Cipher:       store.Cipher(),
				NextShare:    store.NextShare(),
				Accounts:     store.Accounts(),
			}
			if e.jsonOut {
				return e.writeJSON(result)
			}

			yellow := color.New(color.FgYellow, color.Bold)
			yellow.Fprintln(e.out, "Password file:")
			fmt.Fprintf(e.out, "  Path:          %s\n", result.File)
			fmt.Fprintf(e.out, "  ID:            %s\n", result.ID)
			fmt.Fprintf(e.out, "  Threshold:     %d\n", result.Threshold)
			fmt.Fprintf(e.out, "  Partial bytes: %d\n", result.PartialBytes)
			fmt.Fprintf(e.out, "  Cipher:        %s\n", result.Cipher)
			fmt.Fprintf(e.out, "  Shares issued: %d of 255\n", result.NextShare-1)
			fmt.Fprintln(e.out)
			yellow.Fprintln(e.out, "Accounts:")
			displayAccounts(e.out, result.Accounts)
			return nil
		},
	}

	return cmd
}
