package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Davincible/polypasshash/internal/validation"
	"github.com/Davincible/polypasshash/pkg/config"
	"github.com/Davincible/polypasshash/pkg/crypto/mnemonic"
	"github.com/Davincible/polypasshash/pkg/passwords"
	"github.com/Davincible/polypasshash/pkg/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// env bundles what every command needs: configuration, the password file,
// a prompter and the output settings resolved from the global flags.
type env struct {
	cfg     *config.ConfigManager
	file    *storage.PasswordFile
	logger  *slog.Logger
	prompt  *prompter
	out     io.Writer
	jsonOut bool
}

func newEnv(cmd *cobra.Command) (*env, error) {
	configPath, _ := cmd.Flags().GetString("config")
	filePath, _ := cmd.Flags().GetString("file")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOut, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	cfg, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if filePath == "" {
		filePath = cfg.PasswordFile()
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	if noColor || jsonOut || !cfg.GetConfig().UI.UseColor {
		color.NoColor = true
	}

	return &env{
		cfg:     cfg,
		file:    storage.NewPasswordFile(filePath),
		logger:  logger,
		prompt:  newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()),
		out:     cmd.OutOrStdout(),
		jsonOut: jsonOut,
	}, nil
}

// loadStore reads the password file. A threshold of 0 takes the one
// recorded in the file.
func (e *env) loadStore(threshold int, opts ...passwords.Option) (*passwords.Store, error) {
	data, err := e.file.Load()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w, run 'pph init' first", err)
		}
		return nil, err
	}

	if threshold == 0 {
		header, err := passwords.ReadHeader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		threshold = header.Threshold
	}

	opts = append([]passwords.Option{passwords.WithLogger(e.logger)}, opts...)
	return passwords.Load(threshold, bytes.NewReader(data), opts...)
}

func (e *env) saveStore(store *passwords.Store) error {
	data, err := store.PasswordData()
	if err != nil {
		return err
	}
	if err := e.file.Save(data); err != nil {
		return fmt.Errorf("failed to save password data: %w", err)
	}
	e.logger.Debug("saved password data", "path", e.file.Path(), "bytes", len(data))
	return nil
}

// unlock prompts for the password of every named account and unlocks the
// store with them.
func (e *env) unlock(store *passwords.Store, usernames []string) error {
	if len(usernames) == 0 {
		return fmt.Errorf("password data is locked, name accounts holding %d shares with --unlock", store.Threshold())
	}

	creds := make([]passwords.Credential, 0, len(usernames))
	for _, username := range usernames {
		password, err := e.prompt.password(fmt.Sprintf("Password for %s: ", username))
		if err != nil {
			return err
		}
		creds = append(creds, passwords.Credential{Username: username, Password: password})
	}

	if err := store.UnlockPasswordData(creds); err != nil {
		return fmt.Errorf("failed to unlock password data: %w", err)
	}
	return nil
}

// newPassword returns a generated passphrase or prompts twice for a new
// password. generated reports which one happened.
func (e *env) newPassword(username string, generate bool, words int) (password string, generated bool, err error) {
	if generate {
		m, err := mnemonic.Generate(words, nil)
		if err != nil {
			return "", false, err
		}
		return m.String(), true, nil
	}

	password, err = e.prompt.password(fmt.Sprintf("New password for %s: ", username))
	if err != nil {
		return "", false, err
	}
	if err := validation.ValidatePassword(password, e.cfg.GetConfig().Security.MinPasswordLength); err != nil {
		return "", false, err
	}
	confirm, err := e.prompt.password(fmt.Sprintf("Confirm password for %s: ", username))
	if err != nil {
		return "", false, err
	}
	if confirm != password {
		return "", false, fmt.Errorf("passwords for %s do not match", username)
	}
	return password, false, nil
}

func (e *env) writeJSON(v any) error {
	encoder := json.NewEncoder(e.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// prompter reads passwords from a terminal without echo, or line by line
// from any other input. One prompter serves a whole command so buffered
// input is not lost between prompts.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:     in,
		out:    out,
		reader: bufio.NewReader(in),
	}
}

func (p *prompter) password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		passBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(passBytes), nil
	}

	// Fallback for non-terminal
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no password provided")
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func shareList(shares []int) string {
	parts := make([]string, len(shares))
	for i, share := range shares {
		parts[i] = fmt.Sprint(share)
	}
	return strings.Join(parts, ", ")
}

// displayAccounts prints one line per account.
func displayAccounts(w io.Writer, accounts []passwords.AccountInfo) {
	cyan := color.New(color.FgCyan)
	for _, account := range accounts {
		cyan.Fprintf(w, "  %-20s", account.Username)
		switch {
		case account.Shielded:
			fmt.Fprintln(w, " shielded")
		case len(account.Shares) == 1:
			fmt.Fprintf(w, " share %s\n", shareList(account.Shares))
		default:
			fmt.Fprintf(w, " shares %s\n", shareList(account.Shares))
		}
	}
}
