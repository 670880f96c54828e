package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Davincible/polypasshash/pkg/crypto/mnemonic"
)

const (
	// MaxShares is the highest share number a single password store can issue.
	MaxShares = 255

	// MaxPartialBytes is the largest supported partial verification length.
	MaxPartialBytes = 32

	maxPasswordLength = 1024
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,64}$`)

// UserSpec is a username with the number of shares to issue, parsed from
// "name:shares". A missing count means one share.
type UserSpec struct {
	Username string
	Shares   int
}

func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username %q: use up to 64 letters, digits, '.', '_', '@' or '-'", username)
	}
	return nil
}

func ValidateThreshold(threshold int) error {
	if threshold < 1 || threshold > MaxShares {
		return fmt.Errorf("threshold must be between 1 and %d (got %d)", MaxShares, threshold)
	}
	return nil
}

func ValidatePartialBytes(n int) error {
	if n < 0 || n > MaxPartialBytes {
		return fmt.Errorf("partial bytes must be between 0 and %d (got %d)", MaxPartialBytes, n)
	}
	return nil
}

func ValidateShareCount(shares int) error {
	if shares < 0 || shares > MaxShares {
		return fmt.Errorf("shares must be between 0 and %d (got %d)", MaxShares, shares)
	}
	return nil
}

// ValidatePassword checks a new password. Existing passwords are never
// validated, only compared.
func ValidatePassword(password string, minLength int) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if !utf8.ValidString(password) {
		return fmt.Errorf("password is not valid UTF-8")
	}

	length := utf8.RuneCountInString(password)
	if length < minLength {
		return fmt.Errorf("password must be at least %d characters (got %d)", minLength, length)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password too long (max %d bytes)", maxPasswordLength)
	}

	for i, ch := range password {
		if ch == 0 {
			return fmt.Errorf("password contains null character at position %d", i)
		}
	}

	return nil
}

// ValidateThresholdReachable checks that the issued shares can unlock the
// password data.
func ValidateThresholdReachable(threshold int, specs []UserSpec) error {
	total := 0
	for _, spec := range specs {
		total += spec.Shares
	}
	if total > MaxShares {
		return fmt.Errorf("accounts need %d shares, at most %d can be issued", total, MaxShares)
	}
	if total < threshold {
		return fmt.Errorf("accounts hold %d shares, threshold %d could never be reached", total, threshold)
	}
	return nil
}

// ParseUserSpec parses "name" or "name:shares".
func ParseUserSpec(input string) (UserSpec, error) {
	input = strings.TrimSpace(input)
	name, count, hasCount := strings.Cut(input, ":")

	spec := UserSpec{Username: name, Shares: 1}
	if hasCount {
		shares, err := strconv.Atoi(count)
		if err != nil {
			return UserSpec{}, fmt.Errorf("invalid share count in %q", input)
		}
		spec.Shares = shares
	}

	if err := ValidateUsername(spec.Username); err != nil {
		return UserSpec{}, err
	}
	if err := ValidateShareCount(spec.Shares); err != nil {
		return UserSpec{}, err
	}
	return spec, nil
}

// ParseUserSpecs parses every input and rejects repeated usernames.
func ParseUserSpecs(inputs []string) ([]UserSpec, error) {
	seen := make(map[string]bool, len(inputs))
	specs := make([]UserSpec, 0, len(inputs))
	for _, input := range inputs {
		spec, err := ParseUserSpec(input)
		if err != nil {
			return nil, err
		}
		if seen[spec.Username] {
			return nil, fmt.Errorf("user %q given more than once", spec.Username)
		}
		seen[spec.Username] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

func SanitizeInput(input string) string {
	input = strings.TrimSpace(input)

	input = strings.ReplaceAll(input, "\r\n", "\n")
	input = strings.ReplaceAll(input, "\r", "\n")

	lines := strings.Split(input, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	return strings.Join(lines, "\n")
}

func ValidateWordCount(count int) bool {
	return mnemonic.ValidWordCount(count)
}
