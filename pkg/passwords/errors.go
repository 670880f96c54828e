package passwords

import (
	"errors"
	"fmt"

	"github.com/Davincible/polypasshash/pkg/crypto/shamir"
)

var (
	// ErrInvalidState is returned when an operation needs the store in the
	// opposite locked/unlocked state.
	ErrInvalidState = errors.New("passwords: invalid state")

	// ErrLocked is returned when the master secret is still unknown.
	ErrLocked = fmt.Errorf("%w: password data is locked", ErrInvalidState)

	// ErrAlreadyUnlocked is returned by UnlockPasswordData on an unlocked store.
	ErrAlreadyUnlocked = fmt.Errorf("%w: password data is already unlocked", ErrInvalidState)

	ErrUnknownUser      = errors.New("passwords: unknown user")
	ErrDuplicateUser    = errors.New("passwords: username exists already")
	ErrInvalidUsername  = errors.New("passwords: invalid username")
	ErrCapacityExceeded = errors.New("passwords: would exceed maximum number of shares")

	// ErrInsufficientShares is returned when the supplied credentials hold
	// fewer than threshold shares.
	ErrInsufficientShares = shamir.ErrInsufficientShares

	// ErrUnrecoverable is returned when persisting data that could never be
	// unlocked because fewer than threshold shares have been issued.
	ErrUnrecoverable = errors.New("passwords: would write undecodable password data, more shares are needed")

	// ErrWrongSecret is returned when the reconstructed secret does not
	// match the stored verifier, i.e. a supplied password was wrong.
	ErrWrongSecret = errors.New("passwords: reconstructed secret does not match, wrong account information provided")

	ErrThresholdMismatch = errors.New("passwords: threshold does not match password data")
	ErrInvalidData       = errors.New("passwords: invalid password data")
	ErrInvalidConfig     = errors.New("passwords: invalid configuration")
)
