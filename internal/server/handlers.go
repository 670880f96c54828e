package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Davincible/polypasshash/internal/validation"
	"github.com/Davincible/polypasshash/pkg/passwords"
)

// maxBodySize bounds request bodies.
const maxBodySize = 64 << 10

type StatusResponse struct {
	ID           string `json:"id"`
	Threshold    int    `json:"threshold"`
	PartialBytes int    `json:"partial_bytes"`
	Cipher       string `json:"cipher"`
	Unlocked     bool   `json:"unlocked"`
	NextShare    int    `json:"next_share"`
	Accounts     int    `json:"accounts"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Username     string `json:"username"`
	Valid        bool   `json:"valid"`
	Verification string `json:"verification"`
}

type UnlockRequest struct {
	Credentials []LoginRequest `json:"credentials"`
}

// CreateAccountRequest creates an account. Shares defaults to 1 when
// omitted, 0 creates a shielded account. Authorization must name share
// holders that together hold at least threshold shares.
type CreateAccountRequest struct {
	Username      string         `json:"username"`
	Password      string         `json:"password"`
	Shares        *int           `json:"shares,omitempty"`
	Authorization []LoginRequest `json:"authorization"`
}

type CreateAccountResponse struct {
	Account   passwords.AccountInfo `json:"account"`
	Persisted bool                  `json:"persisted"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidRequest)
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		ID:           s.store.ID(),
		Threshold:    s.store.Threshold(),
		PartialBytes: s.store.PartialBytes(),
		Cipher:       s.store.Cipher(),
		Unlocked:     s.store.IsUnlocked(),
		NextShare:    s.store.NextShare(),
		Accounts:     len(s.store.Accounts()),
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("Rate limit exceeded", "path", r.URL.Path, "remote", r.RemoteAddr)
	w.Header().Set("Retry-After", "60")
	writeError(w, ErrRateLimited)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) listAccountsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Accounts())
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	valid, err := s.store.IsValidLogin(req.Username, req.Password)
	if errors.Is(err, passwords.ErrUnknownUser) {
		valid, err = false, nil
	}
	if err != nil {
		writeError(w, err)
		return
	}

	resp := LoginResponse{Username: req.Username, Valid: valid, Verification: "partial"}
	if s.store.IsUnlocked() {
		resp.Verification = "full"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) unlockHandler(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Credentials) == 0 {
		writeError(w, fmt.Errorf("%w: no credentials", ErrInvalidRequest))
		return
	}

	creds := make([]passwords.Credential, 0, len(req.Credentials))
	for _, c := range req.Credentials {
		creds = append(creds, passwords.Credential{Username: c.Username, Password: c.Password})
	}

	if err := s.store.UnlockPasswordData(creds); err != nil {
		s.logger.Warn("Unlock failed", "accounts", len(creds), "error", err)
		if errors.Is(err, passwords.ErrUnknownUser) {
			err = ErrInvalidCredentials
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) createAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	shares := 1
	if req.Shares != nil {
		shares = *req.Shares
	}
	if err := validation.ValidateUsername(req.Username); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if err := validation.ValidatePassword(req.Password, s.minPasswordLength); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if err := validation.ValidateShareCount(shares); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	if !s.store.IsUnlocked() {
		writeError(w, passwords.ErrLocked)
		return
	}
	if err := s.authorize(req.Authorization); err != nil {
		s.logger.Warn("Unauthorized account creation", "username", req.Username, "remote", r.RemoteAddr, "error", err)
		writeError(w, err)
		return
	}

	// creation and the file write must happen in the same order
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.CreateAccount(req.Username, req.Password, shares); err != nil {
		writeError(w, err)
		return
	}

	// The account exists in memory from here on, so a failed write is
	// reported through Persisted rather than as a failed request.
	persisted, err := s.persist()
	if err != nil {
		s.logger.Error("Failed to persist password data", "username", req.Username, "error", err)
	}

	resp := CreateAccountResponse{Persisted: persisted}
	for _, info := range s.store.Accounts() {
		if info.Username == req.Username {
			resp.Account = info
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// authorize checks creds against the store and requires the accounts they
// name to hold at least threshold shares between them, the same authority
// that unlocking takes. The store must be unlocked so every entry is checked.
func (s *Server) authorize(creds []LoginRequest) error {
	if len(creds) == 0 {
		return fmt.Errorf("%w: credentials of share holders are required", ErrForbidden)
	}

	held := make(map[string]int)
	for _, info := range s.store.Accounts() {
		held[info.Username] = len(info.Shares)
	}

	var (
		seen  = make(map[string]bool, len(creds))
		total int
	)
	for _, c := range creds {
		if seen[c.Username] {
			return fmt.Errorf("%w: account %q named twice", ErrInvalidRequest, c.Username)
		}
		seen[c.Username] = true

		valid, err := s.store.IsValidLogin(c.Username, c.Password)
		if errors.Is(err, passwords.ErrUnknownUser) {
			return ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		if !valid {
			return ErrInvalidCredentials
		}
		total += held[c.Username]
	}

	if threshold := s.store.Threshold(); total < threshold {
		return fmt.Errorf("%w: credentials hold %d of %d shares", ErrForbidden, total, threshold)
	}
	return nil
}

// persist writes the password data to the configured file. It reports false
// when there is no file.
func (s *Server) persist() (bool, error) {
	if s.file == nil {
		return false, nil
	}

	data, err := s.store.PasswordData()
	if err != nil {
		return false, err
	}

	if err := s.file.Save(data); err != nil {
		return false, err
	}
	s.logger.Debug("Saved password data", "path", s.file.Path(), "bytes", len(data))
	return true, nil
}
