package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cachet/internal/auth"
	"cachet/internal/domain"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// RegisterRequest is the account creation payload. The private key blob
// arrives already locked; the server never sees the passphrase that opens
// it and cannot tell whether it matches the login password.
type RegisterRequest struct {
	Username       string         `json:"username"`
	DisplayName    string         `json:"display_name"`
	Password       string         `json:"password"`
	PublicKey      []byte         `json:"public_key"`
	Algorithm      string         `json:"algorithm"`
	PrivateKeyBlob domain.KeyBlob `json:"private_key_blob"`
}

// AuthResponse carries a fresh token plus the identity it is bound to.
type AuthResponse struct {
	Token    string          `json:"token"`
	Identity domain.Identity `json:"identity"`
}

// LoginRequest authenticates by username and password.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the token plus the caller's own account view,
// including the locked blob so a fresh device can unlock locally.
type LoginResponse struct {
	Token          string          `json:"token"`
	Identity       domain.Identity `json:"identity"`
	Username       string          `json:"username"`
	PublicKey      []byte          `json:"public_key"`
	Algorithm      string          `json:"algorithm"`
	PrivateKeyBlob domain.KeyBlob  `json:"private_key_blob"`
}

// BlobResponse is the caller's own locked key material.
type BlobResponse struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Salt       []byte `json:"salt"`
	Username   string `json:"username"`
}

// UserSummary is a search result row.
type UserSummary struct {
	ID          domain.UserID `json:"id"`
	Username    string        `json:"username"`
	DisplayName string        `json:"display_name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if len(req.PublicKey) == 0 || req.Algorithm == "" || req.PrivateKeyBlob.Empty() {
		writeError(w, http.StatusBadRequest, "key material is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	acct := domain.Account{
		ID:           domain.UserID(uuid.NewString()),
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: hash,
		PublicKey:    req.PublicKey,
		Algorithm:    req.Algorithm,
		KeyBlob:      req.PrivateKeyBlob,
		CreatedUTC:   time.Now().Unix(),
	}
	if err := s.accounts.CreateAccount(acct); err != nil {
		if errors.Is(err, domain.ErrDuplicateUsername) {
			writeError(w, http.StatusConflict, "username already exists")
			return
		}
		s.log.WithError(err).Error("create account failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	identity := domain.Identity{ID: acct.ID, DisplayName: acct.DisplayName}
	token, err := s.authority.Issue(identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.WithField("user_id", acct.ID).Info("account registered")
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, Identity: identity})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	acct, err := s.accounts.AccountByUsername(req.Username)
	if err != nil || !auth.CheckPassword(acct.PasswordHash, req.Password) {
		// Unknown user and wrong password are indistinguishable.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	identity := domain.Identity{ID: acct.ID, DisplayName: acct.DisplayName}
	token, err := s.authority.Issue(identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:          token,
		Identity:       identity,
		Username:       acct.Username,
		PublicKey:      acct.PublicKey,
		Algorithm:      acct.Algorithm,
		PrivateKeyBlob: acct.KeyBlob,
	})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	id := domain.UserID(r.PathValue("id"))
	acct, err := s.accounts.AccountByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, domain.PublicKeyRecord{
		PublicKey: acct.PublicKey,
		Algorithm: acct.Algorithm,
	})
}

// handlePrivateKeyBlob returns only the calling identity's own blob,
// resolved from the verified token, never from a parameter.
func (s *Server) handlePrivateKeyBlob(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	acct, err := s.accounts.AccountByID(caller.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, BlobResponse{
		Ciphertext: acct.KeyBlob.Ciphertext,
		IV:         acct.KeyBlob.IV,
		Salt:       acct.KeyBlob.Salt,
		Username:   acct.Username,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.SearchAccounts(r.URL.Query().Get("q"), 50)
	if err != nil {
		s.log.WithError(err).Error("search failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]UserSummary, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, UserSummary{ID: a.ID, Username: a.Username, DisplayName: a.DisplayName})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleHistory serves the persisted conversation between the caller and
// the peer in the "with" parameter. Only conversations the caller is a
// participant of are reachable.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller := callerIdentity(r)
	with := domain.UserID(r.URL.Query().Get("with"))
	if with == "" {
		writeError(w, http.StatusBadRequest, "missing with parameter")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = n
	}

	envs, err := s.history.EnvelopesBetween(caller.ID, with, limit)
	if err != nil {
		s.log.WithError(err).Error("history query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if envs == nil {
		envs = []domain.Envelope{}
	}
	writeJSON(w, http.StatusOK, envs)
}

// requireAuth verifies the bearer token and stashes the caller identity in
// the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := s.authority.Verify(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func callerIdentity(r *http.Request) domain.Identity {
	id, _ := r.Context().Value(identityKey).(domain.Identity)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
