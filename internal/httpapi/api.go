// ABOUTME: REST surface for the identity directory and conversation history
// ABOUTME: Register/login CRUD plus read-only users and messages endpoints

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/auth"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/directory"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/presence"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/store"
)

const minCredentialLength = 3

// API serves the HTTP collaborator surface next to the websocket endpoint.
type API struct {
	directory     *directory.Store
	registry      *presence.Registry
	conversations *store.Conversations
	tokens        *auth.Tokens
	logger        *slog.Logger
}

// New creates the API over its collaborators.
func New(dir *directory.Store, registry *presence.Registry, conversations *store.Conversations, tokens *auth.Tokens, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		directory:     dir,
		registry:      registry,
		conversations: conversations,
		tokens:        tokens,
		logger:        logger.With("component", "httpapi"),
	}
}

// Register installs all API routes on the given mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", a.handleHealth)
	mux.HandleFunc("/api/users", a.handleUsers)
	mux.HandleFunc("/api/register", a.handleRegister)
	mux.HandleFunc("/api/login", a.handleLogin)
	mux.HandleFunc("/api/messages/", a.handleMessages)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writeJSON(w, http.StatusOK, a.registry.Snapshot(r.Context()))
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		a.writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if len(req.Username) < minCredentialLength {
		a.writeError(w, http.StatusBadRequest, "username must be at least 3 characters")
		return
	}
	if len(req.Password) < minCredentialLength {
		a.writeError(w, http.StatusBadRequest, "password must be at least 3 characters")
		return
	}

	if err := a.directory.Register(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, directory.ErrExists) {
			a.writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		a.logger.Error("registering user", "username", req.Username, "error", err)
		a.writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	a.logger.Info("user registered", "username", req.Username)
	a.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": req.Username,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.directory.Authenticate(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, directory.ErrBadCredential) {
			a.writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		a.logger.Error("authenticating user", "username", req.Username, "error", err)
		a.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := a.tokens.Issue(req.Username)
	if err != nil {
		a.logger.Error("issuing token", "username", req.Username, "error", err)
		a.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := a.directory.Touch(r.Context(), req.Username, time.Now()); err != nil {
		a.logger.Warn("updating last_seen on login", "username", req.Username, "error", err)
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": req.Username,
		"token":    token,
	})
}

// handleMessages serves GET /api/messages/{withUser}?currentUser=X.
func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	withUser := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	currentUser := r.URL.Query().Get("currentUser")
	if withUser == "" || currentUser == "" {
		a.writeError(w, http.StatusBadRequest, "both users must be specified")
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"messages": a.conversations.History(currentUser, withUser),
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encoding response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}
