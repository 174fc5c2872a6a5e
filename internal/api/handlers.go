package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/introspect-ai/sophia/internal/observe"
)

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	UserID  int64  `json:"user_id"`
	Summary string `json:"summary"`
}

// handleLogin ensures a user row exists for the given name and returns the
// user's id alongside the persisted rolling summary (empty for a new user).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		writeError(w, http.StatusBadRequest, "username must not be empty")
		return
	}

	res, err := s.conversations.Login(r.Context(), name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	observe.Logger(r.Context()).Info("user logged in", "user_id", res.UserID, "username", name)
	writeJSON(w, http.StatusOK, loginResponse{UserID: res.UserID, Summary: res.Summary})
}

type promptResponse struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	prompt, err := s.conversations.Prompt(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{Prompt: prompt})
}

type setPromptRequest struct {
	NewPrompt string `json:"new_prompt"`
}

// handleSetPrompt overwrites the stored persona prompt and echoes the stored
// value back. The change applies to the next fresh conversation handle, not
// to one already materialised for this user.
func (s *Server) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req setPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := s.conversations.SetPrompt(r.Context(), userID, req.NewPrompt)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promptResponse{Prompt: stored})
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

// handleGetSummary returns the persisted rolling summary. A known user with
// no chat turns yet gets an empty summary, not a 404.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	summary, err := s.conversations.Summary(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
}

type chatResponse struct {
	Reply  string `json:"reply"`
	UserID int64  `json:"user_id"`
}

// handleChat drives one conversation turn. Unknown user ids are rejected
// with 401 before any conversation state is touched.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	reply, err := s.conversations.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, UserID: req.UserID})
}

// pathUserID parses the {user_id} path segment. On failure it writes a 404
// (an unparseable id can never name a known user) and returns ok=false.
func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown user")
		return 0, false
	}
	return id, true
}
