package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophjournal/internal/common"
)

type registerRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt_b64"`
	Verifier []byte `json:"verifier_b64"`
}

func (r *registerRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || len(r.Salt) == 0 || len(r.Verifier) == 0 {
		return fmt.Errorf("%w: username, salt_b64 and verifier_b64 are required", common.ErrInvalidInput)
	}
	return nil
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier_b64"`
}

func (r *loginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || len(r.Verifier) == 0 {
		return fmt.Errorf("%w: username and verifier_b64 are required", common.ErrInvalidInput)
	}
	return nil
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

type saltResponse struct {
	Salt []byte `json:"salt_b64"`
}

// POST /api/auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.accounts.Register(r.Context(), req.Username, req.Salt, req.Verifier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{UserID: u.ID})
}

// GET /api/auth/salt?username=
func (s *Server) salt(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		s.writeError(w, r, fmt.Errorf("%w: username is required", common.ErrInvalidInput))
		return
	}
	salt, err := s.accounts.GetSalt(r.Context(), username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saltResponse{Salt: salt})
}

// POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	userID, token, err := s.accounts.Login(r.Context(), req.Username, req.Verifier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{UserID: userID, AccessToken: token})
}

// GET /api/config
func (s *Server) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.journal.Limits())
}
