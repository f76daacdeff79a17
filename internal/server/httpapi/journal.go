package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/server/auth"
	"github.com/dmitrijs2005/gophjournal/internal/server/models"
	"github.com/gorilla/mux"
)

type entryRequest struct {
	Date      string    `json:"date"`
	CipherB64 string    `json:"cipher_b64"`
	IVB64     string    `json:"iv_b64"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *entryRequest) Validate() error {
	if e.CipherB64 == "" || e.IVB64 == "" {
		return fmt.Errorf("%w: cipher_b64 and iv_b64 are required", common.ErrInvalidInput)
	}
	return nil
}

type listResponse struct {
	Entries []models.JournalRow `json:"entries"`
}

// GET /api/journal
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	rows, err := s.journal.List(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.JournalRow{}
	}
	writeJSON(w, http.StatusOK, listResponse{Entries: rows})
}

// GET /api/journal/{date}
func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	row, err := s.journal.Get(r.Context(), userID, mux.Vars(r)["date"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// PUT /api/journal/{date}
func (s *Server) putEntry(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	date := mux.Vars(r)["date"]

	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Date != "" && req.Date != date {
		s.writeError(w, r, fmt.Errorf("%w: body date does not match path", common.ErrInvalidInput))
		return
	}

	stored, err := s.journal.Put(r.Context(), &models.JournalRow{
		UserID:    userID,
		Date:      date,
		CipherB64: req.CipherB64,
		IVB64:     req.IVB64,
		Version:   req.Version,
		UpdatedAt: req.UpdatedAt,
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) && stored != nil {
			writeJSON(w, http.StatusConflict, stored)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// DELETE /api/journal/{date}
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := s.journal.Delete(r.Context(), userID, mux.Vars(r)["date"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
