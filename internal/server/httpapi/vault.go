package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/gophjournal/internal/cryptox"
	"github.com/dmitrijs2005/gophjournal/internal/server/auth"
)

type bundleEnvelope struct {
	Bundle *cryptox.WrappedBundle `json:"bundle"`
}

// Validate accepts a null bundle, which means "delete".
func (e *bundleEnvelope) Validate() error {
	if e.Bundle == nil {
		return nil
	}
	return e.Bundle.Validate()
}

// GET /api/vault/bundle
func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	b, err := s.bundles.Get(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundleEnvelope{Bundle: b})
}

// PUT /api/vault/bundle
func (s *Server) putBundle(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req bundleEnvelope
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.bundles.Put(r.Context(), userID, req.Bundle); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
