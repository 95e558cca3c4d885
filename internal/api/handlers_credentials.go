package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/org/passvault/internal/vault"
	"github.com/org/passvault/pkg/models"
	"github.com/rs/zerolog/log"
)

type createCredentialRequest struct {
	Service  string `json:"service"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// CredentialCreateHandler handles POST /v1/credentials
func (s *Server) CredentialCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.vault.Add(r.Context(), req.Service, req.Username, req.Password)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	s.refreshCredentialGauge(r.Context())

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// CredentialListHandler handles GET /v1/credentials?q=
func (s *Server) CredentialListHandler(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Summary
		err  error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		list, err = s.vault.Search(r.Context(), q)
	} else {
		list, err = s.vault.List(r.Context())
	}
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

// CredentialGetHandler handles GET /v1/credentials/{id}
func (s *Server) CredentialGetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	sum, err := s.vault.Get(r.Context(), id)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// CredentialRevealHandler handles POST /v1/credentials/{id}/reveal
func (s *Server) CredentialRevealHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	password, err := s.vault.Reveal(r.Context(), id)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, map[string]any{"password": password})
}

// CredentialUpdateHandler handles PATCH /v1/credentials/{id}
func (s *Server) CredentialUpdateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	var patch models.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sum, err := s.vault.Update(r.Context(), id, patch)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// CredentialDeleteHandler handles DELETE /v1/credentials/{id}
func (s *Server) CredentialDeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := credentialID(w, r)
	if !ok {
		return
	}
	if err := s.vault.Remove(r.Context(), id); err != nil {
		writeVaultError(w, err)
		return
	}
	s.refreshCredentialGauge(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshCredentialGauge(ctx context.Context) {
	if n, err := s.vault.Count(ctx); err == nil {
		credentialsTotal.Set(float64(n))
	}
}

func credentialID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid credential id")
		return 0, false
	}
	return id, true
}

// writeVaultError maps vault errors onto HTTP status codes.
// Store failures are logged and reported without detail.
func writeVaultError(w http.ResponseWriter, err error) {
	var verr *vault.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, vault.ErrNotFound):
		writeError(w, http.StatusNotFound, "credential not found")
	case errors.Is(err, vault.ErrDecryption):
		writeError(w, http.StatusUnprocessableEntity, "stored secret cannot be decrypted with the configured key")
	default:
		log.Error().Err(err).Msg("vault operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
