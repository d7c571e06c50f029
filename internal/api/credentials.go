package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/velagate/velagate-core/internal/credential"
)

// handleListCredentials returns all credentials, revoked included.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.credentials.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": creds, "count": len(creds)})
}

// handleGetCredential returns a single credential by ID.
func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cred, err := s.credentials.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			writeNotFound(w, "credential not found")
			return
		}
		writeInternalError(w, "failed to get credential")
		return
	}

	writeJSON(w, http.StatusOK, cred)
}

// createCredentialRequest is the admin payload for enrolling a credential.
type createCredentialRequest struct {
	Type   credential.Type `json:"type"`
	Value  string          `json:"value"`
	UserID *string         `json:"user_id,omitempty"`
	Note   string          `json:"note,omitempty"`
}

// handleCreateCredential enrols a new credential. The device fleet
// picks it up on the next sync cycle.
func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !req.Type.IsValid() {
		writeBadRequest(w, "invalid credential type")
		return
	}

	normalized := credential.Normalize(req.Type, req.Value)
	if normalized == "" {
		writeBadRequest(w, "credential value is empty")
		return
	}

	cred := &credential.Credential{
		ID:              uuid.NewString(),
		Type:            req.Type,
		Value:           req.Value,
		NormalizedValue: normalized,
		UserID:          req.UserID,
		Note:            req.Note,
	}

	if err := s.credentials.Create(r.Context(), cred); err != nil {
		if errors.Is(err, credential.ErrExists) {
			writeConflict(w, "credential already exists")
			return
		}
		writeInternalError(w, "failed to create credential")
		return
	}

	writeJSON(w, http.StatusCreated, cred)
}

// handleRevokeCredential soft-deletes a credential. The next sync
// cycle removes it from every device's onboard memory.
func (s *Server) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.credentials.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			writeNotFound(w, "credential not found")
			return
		}
		writeInternalError(w, "failed to revoke credential")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// denylistRequest toggles the unconditional-deny flag.
type denylistRequest struct {
	Denylisted bool `json:"denylisted"`
}

// handleSetDenylist flags or unflags a credential for unconditional
// deny. Denylisted credentials still resolve to an identity but every
// presentation is refused.
func (s *Server) handleSetDenylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req denylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.credentials.SetDenylisted(r.Context(), id, req.Denylisted); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			writeNotFound(w, "credential not found")
			return
		}
		writeInternalError(w, "failed to update credential")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         id,
		"denylisted": req.Denylisted,
	})
}
