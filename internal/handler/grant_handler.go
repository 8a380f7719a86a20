package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stablelink/internal/auth"
	"stablelink/internal/domain"
	"stablelink/internal/service"
)

type GrantHandler struct {
	grants   *service.GrantService
	resolver *service.ResolverService
	verifier *auth.Verifier
}

func NewGrantHandler(grants *service.GrantService, resolver *service.ResolverService, verifier *auth.Verifier) *GrantHandler {
	return &GrantHandler{grants: grants, resolver: resolver, verifier: verifier}
}

type createGrantRequest struct {
	ResourceType   domain.ResourceType `json:"resource_type"`
	ResourceIDs    []string            `json:"resource_ids,omitempty"`
	AccessLevel    domain.AccessLevel  `json:"access_level,omitempty"`
	DateFrom       *time.Time          `json:"date_from,omitempty"`
	DateTo         *time.Time          `json:"date_to,omitempty"`
	ForwardOnly    bool                `json:"forward_only,omitempty"`
	ExcludedFields []string            `json:"excluded_fields,omitempty"`
	ExpiresAt      *time.Time          `json:"expires_at,omitempty"`
}

func (h *GrantHandler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid connection ID", http.StatusBadRequest)
		return
	}

	var req createGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[CreateGrant] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	grant, err := h.grants.CreateGrant(r.Context(), caller, connectionID, req.ResourceType, service.GrantOptions{
		ResourceIDs:    req.ResourceIDs,
		AccessLevel:    req.AccessLevel,
		DateFrom:       req.DateFrom,
		DateTo:         req.DateTo,
		ForwardOnly:    req.ForwardOnly,
		ExcludedFields: req.ExcludedFields,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		log.Printf("[CreateGrant] Failed to create grant: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[CreateGrant] Created grant %s (%s) on connection %s", grant.ID, grant.ResourceType, connectionID)
	writeJSON(w, http.StatusCreated, grant)
}

func (h *GrantHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid connection ID", http.StatusBadRequest)
		return
	}

	asRecipient := r.URL.Query().Get("as") == "recipient"

	grants, err := h.grants.ListGrants(r.Context(), caller, connectionID, asRecipient)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, grants)
}

func (h *GrantHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	grantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid grant ID", http.StatusBadRequest)
		return
	}

	if err := h.grants.RevokeGrant(r.Context(), caller, grantID); err != nil {
		log.Printf("[RevokeGrant] Failed: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[RevokeGrant] Grant %s revoked", grantID)
	w.WriteHeader(http.StatusNoContent)
}

// ResolveGrant — чтение данных по гранту ("доступно мне").
func (h *GrantHandler) ResolveGrant(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	grantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid grant ID", http.StatusBadRequest)
		return
	}

	view, err := h.resolver.ResolveGrant(r.Context(), caller, grantID)
	if err != nil {
		log.Printf("[ResolveGrant] Failed for grant %s: %v", grantID, err)
		writeError(w, err)
		return
	}

	log.Printf("[ResolveGrant] Grant %s resolved, %d records", grantID, len(view.Records))
	writeJSON(w, http.StatusOK, view)
}
