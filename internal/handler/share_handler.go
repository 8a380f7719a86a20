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

type ShareHandler struct {
	shares   *service.ShareService
	resolver *service.ResolverService
	verifier *auth.Verifier
}

func NewShareHandler(shares *service.ShareService, resolver *service.ResolverService, verifier *auth.Verifier) *ShareHandler {
	return &ShareHandler{shares: shares, resolver: resolver, verifier: verifier}
}

type createShareRequest struct {
	OwnerTenantID     string             `json:"owner_tenant_id"`
	SubjectResourceID string             `json:"subject_resource_id"`
	PackKey           string             `json:"pack_key"`
	Scope             *domain.ShareScope `json:"scope,omitempty"`
	DateFrom          *time.Time         `json:"date_from,omitempty"`
	DateTo            *time.Time         `json:"date_to,omitempty"`
	RecipientEmail    *string            `json:"recipient_email,omitempty"`
	ExpiresInSeconds  *int64             `json:"expires_in,omitempty"` // nil — бессрочно
}

func (h *ShareHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		log.Printf("[CreateShare] Authentication failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[CreateShare] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var expiresIn *time.Duration
	if req.ExpiresInSeconds != nil {
		duration := time.Duration(*req.ExpiresInSeconds) * time.Second
		expiresIn = &duration
	}

	share, err := h.shares.CreateShare(r.Context(), caller, req.OwnerTenantID, req.SubjectResourceID, service.ShareOptions{
		PackKey:        req.PackKey,
		Scope:          req.Scope,
		DateFrom:       req.DateFrom,
		DateTo:         req.DateTo,
		RecipientEmail: req.RecipientEmail,
		ExpiresIn:      expiresIn,
	})
	if err != nil {
		log.Printf("[CreateShare] Failed to create share: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[CreateShare] Created share %s for resource %s", share.ID, share.SubjectResourceID)
	writeJSON(w, http.StatusCreated, share)
}

func (h *ShareHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	shareID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid share ID", http.StatusBadRequest)
		return
	}

	if err := h.shares.RevokeShare(r.Context(), caller, shareID); err != nil {
		log.Printf("[RevokeShare] Failed: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[RevokeShare] Share %s revoked", shareID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShareHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	subjectID := r.URL.Query().Get("subject_id")
	if tenantID == "" || subjectID == "" {
		http.Error(w, "tenant_id and subject_id are required", http.StatusBadRequest)
		return
	}

	list, err := h.shares.ListShares(r.Context(), caller, tenantID, subjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func (h *ShareHandler) ListPacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"packs": h.shares.Packs()})
}

// ResolveShareToken — публичная страница отчета. Авторизации нет:
// токен и есть секрет. Отказы отдаются типизированной причиной
// с кодом 200, чтобы страница показала конкретное сообщение.
func (h *ShareHandler) ResolveShareToken(w http.ResponseWriter, r *http.Request) {
	shareToken := chi.URLParam(r, "token")
	if shareToken == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	// Для email-locked ссылок email берется только из проверенной
	// личности, никогда из параметров запроса
	presentedEmail := ""
	if caller, err := h.verifier.VerifyRequest(r); err == nil {
		presentedEmail = caller.Email
	}

	resolution, err := h.resolver.ResolveShareToken(r.Context(), shareToken, presentedEmail)
	if err != nil {
		log.Printf("[ResolveShareToken] Failed: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[ResolveShareToken] Resolution: %s", resolution.Reason)
	writeJSON(w, http.StatusOK, resolution)
}
