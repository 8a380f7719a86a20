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

type ConnectionHandler struct {
	connections *service.ConnectionService
	verifier    *auth.Verifier
}

func NewConnectionHandler(connections *service.ConnectionService, verifier *auth.Verifier) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, verifier: verifier}
}

type createConnectionRequest struct {
	InitiatorTenantID string                `json:"initiator_tenant_id"`
	ConnectionType    domain.ConnectionType `json:"connection_type"`
	Recipient         domain.Recipient      `json:"recipient"`
	ExpiresAt         *time.Time            `json:"expires_at,omitempty"`
	Metadata          domain.Metadata       `json:"metadata,omitempty"`
}

func (h *ConnectionHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		log.Printf("[CreateConnection] Authentication failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[CreateConnection] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conn, err := h.connections.CreateConnection(
		r.Context(),
		caller,
		req.InitiatorTenantID,
		req.ConnectionType,
		req.Recipient,
		req.ExpiresAt,
		req.Metadata,
	)
	if err != nil {
		log.Printf("[CreateConnection] Failed to create connection: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[CreateConnection] Created connection %s (%s)", conn.ID, conn.ConnectionType)
	writeJSON(w, http.StatusCreated, conn)
}

// AcceptConnection принимает связь по токену. Токен — capability:
// получатель может еще не иметь аккаунта.
func (h *ConnectionHandler) AcceptConnection(w http.ResponseWriter, r *http.Request) {
	connToken := chi.URLParam(r, "token")
	if connToken == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	id, err := h.connections.AcceptConnection(r.Context(), connToken)
	if err != nil {
		log.Printf("[AcceptConnection] Failed: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[AcceptConnection] Connection %s accepted", id)
	writeJSON(w, http.StatusOK, map[string]string{"connection_id": id.String()})
}

func (h *ConnectionHandler) RejectConnection(w http.ResponseWriter, r *http.Request) {
	connToken := chi.URLParam(r, "token")
	if connToken == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	if err := h.connections.RejectConnection(r.Context(), connToken); err != nil {
		log.Printf("[RejectConnection] Failed: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[RejectConnection] Connection rejected")
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionHandler) RevokeConnection(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connToken := chi.URLParam(r, "token")
	if connToken == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	if err := h.connections.RevokeConnection(r.Context(), caller, connToken); err != nil {
		log.Printf("[RevokeConnection] Failed: %v", err)
		writeError(w, err)
		return
	}

	log.Printf("[RevokeConnection] Connection revoked")
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	conns, err := h.connections.ListConnections(r.Context(), caller, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conns)
}

func (h *ConnectionHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	caller, err := h.verifier.VerifyRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid connection ID", http.StatusBadRequest)
		return
	}

	entries, err := h.connections.ListAudit(r.Context(), caller, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}
