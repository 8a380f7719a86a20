package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditEvent string

const (
	EventCreated      AuditEvent = "created"
	EventAccepted     AuditEvent = "accepted"
	EventRejected     AuditEvent = "rejected"
	EventRevoked      AuditEvent = "revoked"
	EventExpired      AuditEvent = "expired"
	EventGrantCreated AuditEvent = "grant_created"
	EventGrantRevoked AuditEvent = "grant_revoked"
	EventDataAccessed AuditEvent = "data_accessed"
)

// AuditEntry — неизменяемая запись о событии. Пишется синхронно,
// в той же транзакции, что и фиксируемое изменение состояния.
// Никогда не обновляется и не удаляется.
type AuditEntry struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	EventType      AuditEvent `json:"event_type" db:"event_type"`
	ActorTenantID  *string    `json:"actor_tenant_id,omitempty" db:"actor_tenant_id"`
	TargetTenantID *string    `json:"target_tenant_id,omitempty" db:"target_tenant_id"`
	ConnectionID   *uuid.UUID `json:"connection_id,omitempty" db:"connection_id"`
	GrantID        *uuid.UUID `json:"grant_id,omitempty" db:"grant_id"`
	ShareID        *uuid.UUID `json:"share_id,omitempty" db:"share_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	Detail         Metadata   `json:"detail,omitempty" db:"detail"`
}
