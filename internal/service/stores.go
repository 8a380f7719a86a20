package service

import (
	"context"

	"github.com/google/uuid"

	"stablelink/internal/domain"
)

// Контракты хранилища. Каждый мутирующий вызов фиксирует переход
// состояния и его audit-запись в одной транзакции: либо оба,
// либо ничего. Переход выполняется только из ожидаемого статуса,
// проигравший гонку получает domain.ErrInvalidState.

type ConnectionStore interface {
	CreateConnection(ctx context.Context, c *domain.Connection, entry *domain.AuditEntry) error
	ConnectionByToken(ctx context.Context, token string) (*domain.Connection, error)
	ConnectionByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error)
	ListConnections(ctx context.Context, tenantID string) ([]domain.Connection, error)
	UpdateConnectionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error
	// RevokeConnectionCascade отзывает связь (из pending или accepted)
	// и все её активные гранты. На каждый отозванный грант пишется
	// отдельная audit-запись по образцу grantEntry. Возвращает число
	// отозванных грантов.
	RevokeConnectionCascade(ctx context.Context, id uuid.UUID, connEntry *domain.AuditEntry, grantEntry domain.AuditEntry) (int, error)
}

type GrantStore interface {
	// CreateGrant вставляет грант, только если связь все еще accepted
	// на момент вставки; иначе domain.ErrInvalidState.
	CreateGrant(ctx context.Context, g *domain.ConsentGrant, entry *domain.AuditEntry) error
	GrantByID(ctx context.Context, id uuid.UUID) (*domain.ConsentGrant, error)
	ListGrantsByConnection(ctx context.Context, connectionID uuid.UUID) ([]domain.ConsentGrant, error)
	UpdateGrantStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error
}

type ShareStore interface {
	CreateShare(ctx context.Context, s *domain.Share, entry *domain.AuditEntry) error
	ShareByToken(ctx context.Context, token string) (*domain.Share, error)
	ShareByID(ctx context.Context, id uuid.UUID) (*domain.Share, error)
	ListSharesBySubject(ctx context.Context, ownerTenantID, subjectResourceID string) ([]domain.Share, error)
	UpdateShareStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error
}

type AuditStore interface {
	AppendEntry(ctx context.Context, e *domain.AuditEntry) error
	ListEntriesByConnection(ctx context.Context, connectionID uuid.UUID) ([]domain.AuditEntry, error)
}

// ResourceFetcher — узкий read-only интерфейс к хранилищам доменных
// записей. Ядро через него никогда не пишет.
type ResourceFetcher interface {
	FetchByTypeAndOwner(ctx context.Context, resourceType domain.ResourceType, ownerTenantID string, ids []string) ([]domain.ResourceRecord, error)
}
