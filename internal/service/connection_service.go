package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stablelink/internal/domain"
	"stablelink/internal/token"
)

// ConnectionService владеет жизненным циклом связи между двумя сторонами:
// pending -> accepted | rejected | revoked | expired, accepted -> revoked.
// Переходы монотонны, из конечного статуса выхода нет.
type ConnectionService struct {
	conns ConnectionStore
	audit AuditStore

	// Подменяется в тестах
	Now func() time.Time
}

func NewConnectionService(conns ConnectionStore, audit AuditStore) *ConnectionService {
	return &ConnectionService{
		conns: conns,
		audit: audit,
		Now:   time.Now,
	}
}

// CreateConnection создает запрос на связь от имени тенанта-инициатора.
func (s *ConnectionService) CreateConnection(
	ctx context.Context,
	caller domain.Caller,
	initiatorTenantID string,
	connectionType domain.ConnectionType,
	recipient domain.Recipient,
	expiresAt *time.Time,
	metadata domain.Metadata,
) (*domain.Connection, error) {
	if initiatorTenantID == "" {
		return nil, fmt.Errorf("%w: initiator tenant is required", domain.ErrValidation)
	}
	if connectionType == "" {
		return nil, fmt.Errorf("%w: connection type is required", domain.ErrValidation)
	}
	if !caller.MemberOf(initiatorTenantID) {
		return nil, fmt.Errorf("%w: caller is not a member of tenant %s", domain.ErrNotAuthorized, initiatorTenantID)
	}
	if err := recipient.Validate(); err != nil {
		return nil, err
	}
	if expiresAt != nil && !expiresAt.After(s.Now()) {
		return nil, fmt.Errorf("%w: expires_at must be in the future", domain.ErrValidation)
	}

	tok, err := token.Generate()
	if err != nil {
		return nil, err
	}

	conn := &domain.Connection{
		ID:                 uuid.New(),
		ConnectionType:     connectionType,
		InitiatorTenantID:  initiatorTenantID,
		RecipientTenantID:  recipient.TenantID,
		RecipientProfileID: recipient.ProfileID,
		RecipientEmail:     recipient.Email,
		RecipientPhone:     recipient.Phone,
		Status:             domain.StatusPending,
		Token:              tok,
		ExpiresAt:          expiresAt,
		CreatedAt:          s.Now(),
		Metadata:           metadata,
	}

	entry := s.entry(domain.EventCreated, conn)
	entry.ActorTenantID = &conn.InitiatorTenantID

	if err := s.conns.CreateConnection(ctx, conn, entry); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return conn, nil
}

// AcceptConnection принимает связь по токену. Повторный accept уже
// принятой связи — no-op успех, чтобы переживать ретраи клиента.
func (s *ConnectionService) AcceptConnection(ctx context.Context, connToken string) (uuid.UUID, error) {
	conn, err := s.resolveByToken(ctx, connToken)
	if err != nil {
		return uuid.Nil, err
	}
	if conn.Status == domain.StatusAccepted {
		return conn.ID, nil
	}
	if conn.Status != domain.StatusPending {
		return uuid.Nil, fmt.Errorf("%w: connection is %s", domain.ErrInvalidState, conn.Status)
	}
	if err := s.expirePending(ctx, conn); err != nil {
		return uuid.Nil, err
	}

	entry := s.entry(domain.EventAccepted, conn)
	entry.ActorTenantID = conn.RecipientTenantID
	targetID := conn.InitiatorTenantID
	entry.TargetTenantID = &targetID

	if err := s.conns.UpdateConnectionStatus(ctx, conn.ID, domain.StatusPending, domain.StatusAccepted, entry); err != nil {
		return uuid.Nil, err
	}
	return conn.ID, nil
}

// RejectConnection отклоняет связь по токену.
func (s *ConnectionService) RejectConnection(ctx context.Context, connToken string) error {
	conn, err := s.resolveByToken(ctx, connToken)
	if err != nil {
		return err
	}
	if conn.Status != domain.StatusPending {
		return fmt.Errorf("%w: connection is %s", domain.ErrInvalidState, conn.Status)
	}
	if err := s.expirePending(ctx, conn); err != nil {
		return err
	}

	entry := s.entry(domain.EventRejected, conn)
	entry.ActorTenantID = conn.RecipientTenantID
	targetID := conn.InitiatorTenantID
	entry.TargetTenantID = &targetID

	return s.conns.UpdateConnectionStatus(ctx, conn.ID, domain.StatusPending, domain.StatusRejected, entry)
}

// RevokeConnection отзывает связь. До принятия — только инициатор,
// после — любая из сторон. После rejected/expired отзыв невозможен.
// Отзыв каскадно отзывает все активные гранты связи, каждый —
// со своей audit-записью, все в одной транзакции.
func (s *ConnectionService) RevokeConnection(ctx context.Context, caller domain.Caller, connToken string) error {
	conn, err := s.resolveByToken(ctx, connToken)
	if err != nil {
		return err
	}
	switch conn.Status {
	case domain.StatusPending:
		if !conn.IsInitiator(caller) {
			return fmt.Errorf("%w: only the initiator may revoke a pending connection", domain.ErrNotAuthorized)
		}
		if err := s.expirePending(ctx, conn); err != nil {
			return err
		}
	case domain.StatusAccepted:
		if !conn.IsParty(caller) {
			return fmt.Errorf("%w: caller is not a party of this connection", domain.ErrNotAuthorized)
		}
	default:
		return fmt.Errorf("%w: connection is %s", domain.ErrInvalidState, conn.Status)
	}

	connEntry := s.entry(domain.EventRevoked, conn)
	connEntry.ActorTenantID = s.actorTenant(caller, conn)

	grantEntry := domain.AuditEntry{
		EventType:     domain.EventGrantRevoked,
		ActorTenantID: connEntry.ActorTenantID,
		ConnectionID:  connEntry.ConnectionID,
		Detail:        domain.Metadata{"cause": "connection_revoked"},
	}

	if _, err := s.conns.RevokeConnectionCascade(ctx, conn.ID, connEntry, grantEntry); err != nil {
		return err
	}
	return nil
}

// ListConnections возвращает связи тенанта в обе стороны.
func (s *ConnectionService) ListConnections(ctx context.Context, caller domain.Caller, tenantID string) ([]domain.Connection, error) {
	if !caller.MemberOf(tenantID) {
		return nil, fmt.Errorf("%w: caller is not a member of tenant %s", domain.ErrNotAuthorized, tenantID)
	}
	return s.conns.ListConnections(ctx, tenantID)
}

// ListAudit возвращает audit-журнал связи. Только для сторон связи.
func (s *ConnectionService) ListAudit(ctx context.Context, caller domain.Caller, connectionID uuid.UUID) ([]domain.AuditEntry, error) {
	conn, err := s.conns.ConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsParty(caller) {
		return nil, fmt.Errorf("%w: caller is not a party of this connection", domain.ErrNotAuthorized)
	}
	return s.audit.ListEntriesByConnection(ctx, connectionID)
}

func (s *ConnectionService) resolveByToken(ctx context.Context, connToken string) (*domain.Connection, error) {
	if connToken == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrValidation)
	}
	conn, err := s.conns.ConnectionByToken(ctx, connToken)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// expirePending лениво переводит просроченную pending-связь в expired
// и возвращает ErrExpired. Никакого фонового свипера для корректности
// не требуется.
func (s *ConnectionService) expirePending(ctx context.Context, conn *domain.Connection) error {
	if !domain.PastExpiry(conn.ExpiresAt, s.Now()) {
		return nil
	}
	entry := s.entry(domain.EventExpired, conn)
	if err := s.conns.UpdateConnectionStatus(ctx, conn.ID, domain.StatusPending, domain.StatusExpired, entry); err != nil {
		return err
	}
	return fmt.Errorf("%w: connection expired at %s", domain.ErrExpired, conn.ExpiresAt)
}

func (s *ConnectionService) entry(event domain.AuditEvent, conn *domain.Connection) *domain.AuditEntry {
	id := conn.ID
	return &domain.AuditEntry{
		EventType:      event,
		ConnectionID:   &id,
		TargetTenantID: conn.RecipientTenantID,
	}
}

func (s *ConnectionService) actorTenant(caller domain.Caller, conn *domain.Connection) *string {
	if caller.MemberOf(conn.InitiatorTenantID) {
		id := conn.InitiatorTenantID
		return &id
	}
	if conn.RecipientTenantID != nil && caller.MemberOf(*conn.RecipientTenantID) {
		return conn.RecipientTenantID
	}
	return nil
}
