package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stablelink/internal/domain"
)

// GrantService выдает и отзывает гранты согласия поверх принятых связей.
// Грантовать может любая из сторон: данные могут быть у обеих.
type GrantService struct {
	conns  ConnectionStore
	grants GrantStore

	Now func() time.Time
}

func NewGrantService(conns ConnectionStore, grants GrantStore) *GrantService {
	return &GrantService{
		conns:  conns,
		grants: grants,
		Now:    time.Now,
	}
}

// GrantOptions — необязательные параметры гранта.
type GrantOptions struct {
	ResourceIDs    []string
	AccessLevel    domain.AccessLevel
	DateFrom       *time.Time
	DateTo         *time.Time
	ForwardOnly    bool
	ExcludedFields []string
	ExpiresAt      *time.Time
}

// CreateGrant создает грант от тенанта вызывающего к контрагенту связи.
// Связь должна быть accepted; повторная проверка выполняется внутри
// транзакции вставки, чтобы не проиграть гонку с отзывом связи.
func (s *GrantService) CreateGrant(
	ctx context.Context,
	caller domain.Caller,
	connectionID uuid.UUID,
	resourceType domain.ResourceType,
	opts GrantOptions,
) (*domain.ConsentGrant, error) {
	if resourceType == "" {
		return nil, fmt.Errorf("%w: resource type is required", domain.ErrValidation)
	}
	if opts.DateFrom != nil && opts.DateTo != nil && opts.DateTo.Before(*opts.DateFrom) {
		return nil, fmt.Errorf("%w: date_to is before date_from", domain.ErrValidation)
	}

	conn, err := s.conns.ConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != domain.StatusAccepted {
		return nil, fmt.Errorf("%w: connection is %s, grants require an accepted connection", domain.ErrInvalidState, conn.Status)
	}

	grantor, err := s.grantorTenant(caller, conn)
	if err != nil {
		return nil, err
	}

	accessLevel := opts.AccessLevel
	if accessLevel == "" {
		accessLevel = domain.AccessLevelRead
	}

	grant := &domain.ConsentGrant{
		ID:              uuid.New(),
		ConnectionID:    conn.ID,
		GrantorTenantID: grantor,
		ResourceType:    resourceType,
		ResourceIDs:     opts.ResourceIDs,
		AccessLevel:     accessLevel,
		DateFrom:        opts.DateFrom,
		DateTo:          opts.DateTo,
		ForwardOnly:     opts.ForwardOnly,
		ExcludedFields:  opts.ExcludedFields,
		Status:          domain.StatusActive,
		ExpiresAt:       opts.ExpiresAt,
		CreatedAt:       s.Now(),
	}

	connID := conn.ID
	grantID := grant.ID
	entry := &domain.AuditEntry{
		EventType:      domain.EventGrantCreated,
		ActorTenantID:  &grant.GrantorTenantID,
		TargetTenantID: conn.CounterpartTenantID(grantor),
		ConnectionID:   &connID,
		GrantID:        &grantID,
		Detail:         domain.Metadata{"resource_type": string(resourceType)},
	}

	if err := s.grants.CreateGrant(ctx, grant, entry); err != nil {
		return nil, err
	}
	return grant, nil
}

// RevokeGrant отзывает грант. Доступно только грантору.
// Отзыв виден резолверу уже на следующем чтении, кэша нет.
func (s *GrantService) RevokeGrant(ctx context.Context, caller domain.Caller, grantID uuid.UUID) error {
	grant, err := s.grants.GrantByID(ctx, grantID)
	if err != nil {
		return err
	}
	if !caller.MemberOf(grant.GrantorTenantID) {
		return fmt.Errorf("%w: only the grantor may revoke a grant", domain.ErrNotAuthorized)
	}
	if grant.Status != domain.StatusActive {
		return fmt.Errorf("%w: grant is %s", domain.ErrInvalidState, grant.Status)
	}

	connID := grant.ConnectionID
	gID := grant.ID
	if domain.PastExpiry(grant.ExpiresAt, s.Now()) {
		entry := &domain.AuditEntry{
			EventType:    domain.EventExpired,
			ConnectionID: &connID,
			GrantID:      &gID,
		}
		if err := s.grants.UpdateGrantStatus(ctx, grant.ID, domain.StatusActive, domain.StatusExpired, entry); err != nil {
			return err
		}
		return fmt.Errorf("%w: grant expired at %s", domain.ErrExpired, grant.ExpiresAt)
	}

	entry := &domain.AuditEntry{
		EventType:     domain.EventGrantRevoked,
		ActorTenantID: &grant.GrantorTenantID,
		ConnectionID:  &connID,
		GrantID:       &gID,
	}
	return s.grants.UpdateGrantStatus(ctx, grant.ID, domain.StatusActive, domain.StatusRevoked, entry)
}

// ListGrants возвращает гранты связи. Грантор видит полную историю
// своих грантов; получатель — только действующие. Отозванные и
// истекшие гранты получателю не показываются вовсе: сторона без
// доступа не должна видеть даже их метаданные.
func (s *GrantService) ListGrants(ctx context.Context, caller domain.Caller, connectionID uuid.UUID, asRecipient bool) ([]domain.ConsentGrant, error) {
	conn, err := s.conns.ConnectionByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsParty(caller) {
		return nil, fmt.Errorf("%w: caller is not a party of this connection", domain.ErrNotAuthorized)
	}

	grants, err := s.grants.ListGrantsByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	out := make([]domain.ConsentGrant, 0, len(grants))
	for _, g := range grants {
		if asRecipient {
			if caller.MemberOf(g.GrantorTenantID) {
				continue
			}
			if g.Status != domain.StatusActive || domain.PastExpiry(g.ExpiresAt, now) {
				continue
			}
		} else {
			if !caller.MemberOf(g.GrantorTenantID) {
				continue
			}
		}
		out = append(out, g)
	}
	return out, nil
}

// grantorTenant определяет тенант-грантор со стороны вызывающего.
func (s *GrantService) grantorTenant(caller domain.Caller, conn *domain.Connection) (string, error) {
	if caller.MemberOf(conn.InitiatorTenantID) {
		return conn.InitiatorTenantID, nil
	}
	if conn.RecipientTenantID != nil && caller.MemberOf(*conn.RecipientTenantID) {
		return *conn.RecipientTenantID, nil
	}
	return "", fmt.Errorf("%w: caller's tenant is not a party of this connection", domain.ErrNotAuthorized)
}
