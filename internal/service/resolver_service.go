package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stablelink/internal/domain"
	"stablelink/internal/token"
)

// ResolverService — единственная точка принятия решения о доступе.
// Сюда сходятся оба вида учетных данных: грант с личностью вызывающего
// и публичный токен. Резолвер вычисляет действующий на данный момент
// scope и фильтрует данные; сами записи он не интерпретирует.
type ResolverService struct {
	conns     ConnectionStore
	grants    GrantStore
	shares    ShareStore
	audit     AuditStore
	resources ResourceFetcher

	Now func() time.Time
}

func NewResolverService(
	conns ConnectionStore,
	grants GrantStore,
	shares ShareStore,
	audit AuditStore,
	resources ResourceFetcher,
) *ResolverService {
	return &ResolverService{
		conns:     conns,
		grants:    grants,
		shares:    shares,
		audit:     audit,
		resources: resources,
		Now:       time.Now,
	}
}

// Типы, которые резолвер умеет фильтровать. Неизвестный тип дает
// пустой результат, а не ошибку: fail closed, вперед-совместимо
// с типами, которым резолвер еще не обучен.
var knownResourceTypes = map[domain.ResourceType]bool{
	domain.ResourceTypeVetRecords:      true,
	domain.ResourceTypeLabResults:      true,
	domain.ResourceTypeBreedingRecords: true,
	domain.ResourceTypeFiles:           true,
	domain.ResourceTypeHorseProfile:    true,
}

// FilteredView — авторизованный, отфильтрованный срез данных по гранту.
type FilteredView struct {
	ResourceType domain.ResourceType     `json:"resource_type"`
	AccessLevel  domain.AccessLevel      `json:"access_level"`
	ForwardOnly  bool                    `json:"forward_only"`
	Records      []domain.ResourceRecord `json:"records"`
}

// ShareReason — причина результата резолюции публичного токена.
// Возвращается типизированно, а не ошибкой: публичная страница должна
// показать конкретное, понятное человеку сообщение.
type ShareReason string

const (
	ShareOK                     ShareReason = "ok"
	ShareNotFound               ShareReason = "not_found"
	ShareRevoked                ShareReason = "revoked"
	ShareExpired                ShareReason = "expired"
	ShareEmailLockRequiresLogin ShareReason = "email_lock_requires_login"
	ShareEmailMismatch          ShareReason = "email_mismatch"
)

// ShareResolution — результат резолюции публичного токена.
type ShareResolution struct {
	Reason     ShareReason                                  `json:"reason"`
	Share      *domain.Share                                `json:"share,omitempty"`
	Subject    *domain.ResourceRecord                       `json:"subject,omitempty"`
	Categories map[domain.ResourceType][]domain.ResourceRecord `json:"categories,omitempty"`
}

func (r *ShareResolution) OK() bool {
	return r.Reason == ShareOK
}

// ResolveGrant вычисляет срез данных по гранту для вызывающего.
// Вызывающий обязан быть стороной-получателем связи гранта.
func (s *ResolverService) ResolveGrant(ctx context.Context, caller domain.Caller, grantID uuid.UUID) (*FilteredView, error) {
	grant, err := s.grants.GrantByID(ctx, grantID)
	if err != nil {
		return nil, err
	}

	switch grant.Status {
	case domain.StatusActive:
	case domain.StatusRevoked:
		return nil, fmt.Errorf("%w: grant has been revoked", domain.ErrRevoked)
	case domain.StatusExpired:
		return nil, fmt.Errorf("%w: grant has expired", domain.ErrExpired)
	default:
		return nil, fmt.Errorf("%w: grant is %s", domain.ErrInvalidState, grant.Status)
	}
	if domain.PastExpiry(grant.ExpiresAt, s.Now()) {
		if err := s.expireGrant(ctx, grant); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: grant expired at %s", domain.ErrExpired, grant.ExpiresAt)
	}

	conn, err := s.conns.ConnectionByID(ctx, grant.ConnectionID)
	if err != nil {
		return nil, err
	}
	// Отзыв связи каскадно отзывает гранты; проверка статуса здесь —
	// страховка от чтения между отзывом и каскадом.
	if conn.Status != domain.StatusAccepted {
		return nil, fmt.Errorf("%w: connection has been revoked", domain.ErrRevoked)
	}
	if !s.isGrantRecipient(caller, grant, conn) {
		return nil, fmt.Errorf("%w: caller is not the recipient of this grant", domain.ErrNotAuthorized)
	}

	records, err := s.loadGrantRecords(ctx, grant)
	if err != nil {
		return nil, err
	}

	// В audit попадают тип и количество, но не содержимое записей:
	// дублировать чувствительные данные в журнал нельзя.
	connID := grant.ConnectionID
	gID := grant.ID
	entry := &domain.AuditEntry{
		EventType:      domain.EventDataAccessed,
		ActorTenantID:  s.callerTenant(caller, conn),
		TargetTenantID: &grant.GrantorTenantID,
		ConnectionID:   &connID,
		GrantID:        &gID,
		Detail: domain.Metadata{
			"resource_type": string(grant.ResourceType),
			"record_count":  len(records),
		},
	}
	if err := s.audit.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	return &FilteredView{
		ResourceType: grant.ResourceType,
		AccessLevel:  grant.AccessLevel,
		ForwardOnly:  grant.ForwardOnly,
		Records:      records,
	}, nil
}

// ResolveShareToken резолвит публичный токен. Сравнение токена —
// за постоянное время. Все отказы возвращаются причиной, не ошибкой.
func (s *ResolverService) ResolveShareToken(ctx context.Context, presentedToken, presentedEmail string) (*ShareResolution, error) {
	if presentedToken == "" {
		return &ShareResolution{Reason: ShareNotFound}, nil
	}

	share, err := s.shares.ShareByToken(ctx, presentedToken)
	if errors.Is(err, domain.ErrNotFound) {
		return &ShareResolution{Reason: ShareNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if !token.ConstantTimeEquals(share.Token, presentedToken) {
		return &ShareResolution{Reason: ShareNotFound}, nil
	}

	switch share.Status {
	case domain.StatusActive:
	case domain.StatusRevoked:
		return &ShareResolution{Reason: ShareRevoked}, nil
	case domain.StatusExpired:
		return &ShareResolution{Reason: ShareExpired}, nil
	default:
		return &ShareResolution{Reason: ShareNotFound}, nil
	}
	if domain.PastExpiry(share.ExpiresAt, s.Now()) {
		if err := s.expireShare(ctx, share); err != nil {
			return nil, err
		}
		return &ShareResolution{Reason: ShareExpired}, nil
	}

	if share.RecipientEmail != nil && *share.RecipientEmail != "" {
		if presentedEmail == "" {
			return &ShareResolution{Reason: ShareEmailLockRequiresLogin}, nil
		}
		if !strings.EqualFold(presentedEmail, *share.RecipientEmail) {
			return &ShareResolution{Reason: ShareEmailMismatch}, nil
		}
	}

	subject, categories, total, err := s.loadShareRecords(ctx, share)
	if err != nil {
		return nil, err
	}

	shareID := share.ID
	entry := &domain.AuditEntry{
		EventType:      domain.EventDataAccessed,
		TargetTenantID: &share.OwnerTenantID,
		ShareID:        &shareID,
		Detail: domain.Metadata{
			"pack_key":     share.PackKey,
			"record_count": total,
		},
	}
	if err := s.audit.AppendEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	return &ShareResolution{
		Reason:     ShareOK,
		Share:      share,
		Subject:    subject,
		Categories: categories,
	}, nil
}

func (s *ResolverService) loadGrantRecords(ctx context.Context, grant *domain.ConsentGrant) ([]domain.ResourceRecord, error) {
	if !knownResourceTypes[grant.ResourceType] {
		return []domain.ResourceRecord{}, nil
	}

	fetched, err := s.resources.FetchByTypeAndOwner(ctx, grant.ResourceType, grant.GrantorTenantID, grant.ResourceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	records := make([]domain.ResourceRecord, 0, len(fetched))
	for _, rec := range fetched {
		// Диапазон дат — AND-фильтр поверх allow-списка: запись из
		// списка вне диапазона не возвращается.
		if !grant.AllowsResource(rec.ID) || !grant.InDateWindow(rec.RecordDate) {
			continue
		}
		records = append(records, rec.Redact(grant.ExcludedFields))
	}
	return records, nil
}

func (s *ResolverService) loadShareRecords(ctx context.Context, share *domain.Share) (*domain.ResourceRecord, map[domain.ResourceType][]domain.ResourceRecord, int, error) {
	subjects, err := s.resources.FetchByTypeAndOwner(ctx, domain.ResourceTypeHorseProfile, share.OwnerTenantID, []string{share.SubjectResourceID})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to fetch subject: %w", err)
	}
	var subject *domain.ResourceRecord
	if len(subjects) > 0 {
		subject = &subjects[0]
	}

	included := map[domain.ResourceType]bool{
		domain.ResourceTypeVetRecords: share.IncludeVet,
		domain.ResourceTypeLabResults: share.IncludeLab,
		domain.ResourceTypeFiles:      share.IncludeFiles,
	}

	total := 0
	categories := make(map[domain.ResourceType][]domain.ResourceRecord)
	for _, rt := range []domain.ResourceType{domain.ResourceTypeVetRecords, domain.ResourceTypeLabResults, domain.ResourceTypeFiles} {
		if !included[rt] {
			continue
		}
		fetched, err := s.resources.FetchByTypeAndOwner(ctx, rt, share.OwnerTenantID, nil)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to fetch %s: %w", rt, err)
		}
		records := make([]domain.ResourceRecord, 0, len(fetched))
		for _, rec := range fetched {
			if !share.InDateWindow(rec.RecordDate) {
				continue
			}
			records = append(records, rec)
		}
		categories[rt] = records
		total += len(records)
	}

	return subject, categories, total, nil
}

// isGrantRecipient: вызывающий на стороне, противоположной грантору.
func (s *ResolverService) isGrantRecipient(caller domain.Caller, grant *domain.ConsentGrant, conn *domain.Connection) bool {
	if caller.MemberOf(grant.GrantorTenantID) {
		return false
	}
	if conn.InitiatorTenantID == grant.GrantorTenantID {
		return conn.IsRecipient(caller)
	}
	return conn.IsInitiator(caller)
}

func (s *ResolverService) callerTenant(caller domain.Caller, conn *domain.Connection) *string {
	if caller.MemberOf(conn.InitiatorTenantID) {
		id := conn.InitiatorTenantID
		return &id
	}
	if conn.RecipientTenantID != nil && caller.MemberOf(*conn.RecipientTenantID) {
		return conn.RecipientTenantID
	}
	return nil
}

func (s *ResolverService) expireGrant(ctx context.Context, grant *domain.ConsentGrant) error {
	connID := grant.ConnectionID
	gID := grant.ID
	entry := &domain.AuditEntry{
		EventType:    domain.EventExpired,
		ConnectionID: &connID,
		GrantID:      &gID,
	}
	err := s.grants.UpdateGrantStatus(ctx, grant.ID, domain.StatusActive, domain.StatusExpired, entry)
	if errors.Is(err, domain.ErrInvalidState) {
		// Кто-то успел раньше, статус уже конечный
		return nil
	}
	return err
}

func (s *ResolverService) expireShare(ctx context.Context, share *domain.Share) error {
	id := share.ID
	entry := &domain.AuditEntry{
		EventType: domain.EventExpired,
		ShareID:   &id,
	}
	err := s.shares.UpdateShareStatus(ctx, share.ID, domain.StatusActive, domain.StatusExpired, entry)
	if errors.Is(err, domain.ErrInvalidState) {
		return nil
	}
	return err
}
