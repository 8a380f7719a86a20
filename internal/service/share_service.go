package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stablelink/internal/domain"
	"stablelink/internal/token"
)

// ShareService выдает публичные ссылки на один ресурс. Connection для
// них не нужна: токен сам является секретом и предъявляется носителем.
type ShareService struct {
	shares ShareStore
	packs  *PackTable

	Now func() time.Time
}

func NewShareService(shares ShareStore, packs *PackTable) *ShareService {
	return &ShareService{
		shares: shares,
		packs:  packs,
		Now:    time.Now,
	}
}

// ShareOptions — параметры создания ссылки.
type ShareOptions struct {
	PackKey        string
	Scope          *domain.ShareScope // переопределение дефолтов набора
	DateFrom       *time.Time
	DateTo         *time.Time
	RecipientEmail *string
	ExpiresIn      *time.Duration // nil — бессрочно
}

// ShareList — разбиение ссылок по вычисляемому статусу.
type ShareList struct {
	Active   []domain.Share `json:"active"`
	Inactive []domain.Share `json:"inactive"`
}

// CreateShare создает публичную ссылку от имени тенанта-владельца.
func (s *ShareService) CreateShare(
	ctx context.Context,
	caller domain.Caller,
	ownerTenantID string,
	subjectResourceID string,
	opts ShareOptions,
) (*domain.Share, error) {
	if ownerTenantID == "" {
		return nil, fmt.Errorf("%w: owner tenant is required", domain.ErrValidation)
	}
	if subjectResourceID == "" {
		return nil, fmt.Errorf("%w: subject resource is required", domain.ErrValidation)
	}
	if !caller.MemberOf(ownerTenantID) {
		return nil, fmt.Errorf("%w: caller is not a member of tenant %s", domain.ErrNotAuthorized, ownerTenantID)
	}
	if opts.DateFrom != nil && opts.DateTo != nil && opts.DateTo.Before(*opts.DateFrom) {
		return nil, fmt.Errorf("%w: date_to is before date_from", domain.ErrValidation)
	}

	scope, err := s.packs.Resolve(opts.PackKey, opts.Scope)
	if err != nil {
		return nil, err
	}

	tok, err := token.Generate()
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if opts.ExpiresIn != nil {
		t := s.Now().Add(*opts.ExpiresIn)
		expiresAt = &t
	}

	share := &domain.Share{
		ID:                uuid.New(),
		OwnerTenantID:     ownerTenantID,
		SubjectResourceID: subjectResourceID,
		Token:             tok,
		PackKey:           opts.PackKey,
		IncludeVet:        scope.IncludeVet,
		IncludeLab:        scope.IncludeLab,
		IncludeFiles:      scope.IncludeFiles,
		RecipientEmail:    opts.RecipientEmail,
		DateFrom:          opts.DateFrom,
		DateTo:            opts.DateTo,
		Status:            domain.StatusActive,
		ExpiresAt:         expiresAt,
		CreatedAt:         s.Now(),
	}

	shareID := share.ID
	entry := &domain.AuditEntry{
		EventType:     domain.EventCreated,
		ActorTenantID: &share.OwnerTenantID,
		ShareID:       &shareID,
		Detail:        domain.Metadata{"pack_key": opts.PackKey},
	}

	if err := s.shares.CreateShare(ctx, share, entry); err != nil {
		return nil, fmt.Errorf("failed to create share: %w", err)
	}
	return share, nil
}

// RevokeShare отзывает ссылку. Уже отозванная или истекшая — no-op успех.
func (s *ShareService) RevokeShare(ctx context.Context, caller domain.Caller, shareID uuid.UUID) error {
	share, err := s.shares.ShareByID(ctx, shareID)
	if err != nil {
		return err
	}
	if !caller.MemberOf(share.OwnerTenantID) {
		return fmt.Errorf("%w: caller is not a member of the owning tenant", domain.ErrNotAuthorized)
	}
	if share.Status != domain.StatusActive || domain.PastExpiry(share.ExpiresAt, s.Now()) {
		return nil
	}

	id := share.ID
	entry := &domain.AuditEntry{
		EventType:     domain.EventRevoked,
		ActorTenantID: &share.OwnerTenantID,
		ShareID:       &id,
	}
	err = s.shares.UpdateShareStatus(ctx, share.ID, domain.StatusActive, domain.StatusRevoked, entry)
	if errors.Is(err, domain.ErrInvalidState) {
		// Проигрыш гонки с параллельным отзывом — результат тот же
		return nil
	}
	return err
}

// ListShares возвращает ссылки на ресурс, разбитые по вычисляемому
// статусу: active — активна и не истекла, всё остальное — inactive.
func (s *ShareService) ListShares(ctx context.Context, caller domain.Caller, ownerTenantID, subjectResourceID string) (*ShareList, error) {
	if !caller.MemberOf(ownerTenantID) {
		return nil, fmt.Errorf("%w: caller is not a member of tenant %s", domain.ErrNotAuthorized, ownerTenantID)
	}

	shares, err := s.shares.ListSharesBySubject(ctx, ownerTenantID, subjectResourceID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	list := &ShareList{
		Active:   []domain.Share{},
		Inactive: []domain.Share{},
	}
	for _, sh := range shares {
		if sh.IsActive(now) {
			list.Active = append(list.Active, sh)
		} else {
			list.Inactive = append(list.Inactive, sh)
		}
	}
	return list, nil
}

// Packs перечисляет доступные наборы scope-флагов.
func (s *ShareService) Packs() []string {
	return s.packs.Keys()
}
