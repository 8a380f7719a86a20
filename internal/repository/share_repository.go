package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stablelink/internal/domain"
)

type ShareRepository struct {
	db *sqlx.DB
}

func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

func (r *ShareRepository) CreateShare(ctx context.Context, s *domain.Share, entry *domain.AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO resource_shares (
            id, owner_tenant_id, subject_resource_id, token, pack_key,
            include_vet, include_lab, include_files,
            recipient_email, date_from, date_to,
            status, expires_at, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, CURRENT_TIMESTAMP
        ) RETURNING created_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		s.ID,
		s.OwnerTenantID,
		s.SubjectResourceID,
		s.Token,
		s.PackKey,
		s.IncludeVet,
		s.IncludeLab,
		s.IncludeFiles,
		s.RecipientEmail,
		s.DateFrom,
		s.DateTo,
		s.Status,
		s.ExpiresAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}

	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return tx.Commit()
}

func (r *ShareRepository) ShareByToken(ctx context.Context, token string) (*domain.Share, error) {
	var s domain.Share
	if err := r.db.GetContext(ctx, &s, `SELECT * FROM resource_shares WHERE token = $1`, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: share", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get share by token: %w", err)
	}
	return &s, nil
}

func (r *ShareRepository) ShareByID(ctx context.Context, id uuid.UUID) (*domain.Share, error) {
	var s domain.Share
	if err := r.db.GetContext(ctx, &s, `SELECT * FROM resource_shares WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: share", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return &s, nil
}

func (r *ShareRepository) ListSharesBySubject(ctx context.Context, ownerTenantID, subjectResourceID string) ([]domain.Share, error) {
	query := `
        SELECT * FROM resource_shares
        WHERE owner_tenant_id = $1 AND subject_resource_id = $2
        ORDER BY created_at DESC`

	var shares []domain.Share
	if err := r.db.SelectContext(ctx, &shares, query, ownerTenantID, subjectResourceID); err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, nil
}

func (r *ShareRepository) UpdateShareStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardedUpdateTx(ctx, tx, "resource_shares", id, string(from), string(to)); err != nil {
		return err
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return tx.Commit()
}

// MarkExpired — гигиена листингов, см. ConnectionRepository.MarkExpired.
func (r *ShareRepository) MarkExpired(ctx context.Context) (int, error) {
	return markExpired(ctx, r.db, "resource_shares", "active", func(id uuid.UUID) *domain.AuditEntry {
		sid := id
		return &domain.AuditEntry{EventType: domain.EventExpired, ShareID: &sid}
	})
}
