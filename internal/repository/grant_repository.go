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

type GrantRepository struct {
	db *sqlx.DB
}

func NewGrantRepository(db *sqlx.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// CreateGrant вставляет грант условно: строка появляется, только если
// связь все еще accepted в момент вставки. Гонка с отзывом связи
// разрешается внутри этой транзакции, а не проверкой до неё.
func (r *GrantRepository) CreateGrant(ctx context.Context, g *domain.ConsentGrant, entry *domain.AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO consent_grants (
            id, connection_id, grantor_tenant_id, resource_type, resource_ids,
            access_level, date_from, date_to, forward_only, excluded_fields,
            status, expires_at, created_at
        )
        SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP
        WHERE EXISTS (
            SELECT 1 FROM connections WHERE id = $2 AND status = 'accepted'
        )
        RETURNING created_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		g.ID,
		g.ConnectionID,
		g.GrantorTenantID,
		g.ResourceType,
		g.ResourceIDs,
		g.AccessLevel,
		g.DateFrom,
		g.DateTo,
		g.ForwardOnly,
		g.ExcludedFields,
		g.Status,
		g.ExpiresAt,
	).Scan(&g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return statusConflictErr(ctx, tx, "connections", g.ConnectionID)
	}
	if err != nil {
		return fmt.Errorf("failed to create grant: %w", err)
	}

	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return tx.Commit()
}

func (r *GrantRepository) GrantByID(ctx context.Context, id uuid.UUID) (*domain.ConsentGrant, error) {
	var g domain.ConsentGrant
	if err := r.db.GetContext(ctx, &g, `SELECT * FROM consent_grants WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: grant", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

func (r *GrantRepository) ListGrantsByConnection(ctx context.Context, connectionID uuid.UUID) ([]domain.ConsentGrant, error) {
	query := `
        SELECT * FROM consent_grants
        WHERE connection_id = $1
        ORDER BY created_at DESC`

	var grants []domain.ConsentGrant
	if err := r.db.SelectContext(ctx, &grants, query, connectionID); err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

func (r *GrantRepository) UpdateGrantStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardedUpdateTx(ctx, tx, "consent_grants", id, string(from), string(to)); err != nil {
		return err
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return tx.Commit()
}

// MarkExpired — гигиена листингов, см. ConnectionRepository.MarkExpired.
func (r *GrantRepository) MarkExpired(ctx context.Context) (int, error) {
	return markExpired(ctx, r.db, "consent_grants", "active", func(id uuid.UUID) *domain.AuditEntry {
		gid := id
		return &domain.AuditEntry{EventType: domain.EventExpired, GrantID: &gid}
	})
}
