package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stablelink/internal/domain"
)

// AuditRepository — append-only журнал. Записи никогда не обновляются
// и не удаляются; UPDATE/DELETE по таблице в коде отсутствуют.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// insertEntryTx пишет audit-запись внутри транзакции изменения состояния.
// Используется всеми репозиториями ядра.
func insertEntryTx(ctx context.Context, tx *sqlx.Tx, e *domain.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query := `
        INSERT INTO sharing_audit_log (
            id, event_type, actor_tenant_id, target_tenant_id,
            connection_id, grant_id, share_id, detail, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP
        ) RETURNING created_at`

	return tx.QueryRowContext(
		ctx,
		query,
		e.ID,
		e.EventType,
		e.ActorTenantID,
		e.TargetTenantID,
		e.ConnectionID,
		e.GrantID,
		e.ShareID,
		e.Detail,
	).Scan(&e.CreatedAt)
}

// AppendEntry пишет одиночную запись (чувствительное чтение данных).
func (r *AuditRepository) AppendEntry(ctx context.Context, e *domain.AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertEntryTx(ctx, tx, e); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return tx.Commit()
}

func (r *AuditRepository) ListEntriesByConnection(ctx context.Context, connectionID uuid.UUID) ([]domain.AuditEntry, error) {
	query := `
        SELECT * FROM sharing_audit_log
        WHERE connection_id = $1
        ORDER BY created_at DESC`

	var entries []domain.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, connectionID); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
