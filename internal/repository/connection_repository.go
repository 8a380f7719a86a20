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

type ConnectionRepository struct {
	db *sqlx.DB
}

func NewConnectionRepository(db *sqlx.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) CreateConnection(ctx context.Context, c *domain.Connection, entry *domain.AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO connections (
            id, connection_type, initiator_tenant_id,
            recipient_tenant_id, recipient_profile_id, recipient_email, recipient_phone,
            status, token, expires_at, metadata, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP
        ) RETURNING created_at`

	err = tx.QueryRowContext(
		ctx,
		query,
		c.ID,
		c.ConnectionType,
		c.InitiatorTenantID,
		c.RecipientTenantID,
		c.RecipientProfileID,
		c.RecipientEmail,
		c.RecipientPhone,
		c.Status,
		c.Token,
		c.ExpiresAt,
		c.Metadata,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}

	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return tx.Commit()
}

func (r *ConnectionRepository) ConnectionByToken(ctx context.Context, token string) (*domain.Connection, error) {
	var c domain.Connection
	if err := r.db.GetContext(ctx, &c, `SELECT * FROM connections WHERE token = $1`, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: connection", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection by token: %w", err)
	}
	return &c, nil
}

func (r *ConnectionRepository) ConnectionByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error) {
	var c domain.Connection
	if err := r.db.GetContext(ctx, &c, `SELECT * FROM connections WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: connection", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &c, nil
}

func (r *ConnectionRepository) ListConnections(ctx context.Context, tenantID string) ([]domain.Connection, error) {
	query := `
        SELECT * FROM connections
        WHERE initiator_tenant_id = $1 OR recipient_tenant_id = $1
        ORDER BY created_at DESC`

	var conns []domain.Connection
	if err := r.db.SelectContext(ctx, &conns, query, tenantID); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// UpdateConnectionStatus переводит статус, только если текущий равен from.
// Статусная защита внутри транзакции разводит гонки accept/reject/revoke:
// проигравший получает ErrInvalidState, смешанных состояний не бывает.
func (r *ConnectionRepository) UpdateConnectionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, entry *domain.AuditEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardedUpdateTx(ctx, tx, "connections", id, string(from), string(to)); err != nil {
		return err
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return tx.Commit()
}

// RevokeConnectionCascade отзывает связь и все её активные гранты одной
// транзакцией. Каскад явный, не через FK-триггеры: на каждый грант
// пишется своя audit-запись, детерминированно.
func (r *ConnectionRepository) RevokeConnectionCascade(ctx context.Context, id uuid.UUID, connEntry *domain.AuditEntry, grantEntry domain.AuditEntry) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(
		ctx,
		`UPDATE connections SET status = 'revoked' WHERE id = $1 AND status IN ('pending', 'accepted')`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke connection: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, statusConflictErr(ctx, tx, "connections", id)
	}

	var grantIDs []uuid.UUID
	err = tx.SelectContext(
		ctx,
		&grantIDs,
		`UPDATE consent_grants SET status = 'revoked' WHERE connection_id = $1 AND status = 'active' RETURNING id`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke grants: %w", err)
	}

	if err := insertEntryTx(ctx, tx, connEntry); err != nil {
		return 0, fmt.Errorf("failed to write audit entry: %w", err)
	}
	for _, grantID := range grantIDs {
		gid := grantID
		e := grantEntry
		e.ID = uuid.New()
		e.GrantID = &gid
		if err := insertEntryTx(ctx, tx, &e); err != nil {
			return 0, fmt.Errorf("failed to write grant audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(grantIDs), nil
}

// MarkExpired переводит просроченные pending-связи в expired.
// Только гигиена листингов: для корректности истечение и так
// вычисляется при каждом чтении.
func (r *ConnectionRepository) MarkExpired(ctx context.Context) (int, error) {
	return markExpired(ctx, r.db, "connections", "pending", func(id uuid.UUID) *domain.AuditEntry {
		cid := id
		return &domain.AuditEntry{EventType: domain.EventExpired, ConnectionID: &cid}
	})
}

// guardedUpdateTx — условный переход статуса с различением
// "нет записи" и "статус уже другой".
func guardedUpdateTx(ctx context.Context, tx *sqlx.Tx, table string, id uuid.UUID, from, to string) error {
	res, err := tx.ExecContext(
		ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1 WHERE id = $2 AND status = $3`, table),
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update %s status: %w", table, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return statusConflictErr(ctx, tx, table, id)
	}
	return nil
}

func statusConflictErr(ctx context.Context, tx *sqlx.Tx, table string, id uuid.UUID) error {
	var current string
	err := tx.GetContext(ctx, &current, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, table), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, table)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s status: %w", table, err)
	}
	return fmt.Errorf("%w: %s is %s", domain.ErrInvalidState, table, current)
}

// markExpired — общий проход свипера по таблице со статусной колонкой.
func markExpired(ctx context.Context, db *sqlx.DB, table, fromStatus string, entryFor func(uuid.UUID) *domain.AuditEntry) (int, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ids []uuid.UUID
	query := fmt.Sprintf(`
        UPDATE %s SET status = 'expired'
        WHERE status = $1
        AND expires_at IS NOT NULL AND expires_at < CURRENT_TIMESTAMP
        RETURNING id`, table)
	if err := tx.SelectContext(ctx, &ids, query, fromStatus); err != nil {
		return 0, fmt.Errorf("failed to mark expired %s: %w", table, err)
	}

	for _, id := range ids {
		if err := insertEntryTx(ctx, tx, entryFor(id)); err != nil {
			return 0, fmt.Errorf("failed to write audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}
