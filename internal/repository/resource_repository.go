package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"stablelink/internal/domain"
)

// ResourceRepository — read-only доступ к доменным записям дашборда
// (вет-записи, анализы, файлы, профили лошадей). Таблицу
// resource_records наполняет остальная система; ядро в неё не пишет.
type ResourceRepository struct {
	db *sqlx.DB
}

func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) FetchByTypeAndOwner(ctx context.Context, resourceType domain.ResourceType, ownerTenantID string, ids []string) ([]domain.ResourceRecord, error) {
	query := `
        SELECT id, resource_type, owner_tenant_id, record_date, fields
        FROM resource_records
        WHERE resource_type = $1 AND owner_tenant_id = $2`
	args := []interface{}{resourceType, ownerTenantID}

	if len(ids) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY record_date DESC`

	var records []domain.ResourceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch %s records: %w", resourceType, err)
	}
	return records, nil
}
