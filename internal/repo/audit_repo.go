package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrina-io/vitrina/internal/domain"
)

// AuditRepo — append-only журнал переходов состояний.
//
// Pipeline только пишет записи; чтение — для админских инструментов.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo создаёт новый AuditRepo.
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Append добавляет запись аудита.
func (r *AuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		INSERT INTO audit_entries (id, tenant_id, tag, entity_id, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.Tag,
		entry.EntityID,
		metaJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
