package repository

import (
	"context"
	"encoding/json"

	"github.com/youcloud/sla-engine/internal/domain"
)

// AuditLogRepository appends cross-cutting audit records.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

type auditLogRepository struct {
	db Querier
}

// NewAuditLogRepository builds repository.
func NewAuditLogRepository(db Querier) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	return insertAuditLog(ctx, r.db, entry)
}

func insertAuditLog(ctx context.Context, q Querier, entry *domain.AuditLog) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return err
		}
	}
	const query = `
        INSERT INTO audit_logs (action, resource_type, resource_id, user_id, user_type,
            ip_address, user_agent, details)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.UserID,
		entry.UserType,
		entry.IPAddress,
		entry.UserAgent,
		details,
	).Scan(&entry.ID, &entry.CreatedAt)
}
