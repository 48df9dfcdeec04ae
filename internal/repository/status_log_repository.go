package repository

import (
	"context"

	"github.com/youcloud/sla-engine/internal/domain"
)

// StatusLogRepository appends ticket timeline entries.
type StatusLogRepository interface {
	Create(ctx context.Context, entry *domain.TicketStatusLog) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketStatusLog, error)
}

type statusLogRepository struct {
	db Querier
}

// NewStatusLogRepository builds repository.
func NewStatusLogRepository(db Querier) StatusLogRepository {
	return &statusLogRepository{db: db}
}

func (r *statusLogRepository) Create(ctx context.Context, entry *domain.TicketStatusLog) error {
	return insertStatusLog(ctx, r.db, entry)
}

func insertStatusLog(ctx context.Context, q Querier, entry *domain.TicketStatusLog) error {
	const query = `
        INSERT INTO ticket_status_logs (ticket_id, old_status, new_status, changed_by,
            changed_by_id, changed_by_type, changed_at, escalation_level, sla_status, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		entry.TicketID,
		entry.OldStatus,
		entry.NewStatus,
		entry.ChangedBy,
		entry.ChangedByID,
		entry.ChangedByType,
		entry.ChangedAt,
		entry.EscalationLevel,
		entry.SLAStatus,
		entry.Notes,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *statusLogRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketStatusLog, error) {
	const query = `
        SELECT id, ticket_id, old_status, new_status, changed_by, changed_by_id,
               changed_by_type, changed_at, escalation_level, sla_status, notes, created_at
        FROM ticket_status_logs WHERE ticket_id=$1 ORDER BY changed_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketStatusLog
	for rows.Next() {
		var entry domain.TicketStatusLog
		var level *int32
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.OldStatus,
			&entry.NewStatus,
			&entry.ChangedBy,
			&entry.ChangedByID,
			&entry.ChangedByType,
			&entry.ChangedAt,
			&level,
			&entry.SLAStatus,
			&entry.Notes,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if level != nil {
			lvl := int(*level)
			entry.EscalationLevel = &lvl
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
