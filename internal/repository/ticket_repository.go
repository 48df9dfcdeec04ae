package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/youcloud/sla-engine/internal/domain"
)

const ticketColumns = `id, subject, priority, category_id, status, organization_name,
               created_by, created_at, updated_at, escalation_level, legacy_escalation_level,
               assigned_partner_id, current_sla_target, escalation_history`

// TicketEscalationUpdate is a partial update of the engine-owned fields.
// Nil members are left untouched.
type TicketEscalationUpdate struct {
	Status            *domain.TicketStatus
	EscalationLevel   *int
	AssignedPartnerID *int64
	CurrentSLATarget  *time.Time
	ClearLegacyLevel  bool
}

// TicketRepository encapsulates the engine's ticket persistence.
type TicketRepository interface {
	ListActive(ctx context.Context) ([]domain.Ticket, error)
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	UpdateEscalation(ctx context.Context, id int64, upd TicketEscalationUpdate) error
}

type ticketRepository struct {
	db Querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db Querier) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE status = ANY($1)
        ORDER BY created_at ASC`, ticketColumns)
	statuses := make([]string, len(domain.ActiveTicketStatuses))
	for i, s := range domain.ActiveTicketStatuses {
		statuses[i] = string(s)
	}
	rows, err := r.db.Query(ctx, query, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	row := r.db.QueryRow(ctx, query, id)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) UpdateEscalation(ctx context.Context, id int64, upd TicketEscalationUpdate) error {
	clauses := []string{"updated_at=NOW()"}
	args := []any{}

	if upd.Status != nil {
		args = append(args, *upd.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if upd.EscalationLevel != nil {
		args = append(args, *upd.EscalationLevel)
		clauses = append(clauses, fmt.Sprintf("escalation_level=$%d", len(args)))
	}
	if upd.AssignedPartnerID != nil {
		args = append(args, *upd.AssignedPartnerID)
		clauses = append(clauses, fmt.Sprintf("assigned_partner_id=$%d", len(args)))
	}
	if upd.CurrentSLATarget != nil {
		args = append(args, *upd.CurrentSLATarget)
		clauses = append(clauses, fmt.Sprintf("current_sla_target=$%d", len(args)))
	}
	if upd.ClearLegacyLevel {
		clauses = append(clauses, "legacy_escalation_level=NULL")
	}
	if len(clauses) == 1 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tickets SET %s WHERE id=$%d", strings.Join(clauses, ", "), len(args))
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		level      *int32
		historyRaw []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Priority,
		&ticket.CategoryID,
		&ticket.Status,
		&ticket.OrganizationName,
		&ticket.CreatedBy,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&level,
		&ticket.LegacyEscalationLevel,
		&ticket.AssignedPartnerID,
		&ticket.CurrentSLATarget,
		&historyRaw,
	); err != nil {
		return nil, err
	}
	if level != nil {
		lvl := int(*level)
		ticket.EscalationLevel = &lvl
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &ticket.EscalationHistory); err != nil {
			return nil, fmt.Errorf("decode escalation history for ticket %d: %w", ticket.ID, err)
		}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// applyTicketEscalation updates the engine-owned ticket columns and appends
// the transition to the denormalized escalation history. Runs inside the
// transition transaction.
func applyTicketEscalation(ctx context.Context, q Querier, ticketID int64, level int, status domain.TicketStatus, partnerID *int64, slaTarget time.Time, event domain.EscalationEvent) error {
	entry, err := json.Marshal([]domain.EscalationEvent{event})
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET
            status=$1,
            escalation_level=$2,
            assigned_partner_id=COALESCE($3, assigned_partner_id),
            current_sla_target=$4,
            escalation_history=COALESCE(escalation_history, '[]'::jsonb) || $5::jsonb,
            updated_at=NOW()
        WHERE id=$6`
	cmd, err := q.Exec(ctx, query, status, level, partnerID, slaTarget, entry, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
