package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/youcloud/sla-engine/internal/domain"
	apperrors "github.com/youcloud/sla-engine/pkg/util"
)

// ErrAlreadyEscalated is returned when the previous level's log was sealed
// by a concurrent transition; the caller skips the ticket.
var ErrAlreadyEscalated = errors.New("sla log already escalated")

var engineTables = []string{
	"tickets", "sla_logs", "ticket_status_logs", "audit_logs", "partners", "escalation_rules",
}

// Transition carries every write of a single escalation, applied atomically.
type Transition struct {
	TicketID     int64
	FromLevel    int
	ToLevel      int
	PrevLogID    *int64
	NewLog       domain.SLALog
	TicketStatus domain.TicketStatus
	PartnerID    *int64
	SLATarget    time.Time
	StatusLog    domain.TicketStatusLog
	AuditLog     domain.AuditLog
	HistoryEvent domain.EscalationEvent
}

// TransitionStore owns the writes that must be linearizable.
type TransitionStore interface {
	TablesExist(ctx context.Context) (bool, error)
	ApplyTransition(ctx context.Context, t Transition) error
}

// TxQuerier is a Querier that can open transactions. Satisfied by
// *pgxpool.Pool.
type TxQuerier interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store bundles the pgx pool behind the transactional operations.
type Store struct {
	pool TxQuerier
}

// NewStore wraps a connection pool.
func NewStore(pool TxQuerier) *Store {
	return &Store{pool: pool}
}

// TablesExist reports whether the engine's schema is in place. The sweep
// is a no-op until migrations have run.
func (s *Store) TablesExist(ctx context.Context) (bool, error) {
	const query = `
        SELECT COUNT(*) FROM information_schema.tables
        WHERE table_schema = current_schema() AND table_name = ANY($1)`
	var count int
	if err := s.pool.QueryRow(ctx, query, engineTables).Scan(&count); err != nil {
		return false, ClassifyStorageError(err)
	}
	return count >= len(engineTables), nil
}

// ApplyTransition commits one escalation: seal the old SLA log, insert the
// new one, append status and audit entries, update the ticket, and bump the
// partner counter. Either all writes land or none do. Sealing the old log
// guards idempotence: a concurrent or repeated transition finds
// escalated_at already set and aborts with ErrAlreadyEscalated.
func (s *Store) ApplyTransition(ctx context.Context, t Transition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ClassifyStorageError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.PrevLogID != nil {
		sealed, err := markSLALogEscalated(ctx, tx, *t.PrevLogID, t.NewLog.CreatedAt)
		if err != nil {
			return ClassifyStorageError(err)
		}
		if !sealed {
			return ErrAlreadyEscalated
		}
	}

	newLog := t.NewLog
	if err := insertSLALog(ctx, tx, &newLog); err != nil {
		return ClassifyStorageError(err)
	}

	statusLog := t.StatusLog
	if err := insertStatusLog(ctx, tx, &statusLog); err != nil {
		return ClassifyStorageError(err)
	}

	auditLog := t.AuditLog
	if err := insertAuditLog(ctx, tx, &auditLog); err != nil {
		return ClassifyStorageError(err)
	}

	if err := applyTicketEscalation(ctx, tx, t.TicketID, t.ToLevel, t.TicketStatus, t.PartnerID, t.SLATarget, t.HistoryEvent); err != nil {
		return ClassifyStorageError(err)
	}

	if t.PartnerID != nil {
		if err := incrementPartnerHandled(ctx, tx, *t.PartnerID, 1); err != nil {
			return ClassifyStorageError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ClassifyStorageError(err)
	}
	return nil
}

// ClassifyStorageError maps database failures onto the engine's error
// kinds: connection loss, deadlocks and timeouts are retryable on the next
// tick; schema-level failures degrade the controller.
func ClassifyStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return apperrors.NewTransientStorage(err)
		}
		switch pgErr.Code[:2] {
		case "08", "40", "53", "57":
			// connection, transaction rollback, resources, cancellation
			return apperrors.NewTransientStorage(err)
		case "42":
			// undefined table/column: schema mismatch
			return apperrors.NewPermanentStorage(err)
		}
		return apperrors.NewTransientStorage(err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewTransientStorage(err)
	}
	return apperrors.NewTransientStorage(err)
}
