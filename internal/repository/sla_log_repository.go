package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/youcloud/sla-engine/internal/domain"
)

const slaLogColumns = `id, ticket_id, escalation_level, level_name, sla_target_hours, status,
               created_at, logged_at, escalated_at, resolved_at, breach_time, is_breached,
               assigned_partner_id, resolution_method`

// SLALogRepository stores per-level SLA records.
type SLALogRepository interface {
	Create(ctx context.Context, log *domain.SLALog) error
	LatestByTicket(ctx context.Context, ticketID int64) (*domain.SLALog, error)
	ExistsForLevel(ctx context.Context, ticketID int64, level int) (bool, error)
	ListBreachedUnescalated(ctx context.Context) ([]domain.SLALog, error)
	MarkBreached(ctx context.Context, id int64, breachTime time.Time) error
	MarkResolved(ctx context.Context, ticketID int64, at time.Time, method string) error
	ExtendTarget(ctx context.Context, id int64, extraHours float64) error
	DeleteOrphans(ctx context.Context) (int64, error)
	DeleteDuplicates(ctx context.Context) (int64, error)
	BackfillTimestamps(ctx context.Context, now time.Time) (int64, error)
	MarkPastDeadlineBreached(ctx context.Context, now time.Time) (int64, error)
	Statistics(ctx context.Context, since time.Time) (*domain.SLAStatistics, error)
}

type slaLogRepository struct {
	db Querier
}

// NewSLALogRepository builds repository.
func NewSLALogRepository(db Querier) SLALogRepository {
	return &slaLogRepository{db: db}
}

func (r *slaLogRepository) Create(ctx context.Context, log *domain.SLALog) error {
	return insertSLALog(ctx, r.db, log)
}

func insertSLALog(ctx context.Context, q Querier, log *domain.SLALog) error {
	const query = `
        INSERT INTO sla_logs (ticket_id, escalation_level, level_name, sla_target_hours,
            status, created_at, logged_at, escalated_at, is_breached, assigned_partner_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id`
	return q.QueryRow(ctx, query,
		log.TicketID,
		log.EscalationLevel,
		log.LevelName,
		log.SLATargetHours,
		log.Status,
		log.CreatedAt,
		log.LoggedAt,
		log.EscalatedAt,
		log.IsBreached,
		log.AssignedPartnerID,
	).Scan(&log.ID)
}

func (r *slaLogRepository) LatestByTicket(ctx context.Context, ticketID int64) (*domain.SLALog, error) {
	query := `SELECT ` + slaLogColumns + `
        FROM sla_logs WHERE ticket_id=$1
        ORDER BY created_at DESC, id DESC LIMIT 1`
	log, err := scanSLALog(r.db.QueryRow(ctx, query, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return log, nil
}

func (r *slaLogRepository) ExistsForLevel(ctx context.Context, ticketID int64, level int) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM sla_logs WHERE ticket_id=$1 AND escalation_level=$2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, ticketID, level).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *slaLogRepository) ListBreachedUnescalated(ctx context.Context) ([]domain.SLALog, error) {
	query := `SELECT ` + slaLogColumns + `
        FROM sla_logs
        WHERE is_breached AND escalated_at IS NULL AND escalation_level < $1
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, domain.MaxEscalationLevel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLALog
	for rows.Next() {
		log, err := scanSLALog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *log)
	}
	return result, rows.Err()
}

// MarkBreached flips a log to breached exactly once; a log never returns
// to on_time afterwards.
func (r *slaLogRepository) MarkBreached(ctx context.Context, id int64, breachTime time.Time) error {
	const query = `
        UPDATE sla_logs SET is_breached=TRUE, breach_time=$1, status=$2
        WHERE id=$3 AND NOT is_breached`
	_, err := r.db.Exec(ctx, query, breachTime, domain.SLAStatusBreached, id)
	return err
}

func (r *slaLogRepository) MarkResolved(ctx context.Context, ticketID int64, at time.Time, method string) error {
	const query = `
        UPDATE sla_logs SET resolved_at=$1, resolution_method=$2
        WHERE id = (SELECT id FROM sla_logs WHERE ticket_id=$3
                    ORDER BY created_at DESC, id DESC LIMIT 1)`
	_, err := r.db.Exec(ctx, query, at, method, ticketID)
	return err
}

func (r *slaLogRepository) ExtendTarget(ctx context.Context, id int64, extraHours float64) error {
	const query = `UPDATE sla_logs SET sla_target_hours = sla_target_hours + $1 WHERE id=$2`
	_, err := r.db.Exec(ctx, query, extraHours, id)
	return err
}

func (r *slaLogRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	const query = `
        DELETE FROM sla_logs l
        WHERE NOT EXISTS (SELECT 1 FROM tickets t WHERE t.id = l.ticket_id)`
	cmd, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// DeleteDuplicates keeps the newest log per (ticket, level) by created_at
// and removes the rest.
func (r *slaLogRepository) DeleteDuplicates(ctx context.Context) (int64, error) {
	const query = `
        DELETE FROM sla_logs WHERE id IN (
            SELECT id FROM (
                SELECT id, ROW_NUMBER() OVER (
                    PARTITION BY ticket_id, escalation_level
                    ORDER BY created_at DESC, id DESC) AS rn
                FROM sla_logs
            ) ranked WHERE rn > 1
        )`
	cmd, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *slaLogRepository) BackfillTimestamps(ctx context.Context, now time.Time) (int64, error) {
	const query = `
        UPDATE sla_logs SET
            created_at = COALESCE(created_at, $1),
            logged_at  = COALESCE(logged_at, $1)
        WHERE created_at IS NULL OR logged_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// MarkPastDeadlineBreached repairs logs whose deadline already passed but
// whose status was never updated, e.g. rows written while the engine was
// down. breach_time is the deadline, not the observation time.
func (r *slaLogRepository) MarkPastDeadlineBreached(ctx context.Context, now time.Time) (int64, error) {
	const query = `
        UPDATE sla_logs SET
            is_breached=TRUE,
            status=$1,
            breach_time = created_at + make_interval(secs => sla_target_hours * 3600)
        WHERE NOT is_breached
          AND created_at IS NOT NULL
          AND created_at + make_interval(secs => sla_target_hours * 3600) <= $2`
	cmd, err := r.db.Exec(ctx, query, domain.SLAStatusBreached, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *slaLogRepository) Statistics(ctx context.Context, since time.Time) (*domain.SLAStatistics, error) {
	const query = `
        SELECT escalation_level,
               COUNT(*) AS total,
               COUNT(*) FILTER (WHERE is_breached) AS breached
        FROM sla_logs
        WHERE created_at >= $1
        GROUP BY escalation_level
        ORDER BY escalation_level`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byLevel := make(map[int]domain.SLALevelStats)
	for rows.Next() {
		var level, total, breached int
		if err := rows.Scan(&level, &total, &breached); err != nil {
			return nil, err
		}
		byLevel[level] = domain.SLALevelStats{Level: level, Total: total, Breached: breached}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := &domain.SLAStatistics{OverallCompliance: 100}
	for level := 0; level <= domain.MaxEscalationLevel; level++ {
		entry := byLevel[level]
		entry.Level = level
		entry.LevelName = domain.LevelName(level)
		entry.Compliance = 100
		if entry.Total > 0 {
			entry.Compliance = roundPct(float64(entry.Total-entry.Breached) / float64(entry.Total) * 100)
		}
		stats.TotalLogs += entry.Total
		stats.BreachedLogs += entry.Breached
		stats.LevelStatistics = append(stats.LevelStatistics, entry)
	}
	if stats.TotalLogs > 0 {
		stats.OverallCompliance = roundPct(float64(stats.TotalLogs-stats.BreachedLogs) / float64(stats.TotalLogs) * 100)
	}
	return stats, nil
}

func roundPct(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func scanSLALog(row rowScanner) (*domain.SLALog, error) {
	var (
		log       domain.SLALog
		createdAt *time.Time
		loggedAt  *time.Time
	)
	if err := row.Scan(
		&log.ID,
		&log.TicketID,
		&log.EscalationLevel,
		&log.LevelName,
		&log.SLATargetHours,
		&log.Status,
		&createdAt,
		&loggedAt,
		&log.EscalatedAt,
		&log.ResolvedAt,
		&log.BreachTime,
		&log.IsBreached,
		&log.AssignedPartnerID,
		&log.ResolutionMethod,
	); err != nil {
		return nil, err
	}
	if createdAt != nil {
		log.CreatedAt = *createdAt
	}
	if loggedAt != nil {
		log.LoggedAt = *loggedAt
	}
	return &log, nil
}

// markSLALogEscalated seals the previous level's log. The WHERE guard on
// escalated_at makes concurrent transitions race-safe: only one caller
// observes a row change.
func markSLALogEscalated(ctx context.Context, q Querier, id int64, at time.Time) (bool, error) {
	const query = `UPDATE sla_logs SET escalated_at=$1 WHERE id=$2 AND escalated_at IS NULL`
	cmd, err := q.Exec(ctx, query, at, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
