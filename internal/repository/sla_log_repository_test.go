package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youcloud/sla-engine/internal/domain"
)

var slaLogRowColumns = []string{
	"id", "ticket_id", "escalation_level", "level_name", "sla_target_hours", "status",
	"created_at", "logged_at", "escalated_at", "resolved_at", "breach_time", "is_breached",
	"assigned_partner_id", "resolution_method",
}

func TestSLALogCreateReturnsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO sla_logs`).
		WithArgs(anyArgs(10)...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	repo := NewSLALogRepository(mock)
	log := &domain.SLALog{
		TicketID:        42,
		EscalationLevel: 1,
		LevelName:       "ICP",
		SLATargetHours:  8,
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       time.Now().UTC(),
		LoggedAt:        time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), log))
	assert.Equal(t, int64(11), log.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSLALogLatestByTicketHandlesMissingTimestamps(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM sla_logs WHERE ticket_id=\$1`).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(slaLogRowColumns).AddRow(
			int64(5), int64(42), 1, "ICP", 8.0, domain.SLAStatusOnTime,
			(*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil),
			(*time.Time)(nil), false, (*int64)(nil), (*string)(nil),
		))

	repo := NewSLALogRepository(mock)
	log, err := repo.LatestByTicket(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, log)
	// Null timestamps scan to zero values; the repairer backfills them.
	assert.True(t, log.CreatedAt.IsZero())
	assert.True(t, log.LoggedAt.IsZero())
}

func TestSLALogLatestByTicketNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM sla_logs WHERE ticket_id=\$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewSLALogRepository(mock)
	log, err := repo.LatestByTicket(context.Background(), 42)
	assert.NoError(t, err)
	assert.Nil(t, log)
}

func TestSLALogMarkBreachedGuardsRepeatedFlips(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	breachTime := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE sla_logs SET is_breached=TRUE, breach_time=\$1, status=\$2\s+WHERE id=\$3 AND NOT is_breached`).
		WithArgs(breachTime, domain.SLAStatusBreached, int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewSLALogRepository(mock)
	assert.NoError(t, repo.MarkBreached(context.Background(), 5, breachTime))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSLALogStatistics(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT escalation_level`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"escalation_level", "total", "breached"}).
			AddRow(1, 10, 3).
			AddRow(2, 4, 1))

	repo := NewSLALogRepository(mock)
	stats, err := repo.Statistics(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, 14, stats.TotalLogs)
	assert.Equal(t, 4, stats.BreachedLogs)
	require.Len(t, stats.LevelStatistics, 3)

	bot := stats.LevelStatistics[0]
	assert.Equal(t, 0, bot.Total)
	assert.Equal(t, 100.0, bot.Compliance)

	icp := stats.LevelStatistics[1]
	assert.Equal(t, 10, icp.Total)
	assert.Equal(t, 3, icp.Breached)
	assert.Equal(t, 70.0, icp.Compliance)

	ycp := stats.LevelStatistics[2]
	assert.Equal(t, 75.0, ycp.Compliance)
	assert.Equal(t, 71.43, stats.OverallCompliance)
}

func TestSLALogSweepCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM sla_logs l`).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM sla_logs WHERE id IN`).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`UPDATE sla_logs SET\s+created_at = COALESCE`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`UPDATE sla_logs SET\s+is_breached=TRUE`).
		WithArgs(domain.SLAStatusBreached, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))

	repo := NewSLALogRepository(mock)
	ctx := context.Background()

	orphans, err := repo.DeleteOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), orphans)

	dups, err := repo.DeleteDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dups)

	backfilled, err := repo.BackfillTimestamps(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), backfilled)

	stale, err := repo.MarkPastDeadlineBreached(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stale)

	assert.NoError(t, mock.ExpectationsWereMet())
}
