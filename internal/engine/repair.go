package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/observability"
	"github.com/youcloud/sla-engine/internal/repository"
)

// legacyLevelNames maps the pre-engine string vocabulary to numeric levels.
var legacyLevelNames = map[string]int{
	"normal":     domain.LevelBot,
	"supervisor": domain.LevelICP,
	"admin":      domain.LevelYouCloud,
}

// Repairer restores invariants on rows written by older code paths or
// manual SQL. It runs before breach detection on every tick; each repair is
// its own transaction, and a failure in one step never blocks the others.
type Repairer struct {
	clock   Clock
	tickets repository.TicketRepository
	slaLogs repository.SLALogRepository
	rules   *RuleResolver
	audit   *AuditRecorder
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRepairer builds the data-quality pass.
func NewRepairer(clock Clock, tickets repository.TicketRepository, slaLogs repository.SLALogRepository, rules *RuleResolver, audit *AuditRecorder, metrics *observability.Metrics, logger *zap.Logger) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{
		clock:   clock,
		tickets: tickets,
		slaLogs: slaLogs,
		rules:   rules,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
	}
}

// RunSweep applies the set-based repairs once per tick: orphaned logs,
// duplicate logs, missing timestamps, and logs whose deadline passed while
// the engine was not watching.
func (r *Repairer) RunSweep(ctx context.Context) {
	now := r.clock.Now()

	r.sweepStep(ctx, "orphan_sla_logs", func() (int64, error) {
		return r.slaLogs.DeleteOrphans(ctx)
	})
	r.sweepStep(ctx, "duplicate_sla_logs", func() (int64, error) {
		return r.slaLogs.DeleteDuplicates(ctx)
	})
	r.sweepStep(ctx, "sla_log_timestamps", func() (int64, error) {
		return r.slaLogs.BackfillTimestamps(ctx, now)
	})
	r.sweepStep(ctx, "stale_breach_status", func() (int64, error) {
		return r.slaLogs.MarkPastDeadlineBreached(ctx, now)
	})
}

func (r *Repairer) sweepStep(ctx context.Context, step string, fn func() (int64, error)) {
	count, err := fn()
	if err != nil {
		r.logger.Warn("repair sweep step failed", zap.String("step", step), zap.Error(err))
		return
	}
	if count == 0 {
		return
	}
	r.logger.Info("repaired rows", zap.String("step", step), zap.Int64("count", count))
	r.metrics.RecordRepair(step, count)
	r.audit.RecordRepair(ctx, step, nil, map[string]any{"rows": count})
}

// RepairTicket restores the per-ticket invariants, mutating the in-memory
// ticket to match so the rest of the tick sees repaired state. It returns
// the names of the steps that changed anything.
func (r *Repairer) RepairTicket(ctx context.Context, ticket *domain.Ticket) []string {
	var steps []string
	if step := r.repairEscalationLevel(ctx, ticket); step != "" {
		steps = append(steps, step)
	}
	if step := r.repairSLATarget(ctx, ticket); step != "" {
		steps = append(steps, step)
	}
	if step := r.repairMissingLog(ctx, ticket); step != "" {
		steps = append(steps, step)
	}
	return steps
}

// repairEscalationLevel migrates legacy string levels and defaults null
// levels to Bot.
func (r *Repairer) repairEscalationLevel(ctx context.Context, ticket *domain.Ticket) string {
	if ticket.EscalationLevel != nil && ticket.LegacyEscalationLevel == nil {
		return ""
	}

	level := domain.LevelBot
	if ticket.EscalationLevel != nil {
		level = *ticket.EscalationLevel
	}
	step := "missing_escalation_level"
	if ticket.LegacyEscalationLevel != nil {
		legacy := *ticket.LegacyEscalationLevel
		step = "legacy_escalation_level"
		if mapped, ok := legacyLevelNames[legacy]; ok {
			if ticket.EscalationLevel == nil {
				level = mapped
			}
		} else {
			// Unknown legacy value: keep the numeric level and only clear
			// the column. Writing the Bot default here would downgrade an
			// already escalated ticket.
			r.audit.RecordInconsistency(ctx, ticket.ID, "unknown legacy escalation level",
				map[string]any{"legacy_escalation_level": legacy})
		}
	}

	upd := repository.TicketEscalationUpdate{
		EscalationLevel:  &level,
		ClearLegacyLevel: ticket.LegacyEscalationLevel != nil,
	}
	if err := r.tickets.UpdateEscalation(ctx, ticket.ID, upd); err != nil {
		r.logger.Warn("escalation level repair failed",
			zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return ""
	}
	ticket.EscalationLevel = &level
	ticket.LegacyEscalationLevel = nil
	r.metrics.RecordRepair(step, 1)
	r.audit.RecordRepair(ctx, step, &ticket.ID, map[string]any{"level": level})
	return step
}

// repairSLATarget fills the denormalized deadline used by UI filtering.
func (r *Repairer) repairSLATarget(ctx context.Context, ticket *domain.Ticket) string {
	if ticket.CurrentSLATarget != nil {
		return ""
	}
	hours := r.rules.SLAHoursFor(ctx, ticket.Priority, ticket.CategoryID, ticket.Level())
	target := r.clock.Now().Add(time.Duration(hours * float64(time.Hour)))

	upd := repository.TicketEscalationUpdate{CurrentSLATarget: &target}
	if err := r.tickets.UpdateEscalation(ctx, ticket.ID, upd); err != nil {
		r.logger.Warn("sla target repair failed",
			zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return ""
	}
	ticket.CurrentSLATarget = &target
	r.metrics.RecordRepair("missing_sla_target", 1)
	r.audit.RecordRepair(ctx, "missing_sla_target", &ticket.ID, map[string]any{
		"sla_target":       target,
		"sla_target_hours": hours,
	})
	return "missing_sla_target"
}

// repairMissingLog creates the SLA log for the ticket's current level when
// none exists, anchored at the ticket's creation time so pre-existing
// breaches are detected on this very tick.
func (r *Repairer) repairMissingLog(ctx context.Context, ticket *domain.Ticket) string {
	level := ticket.Level()
	exists, err := r.slaLogs.ExistsForLevel(ctx, ticket.ID, level)
	if err != nil {
		r.logger.Warn("sla log existence check failed",
			zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return ""
	}
	if exists {
		return ""
	}

	now := r.clock.Now()
	createdAt := ticket.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	log := domain.SLALog{
		TicketID:          ticket.ID,
		EscalationLevel:   level,
		LevelName:         domain.LevelName(level),
		SLATargetHours:    r.rules.SLAHoursFor(ctx, ticket.Priority, ticket.CategoryID, level),
		Status:            domain.SLAStatusOnTime,
		CreatedAt:         createdAt,
		LoggedAt:          now,
		AssignedPartnerID: ticket.AssignedPartnerID,
	}
	if err := r.slaLogs.Create(ctx, &log); err != nil {
		r.logger.Warn("initial sla log creation failed",
			zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return ""
	}
	r.logger.Info("created initial sla log",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int("level", level),
		zap.Float64("sla_target_hours", log.SLATargetHours))
	r.metrics.RecordRepair("missing_sla_log", 1)
	r.audit.RecordRepair(ctx, "missing_sla_log", &ticket.ID, map[string]any{
		"level":            level,
		"sla_target_hours": log.SLATargetHours,
	})
	return "missing_sla_log"
}
