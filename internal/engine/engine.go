package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/config"
	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/events"
	"github.com/youcloud/sla-engine/internal/observability"
	"github.com/youcloud/sla-engine/internal/repository"
	"github.com/youcloud/sla-engine/internal/webhook"
	"github.com/youcloud/sla-engine/pkg/util"
)

// topTierExtensionHours is the grace added to a YouCloud-level SLA when the
// extend_sla breach policy is active.
const topTierExtensionHours = 2.0

// Dependencies wires the engine's collaborators.
type Dependencies struct {
	Clock    Clock
	Store    repository.TransitionStore
	Tickets  repository.TicketRepository
	SLALogs  repository.SLALogRepository
	Partners *PartnerDirectory
	Rules    *RuleResolver
	Repairer *Repairer
	Audit    *AuditRecorder
	Webhooks webhook.Dispatcher
	Events   events.Dispatcher
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Config   config.EngineConfig
}

// Engine evaluates SLA deadlines and applies escalation transitions. All
// state lives in the database; the engine itself is stateless between ticks
// and safe to restart at any point.
type Engine struct {
	deps Dependencies
}

// New builds the engine.
func New(deps Dependencies) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	return &Engine{deps: deps}
}

func (e *Engine) atRiskThreshold() time.Duration {
	return e.deps.Config.AtRiskThreshold()
}

// Tick runs one full sweep: schema guard, data-quality repairs, per-ticket
// breach evaluation, then a second pass over breached logs whose escalation
// did not land on a previous tick. Transient failures on individual tickets
// are logged and skipped; a schema-level failure aborts the tick so the
// controller can flag degradation.
func (e *Engine) Tick(ctx context.Context) error {
	started := e.deps.Clock.Now()

	ready, err := e.deps.Store.TablesExist(ctx)
	if err != nil {
		return err
	}
	if !ready {
		e.deps.Logger.Info("engine tables not present yet, skipping tick")
		return nil
	}

	e.deps.Repairer.RunSweep(ctx)

	tickets, err := e.deps.Tickets.ListActive(ctx)
	if err != nil {
		return err
	}

	checked, escalated := 0, 0
	for i := range tickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		moved, err := e.checkTicket(ctx, &tickets[i])
		if err != nil {
			if util.IsKind(err, util.KindPermanentStorage) {
				return err
			}
			e.deps.Logger.Warn("ticket check failed",
				zap.Int64("ticket_id", tickets[i].ID), zap.Error(err))
			continue
		}
		checked++
		if moved {
			escalated++
		}
	}

	retried, err := e.retryPendingEscalations(ctx)
	if err != nil {
		return err
	}
	escalated += retried

	duration := time.Since(started)
	e.deps.Metrics.RecordTick(duration, started)
	e.deps.Logger.Info("tick complete",
		zap.Int("tickets_checked", checked),
		zap.Int("tickets_escalated", escalated),
		zap.Duration("duration", duration))
	return nil
}

// retryPendingEscalations sweeps breached-but-unescalated logs, catching
// transitions that failed after the breach was recorded.
func (e *Engine) retryPendingEscalations(ctx context.Context) (int, error) {
	logs, err := e.deps.SLALogs.ListBreachedUnescalated(ctx)
	if err != nil {
		return 0, err
	}
	escalated := 0
	for i := range logs {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		log := &logs[i]
		ticket, err := e.deps.Tickets.GetByID(ctx, log.TicketID)
		if err != nil {
			if util.IsKind(err, util.KindPermanentStorage) {
				return escalated, err
			}
			e.deps.Logger.Warn("pending escalation lookup failed",
				zap.Int64("ticket_id", log.TicketID), zap.Error(err))
			continue
		}
		if ticket == nil || ticket.Status.IsTerminal() {
			continue
		}
		if ticket.Level() != log.EscalationLevel {
			// Ticket already moved past this log; seal is handled by the
			// transition that moved it, nothing to retry here.
			continue
		}
		moved, err := e.autoEscalate(ctx, ticket, log)
		if err != nil {
			e.deps.Logger.Warn("pending escalation retry failed",
				zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if moved {
			escalated++
		}
	}
	return escalated, nil
}

// checkTicket repairs, classifies and, when warranted, escalates a single
// ticket. Returns true when a transition was committed.
func (e *Engine) checkTicket(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	e.publishRepairs(ctx, ticket.ID, e.deps.Repairer.RepairTicket(ctx, ticket))

	log, err := e.deps.SLALogs.LatestByTicket(ctx, ticket.ID)
	if err != nil {
		return false, err
	}
	if log == nil {
		// Repair could not create a log either; nothing to evaluate.
		return false, nil
	}
	if log.CreatedAt.IsZero() {
		e.deps.Audit.RecordInconsistency(ctx, ticket.ID, "sla_log_missing_created_at",
			map[string]any{"sla_log_id": log.ID})
		return false, nil
	}
	if log.EscalatedAt != nil {
		return false, nil
	}

	now := e.deps.Clock.Now()
	status := ClassifySLA(log, now, e.atRiskThreshold())

	if status == domain.SLAStatusBreached && !log.IsBreached {
		if err := e.recordBreach(ctx, ticket, log); err != nil {
			return false, err
		}
	}

	if log.NeedsEscalation() {
		return e.autoEscalate(ctx, ticket, log)
	}
	return false, nil
}

// recordBreach flips the log to breached, emits the breach event, and
// applies the top-tier policy when there is no next level. Under the
// extend_sla policy a top-tier log is granted extra hours instead of being
// marked breached, so is_breached flips exactly once per genuine breach.
func (e *Engine) recordBreach(ctx context.Context, ticket *domain.Ticket, log *domain.SLALog) error {
	deadline := log.Deadline()

	if log.EscalationLevel >= domain.MaxEscalationLevel &&
		e.deps.Config.TopTierBreachPolicy == config.TopTierExtendSLA {
		if err := e.deps.SLALogs.ExtendTarget(ctx, log.ID, topTierExtensionHours); err != nil {
			return err
		}
		log.SLATargetHours += topTierExtensionHours
		e.deps.Logger.Warn("top tier sla extended",
			zap.Int64("ticket_id", ticket.ID),
			zap.Float64("extra_hours", topTierExtensionHours))
		e.deps.Audit.RecordAction(ctx, e.deps.Audit.BuildAuditLog(
			domain.AuditActionSLAExtended, ticket.ID, domain.ActorTypeSystem, nil,
			map[string]any{
				"sla_log_id":       log.ID,
				"extra_hours":      topTierExtensionHours,
				"sla_target_hours": log.SLATargetHours,
			}))
		return nil
	}

	if err := e.deps.SLALogs.MarkBreached(ctx, log.ID, deadline); err != nil {
		return err
	}
	log.IsBreached = true
	log.Status = domain.SLAStatusBreached
	bt := deadline
	log.BreachTime = &bt

	e.deps.Metrics.RecordBreach(log.EscalationLevel)
	e.deps.Logger.Warn("sla breached",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int("level", log.EscalationLevel),
		zap.Time("deadline", deadline))
	e.publishEvent(ctx, events.EventSLABreached, ticket.ID, domain.ActorTypeSystem, nil,
		events.SLABreachedPayload{
			Level:          log.EscalationLevel,
			LevelName:      log.LevelName,
			SLATargetHours: log.SLATargetHours,
			Deadline:       deadline,
		})

	if log.EscalationLevel >= domain.MaxEscalationLevel {
		e.deps.Audit.RecordAction(ctx, e.deps.Audit.BuildAuditLog(
			domain.AuditActionTopTierBreach, ticket.ID, domain.ActorTypeSystem, nil,
			map[string]any{
				"sla_log_id": log.ID,
				"level":      log.EscalationLevel,
				"deadline":   deadline,
			}))
	}
	return nil
}

// autoEscalate moves the ticket one level up in response to a breach.
func (e *Engine) autoEscalate(ctx context.Context, ticket *domain.Ticket, log *domain.SLALog) (bool, error) {
	toLevel := log.EscalationLevel + 1
	if toLevel > domain.MaxEscalationLevel {
		return false, nil
	}
	reason := fmt.Sprintf("SLA breached at %s level", log.LevelName)
	err := e.applyEscalation(ctx, ticket, log, toLevel, domain.ActorTypeSystem, nil, reason, false)
	if errors.Is(err, repository.ErrAlreadyEscalated) {
		// A concurrent sweep or operator already moved this ticket.
		e.deps.Logger.Info("escalation already applied",
			zap.Int64("ticket_id", ticket.ID), zap.Int("to_level", toLevel))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ForceEscalateResult reports the outcome of an operator escalation.
type ForceEscalateResult struct {
	TicketID          int64  `json:"ticket_id"`
	NewLevel          int    `json:"new_level"`
	NewLevelName      string `json:"new_level_name"`
	AssignedPartnerID *int64 `json:"assigned_partner_id,omitempty"`
}

// ForceEscalate jumps a ticket directly to the requested level on operator
// authority. No intermediate SLA logs are created for skipped levels.
func (e *Engine) ForceEscalate(ctx context.Context, ticketID int64, targetLevel int, operatorID int64, comment string) (*ForceEscalateResult, error) {
	if targetLevel != domain.LevelICP && targetLevel != domain.LevelYouCloud {
		return nil, util.NewOperatorInputInvalid("target level must be 1 or 2",
			map[string]any{"target_level": targetLevel})
	}

	ticket, err := e.deps.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Status.IsTerminal() {
		return nil, util.NewOperatorInputInvalid("ticket is closed",
			map[string]any{"ticket_id": ticketID, "status": ticket.Status})
	}
	if targetLevel <= ticket.Level() {
		return nil, util.NewOperatorInputInvalid("target level must exceed current level",
			map[string]any{"current_level": ticket.Level(), "target_level": targetLevel})
	}

	e.publishRepairs(ctx, ticket.ID, e.deps.Repairer.RepairTicket(ctx, ticket))

	log, err := e.deps.SLALogs.LatestByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	reason := "Force escalated by operator"
	if comment != "" {
		reason = fmt.Sprintf("Force escalated by operator: %s", comment)
	}
	opID := operatorID
	err = e.applyEscalation(ctx, ticket, log, targetLevel, domain.ActorTypeAdmin, &opID, reason, true)
	if errors.Is(err, repository.ErrAlreadyEscalated) {
		return nil, util.NewInvariantViolation("ticket was escalated concurrently",
			map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, err
	}
	return &ForceEscalateResult{
		TicketID:          ticket.ID,
		NewLevel:          targetLevel,
		NewLevelName:      domain.LevelName(targetLevel),
		AssignedPartnerID: ticket.AssignedPartnerID,
	}, nil
}

// applyEscalation builds and commits the transition, then performs the
// post-commit side effects: metrics, event publication, webhook delivery.
// The webhook is best effort; its failure never unwinds the transition.
func (e *Engine) applyEscalation(ctx context.Context, ticket *domain.Ticket, prevLog *domain.SLALog, toLevel int, actorType domain.ActorType, actorID *int64, reason string, forced bool) error {
	now := e.deps.Clock.Now()
	fromLevel := ticket.Level()
	tier := domain.TierForLevel(toLevel)

	partner, err := e.deps.Partners.PickPartner(ctx, tier)
	if err != nil {
		return err
	}
	var partnerID *int64
	if partner != nil {
		id := partner.ID
		partnerID = &id
	} else {
		e.deps.Logger.Warn("no active partner for tier",
			zap.Int64("ticket_id", ticket.ID), zap.String("tier", string(tier)))
	}

	hours := e.deps.Rules.SLAHoursFor(ctx, ticket.Priority, ticket.CategoryID, toLevel)
	slaTarget := now.Add(time.Duration(hours * float64(time.Hour)))

	newLog := domain.SLALog{
		TicketID:          ticket.ID,
		EscalationLevel:   toLevel,
		LevelName:         domain.LevelName(toLevel),
		SLATargetHours:    hours,
		Status:            domain.SLAStatusOnTime,
		CreatedAt:         now,
		LoggedAt:          now,
		AssignedPartnerID: partnerID,
	}

	details := map[string]any{
		"from_level":       fromLevel,
		"to_level":         toLevel,
		"to_level_name":    newLog.LevelName,
		"reason":           reason,
		"sla_target_hours": hours,
	}
	if partnerID != nil {
		details["assigned_partner_id"] = *partnerID
	} else {
		details["no_partner_available"] = true
	}
	action := domain.AuditActionAutoEscalated
	if forced {
		action = domain.AuditActionForceEscalated
	}

	var prevLogID *int64
	if prevLog != nil {
		id := prevLog.ID
		prevLogID = &id
	}

	transition := repository.Transition{
		TicketID:     ticket.ID,
		FromLevel:    fromLevel,
		ToLevel:      toLevel,
		PrevLogID:    prevLogID,
		NewLog:       newLog,
		TicketStatus: domain.TicketStatusEscalated,
		PartnerID:    partnerID,
		SLATarget:    slaTarget,
		StatusLog: e.deps.Audit.BuildStatusLog(ticket, domain.TicketStatusEscalated,
			toLevel, domain.SLAStatusOnTime, actorType, actorID, reason, now),
		AuditLog: e.deps.Audit.BuildAuditLog(action, ticket.ID, actorType, actorID, details),
		HistoryEvent: domain.EscalationEvent{
			Level:       toLevel,
			EscalatedTo: newLog.LevelName,
			Reason:      reason,
			Timestamp:   now,
			Auto:        !forced,
		},
	}

	if err := e.deps.Store.ApplyTransition(ctx, transition); err != nil {
		return err
	}

	ticket.Status = domain.TicketStatusEscalated
	level := toLevel
	ticket.EscalationLevel = &level
	ticket.AssignedPartnerID = partnerID
	target := slaTarget
	ticket.CurrentSLATarget = &target

	e.deps.Metrics.RecordTransition(toLevel)
	e.deps.Logger.Info("ticket escalated",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int("from_level", fromLevel),
		zap.Int("to_level", toLevel),
		zap.Bool("forced", forced),
		zap.Float64("sla_target_hours", hours))

	var eventOperator *string
	if actorID != nil {
		s := fmt.Sprintf("%d", *actorID)
		eventOperator = &s
	}
	e.publishEvent(ctx, events.EventTicketEscalated, ticket.ID, actorType, eventOperator,
		events.TicketEscalatedPayload{
			FromLevel:         fromLevel,
			ToLevel:           toLevel,
			ToLevelName:       newLog.LevelName,
			AssignedPartnerID: partnerID,
			SLATargetHours:    hours,
			Forced:            forced,
		})

	if partner != nil && partner.HasWebhook() && e.deps.Webhooks != nil {
		notification := webhook.BuildNotification(ticket, partner, toLevel, hours, now)
		if err := e.deps.Webhooks.Dispatch(ctx, partner, notification); err != nil {
			e.deps.Logger.Warn("escalation webhook failed",
				zap.Int64("ticket_id", ticket.ID),
				zap.Int64("partner_id", partner.ID),
				zap.Error(err))
		}
	}
	return nil
}

// CheckAndMark evaluates one ticket on demand, outside the tick loop.
func (e *Engine) CheckAndMark(ctx context.Context, ticketID int64) (bool, error) {
	ticket, err := e.deps.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return false, err
	}
	if ticket == nil {
		return false, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Status.IsTerminal() {
		return false, nil
	}
	return e.checkTicket(ctx, ticket)
}

// Statistics aggregates SLA compliance per level over the trailing window.
func (e *Engine) Statistics(ctx context.Context, days int) (*domain.SLAStatistics, error) {
	if days <= 0 {
		days = 30
	}
	since := e.deps.Clock.Now().AddDate(0, 0, -days)
	return e.deps.SLALogs.Statistics(ctx, since)
}

// SLAOverviewBucket lists the tickets in one compliance state.
type SLAOverviewBucket struct {
	Count     int     `json:"count"`
	TicketIDs []int64 `json:"ticket_ids"`
}

// SLAOverview buckets active tickets by their current SLA state.
type SLAOverview struct {
	WithinSLA SLAOverviewBucket `json:"within_sla"`
	AtRisk    SLAOverviewBucket `json:"at_risk"`
	Breached  SLAOverviewBucket `json:"breached"`
}

// Overview classifies each active ticket's open SLA log without mutating
// anything.
func (e *Engine) Overview(ctx context.Context) (*SLAOverview, error) {
	tickets, err := e.deps.Tickets.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	now := e.deps.Clock.Now()
	overview := &SLAOverview{
		WithinSLA: SLAOverviewBucket{TicketIDs: []int64{}},
		AtRisk:    SLAOverviewBucket{TicketIDs: []int64{}},
		Breached:  SLAOverviewBucket{TicketIDs: []int64{}},
	}
	for i := range tickets {
		ticket := &tickets[i]
		log, err := e.deps.SLALogs.LatestByTicket(ctx, ticket.ID)
		if err != nil {
			if util.IsKind(err, util.KindPermanentStorage) {
				return nil, err
			}
			continue
		}
		if log == nil || log.CreatedAt.IsZero() {
			continue
		}
		bucket := &overview.WithinSLA
		switch ClassifySLA(log, now, e.atRiskThreshold()) {
		case domain.SLAStatusBreached:
			bucket = &overview.Breached
		case domain.SLAStatusAtRisk:
			bucket = &overview.AtRisk
		}
		bucket.Count++
		bucket.TicketIDs = append(bucket.TicketIDs, ticket.ID)
	}
	return overview, nil
}

// publishRepairs emits one event per repair step that changed the ticket.
func (e *Engine) publishRepairs(ctx context.Context, ticketID int64, steps []string) {
	for _, step := range steps {
		e.publishEvent(ctx, events.EventTicketRepaired, ticketID, domain.ActorTypeSystem, nil,
			events.TicketRepairedPayload{Step: step})
	}
}

func (e *Engine) publishEvent(ctx context.Context, eventType events.EventType, ticketID int64, actorType domain.ActorType, operatorID *string, payload interface{}) {
	if e.deps.Events == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.Actor{Type: actorType, OperatorID: operatorID},
		Timestamp: e.deps.Clock.Now(),
		Payload:   payload,
	}
	if err := e.deps.Events.Publish(ctx, event); err != nil {
		e.deps.Logger.Warn("event publish failed",
			zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
