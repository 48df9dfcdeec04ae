package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/repository"
)

// SystemActorName identifies engine-originated changes in the timeline.
const SystemActorName = "SLA Engine"

// AuditRecorder is a thin facade over the status-log and audit-log streams.
// It builds the records the transition transaction carries, and writes
// standalone entries (repairs, inconsistencies, top-tier breaches) directly.
type AuditRecorder struct {
	statusLogs repository.StatusLogRepository
	auditLogs  repository.AuditLogRepository
	logger     *zap.Logger
}

// NewAuditRecorder builds the facade.
func NewAuditRecorder(statusLogs repository.StatusLogRepository, auditLogs repository.AuditLogRepository, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{statusLogs: statusLogs, auditLogs: auditLogs, logger: logger}
}

// BuildStatusLog prepares a system status-change entry for a transition.
func (a *AuditRecorder) BuildStatusLog(ticket *domain.Ticket, newStatus domain.TicketStatus, level int, slaStatus domain.SLAStatus, actorType domain.ActorType, actorID *int64, note string, at time.Time) domain.TicketStatusLog {
	oldStatus := ticket.Status
	entry := domain.TicketStatusLog{
		TicketID:        ticket.ID,
		OldStatus:       &oldStatus,
		NewStatus:       newStatus,
		ChangedByType:   actorType,
		ChangedByID:     actorID,
		ChangedAt:       at,
		EscalationLevel: &level,
		SLAStatus:       slaStatus,
		Notes:           note,
	}
	if actorType == domain.ActorTypeSystem {
		name := SystemActorName
		entry.ChangedBy = &name
	}
	return entry
}

// BuildAuditLog prepares an audit entry for a ticket action.
func (a *AuditRecorder) BuildAuditLog(action string, ticketID int64, actorType domain.ActorType, actorID *int64, details map[string]any) domain.AuditLog {
	id := ticketID
	return domain.AuditLog{
		Action:       action,
		ResourceType: "ticket",
		ResourceID:   &id,
		UserID:       actorID,
		UserType:     actorType,
		Details:      details,
	}
}

// RecordAction writes an audit entry outside any transition transaction.
func (a *AuditRecorder) RecordAction(ctx context.Context, entry domain.AuditLog) {
	if err := a.auditLogs.Create(ctx, &entry); err != nil {
		a.logger.Warn("audit entry not written",
			zap.String("action", entry.Action), zap.Error(err))
	}
}

// RecordStatusChange writes a timeline entry outside any transition.
func (a *AuditRecorder) RecordStatusChange(ctx context.Context, entry domain.TicketStatusLog) {
	if err := a.statusLogs.Create(ctx, &entry); err != nil {
		a.logger.Warn("status log not written",
			zap.Int64("ticket_id", entry.TicketID), zap.Error(err))
	}
}

// RecordRepair audits one repair step applied by the data-quality pass.
func (a *AuditRecorder) RecordRepair(ctx context.Context, step string, ticketID *int64, details map[string]any) {
	entry := domain.AuditLog{
		Action:       domain.AuditActionRepairPrefix + step,
		ResourceType: "ticket",
		ResourceID:   ticketID,
		UserType:     domain.ActorTypeSystem,
		Details:      details,
	}
	if ticketID == nil {
		entry.ResourceType = "sla_log"
	}
	a.RecordAction(ctx, entry)
}

// RecordInconsistency audits state the repairer could not restore.
func (a *AuditRecorder) RecordInconsistency(ctx context.Context, ticketID int64, reason string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason
	a.RecordAction(ctx, a.BuildAuditLog(domain.AuditActionInconsistency, ticketID, domain.ActorTypeSystem, nil, details))
}
