package domain

import "time"

// Audit action verbs emitted by the engine.
const (
	AuditActionAutoEscalated  = "ticket.auto_escalated"
	AuditActionForceEscalated = "ticket.force_escalated"
	AuditActionTopTierBreach  = "ticket.top_tier_breach"
	AuditActionSLAExtended    = "ticket.sla_extended"
	AuditActionInconsistency  = "engine.inconsistency"

	// Repair actions are AuditActionRepairPrefix + step name.
	AuditActionRepairPrefix = "engine.repaired."
)

// AuditLog is a cross-cutting record of a privileged action.
type AuditLog struct {
	ID           int64
	Action       string
	ResourceType string
	ResourceID   *int64
	UserID       *int64
	UserType     ActorType
	IPAddress    *string
	UserAgent    *string
	Details      map[string]any
	CreatedAt    time.Time
}
