package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusEscalated  TicketStatus = "escalated"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// ActiveTicketStatuses are the states the escalation engine sweeps.
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusEscalated,
}

// IsTerminal reports whether the ticket left the engine's scope.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityCritical TicketPriority = "critical"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityLow      TicketPriority = "low"
)

// NormalizePriority maps unknown priority values to medium.
func NormalizePriority(p TicketPriority) TicketPriority {
	switch p {
	case TicketPriorityCritical, TicketPriorityHigh, TicketPriorityMedium, TicketPriorityLow:
		return p
	default:
		return TicketPriorityMedium
	}
}

// Escalation levels of the responder hierarchy.
const (
	LevelBot      = 0
	LevelICP      = 1
	LevelYouCloud = 2

	MaxEscalationLevel = LevelYouCloud
)

// LevelName returns the display name for an escalation level.
func LevelName(level int) string {
	switch level {
	case LevelICP:
		return "ICP"
	case LevelYouCloud:
		return "YouCloud"
	default:
		return "Bot"
	}
}

// EscalationEvent is one entry of a ticket's denormalized escalation
// history, appended at each transition for quick UI rendering.
type EscalationEvent struct {
	Level       int       `json:"level"`
	EscalatedTo string    `json:"escalated_to"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
	Auto        bool      `json:"auto"`
}

// Ticket is the engine's view of a support ticket. The textual content is
// owned by the intake layer; the engine owns only escalation state, SLA
// timers and the audit trail.
type Ticket struct {
	ID                int64
	Subject           string
	Priority          TicketPriority
	CategoryID        *int64
	Status            TicketStatus
	OrganizationName  *string
	CreatedBy         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	EscalationLevel   *int
	AssignedPartnerID *int64
	CurrentSLATarget  *time.Time
	EscalationHistory []EscalationEvent

	// LegacyEscalationLevel carries the old string vocabulary
	// ("normal"/"supervisor"/"admin") on rows written by pre-engine code.
	// The repairer migrates it to the numeric level on first observation.
	LegacyEscalationLevel *string
}

// Level returns the numeric escalation level, defaulting to Bot when the
// column is still null on a legacy row.
func (t *Ticket) Level() int {
	if t.EscalationLevel == nil {
		return LevelBot
	}
	return *t.EscalationLevel
}
