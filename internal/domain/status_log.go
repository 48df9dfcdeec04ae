package domain

import "time"

// ActorType identifies who performed a change.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
	ActorTypeBot    ActorType = "bot"
)

// TicketStatusLog is an immutable timeline entry for a status change.
type TicketStatusLog struct {
	ID              int64
	TicketID        int64
	OldStatus       *TicketStatus
	NewStatus       TicketStatus
	ChangedBy       *string
	ChangedByID     *int64
	ChangedByType   ActorType
	ChangedAt       time.Time
	EscalationLevel *int
	SLAStatus       SLAStatus
	Notes           string
	CreatedAt       time.Time
}
