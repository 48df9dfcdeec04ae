package events

import (
	"time"

	"github.com/youcloud/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLABreached     EventType = "sla_breached"
	EventTicketEscalated EventType = "ticket_escalated"
	EventTicketRepaired  EventType = "ticket_repaired"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type       domain.ActorType `json:"type"`
	OperatorID *string          `json:"operator_id,omitempty"`
}

// Event represents a domain event emitted by the engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Level          int       `json:"level"`
	LevelName      string    `json:"level_name"`
	SLATargetHours float64   `json:"sla_target_hours"`
	Deadline       time.Time `json:"deadline"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	FromLevel         int     `json:"from_level"`
	ToLevel           int     `json:"to_level"`
	ToLevelName       string  `json:"to_level_name"`
	AssignedPartnerID *int64  `json:"assigned_partner_id,omitempty"`
	SLATargetHours    float64 `json:"sla_target_hours"`
	Forced            bool    `json:"forced"`
}

// TicketRepairedPayload payload.
type TicketRepairedPayload struct {
	Step string `json:"step"`
}
