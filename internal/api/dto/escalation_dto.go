package dto

import (
	"time"

	"github.com/youcloud/sla-engine/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ForceEscalateRequest payload.
type ForceEscalateRequest struct {
	Level   int    `json:"level"`
	Comment string `json:"comment"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	Method string `json:"method"`
}

// ResolveTicketResponse acknowledges a resolution.
type ResolveTicketResponse struct {
	OK       bool  `json:"ok"`
	TicketID int64 `json:"ticket_id"`
}

// ForceEscalateResponse reports the committed escalation.
type ForceEscalateResponse struct {
	OK                bool   `json:"ok"`
	TicketID          int64  `json:"ticket_id"`
	NewLevel          int    `json:"new_level"`
	NewLevelName      string `json:"new_level_name"`
	AssignedPartnerID *int64 `json:"assigned_partner_id,omitempty"`
}

// SLALogView is the API shape of one SLA log.
type SLALogView struct {
	ID              int64      `json:"id"`
	EscalationLevel int        `json:"escalation_level"`
	LevelName       string     `json:"level_name"`
	SLATargetHours  float64    `json:"sla_target_hours"`
	Status          string     `json:"status"`
	Deadline        time.Time  `json:"deadline"`
	IsBreached      bool       `json:"is_breached"`
	BreachTime      *time.Time `json:"breach_time,omitempty"`
	EscalatedAt     *time.Time `json:"escalated_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// TimelineEntryView is one row of the ticket status timeline.
type TimelineEntryView struct {
	OldStatus       *domain.TicketStatus `json:"old_status,omitempty"`
	NewStatus       domain.TicketStatus  `json:"new_status"`
	ChangedBy       *string              `json:"changed_by,omitempty"`
	ChangedByType   domain.ActorType     `json:"changed_by_type"`
	ChangedAt       time.Time            `json:"changed_at"`
	EscalationLevel *int                 `json:"escalation_level,omitempty"`
	SLAStatus       domain.SLAStatus     `json:"sla_status"`
	Notes           string               `json:"notes,omitempty"`
}

// PartnerView identifies an assigned partner.
type PartnerView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

// EscalationDetailResponse is the full escalation view of one ticket.
type EscalationDetailResponse struct {
	TicketID          int64                    `json:"ticket_id"`
	Subject           string                   `json:"subject"`
	Priority          domain.TicketPriority    `json:"priority"`
	Status            domain.TicketStatus      `json:"status"`
	EscalationLevel   int                      `json:"escalation_level"`
	LevelName         string                   `json:"level_name"`
	CurrentSLATarget  *time.Time               `json:"current_sla_target,omitempty"`
	EscalationHistory []domain.EscalationEvent `json:"escalation_history"`
	CurrentLog        *SLALogView              `json:"current_sla_log,omitempty"`
	Partner           *PartnerView             `json:"assigned_partner,omitempty"`
	Timeline          []TimelineEntryView      `json:"timeline"`
}

// NewSLALogView maps a domain log.
func NewSLALogView(log *domain.SLALog) *SLALogView {
	if log == nil {
		return nil
	}
	return &SLALogView{
		ID:              log.ID,
		EscalationLevel: log.EscalationLevel,
		LevelName:       log.LevelName,
		SLATargetHours:  log.SLATargetHours,
		Status:          string(log.Status),
		Deadline:        log.Deadline(),
		IsBreached:      log.IsBreached,
		BreachTime:      log.BreachTime,
		EscalatedAt:     log.EscalatedAt,
		ResolvedAt:      log.ResolvedAt,
	}
}

// NewTimelineView maps status logs.
func NewTimelineView(entries []domain.TicketStatusLog) []TimelineEntryView {
	out := make([]TimelineEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, TimelineEntryView{
			OldStatus:       e.OldStatus,
			NewStatus:       e.NewStatus,
			ChangedBy:       e.ChangedBy,
			ChangedByType:   e.ChangedByType,
			ChangedAt:       e.ChangedAt,
			EscalationLevel: e.EscalationLevel,
			SLAStatus:       e.SLAStatus,
			Notes:           e.Notes,
		})
	}
	return out
}
