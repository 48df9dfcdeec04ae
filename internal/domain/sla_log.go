package domain

import "time"

// SLAStatus classifies a log against its deadline.
type SLAStatus string

const (
	SLAStatusOnTime   SLAStatus = "on_time"
	SLAStatusAtRisk   SLAStatus = "at_risk"
	SLAStatusBreached SLAStatus = "breached"
)

// SLALog records the service-level target for one (ticket, level) pair.
// It is created when the engine first observes a ticket at that level,
// sealed (EscalatedAt set) when the ticket moves on, and never deleted.
type SLALog struct {
	ID                int64
	TicketID          int64
	EscalationLevel   int
	LevelName         string
	SLATargetHours    float64
	Status            SLAStatus
	CreatedAt         time.Time
	LoggedAt          time.Time
	EscalatedAt       *time.Time
	ResolvedAt        *time.Time
	BreachTime        *time.Time
	IsBreached        bool
	AssignedPartnerID *int64
	ResolutionMethod  *string
}

// Deadline is the moment this level's SLA expires.
func (l *SLALog) Deadline() time.Time {
	return l.CreatedAt.Add(time.Duration(l.SLATargetHours * float64(time.Hour)))
}

// NeedsEscalation reports whether a breach on this log still awaits a
// transition to the next level.
func (l *SLALog) NeedsEscalation() bool {
	return l.IsBreached && l.EscalatedAt == nil && l.EscalationLevel < MaxEscalationLevel
}

// SLALevelStats aggregates compliance for a single escalation level.
type SLALevelStats struct {
	Level      int     `json:"level"`
	LevelName  string  `json:"level_name"`
	Total      int     `json:"total_tickets"`
	Breached   int     `json:"breached_tickets"`
	Compliance float64 `json:"compliance_rate"`
}

// SLAStatistics is the aggregate returned by the statistics API.
type SLAStatistics struct {
	OverallCompliance float64         `json:"overall_compliance"`
	TotalLogs         int             `json:"total_tickets"`
	BreachedLogs      int             `json:"breached_tickets"`
	LevelStatistics   []SLALevelStats `json:"level_statistics"`
}
