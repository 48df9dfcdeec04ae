package domain

import "time"

// EscalationRule configures per-level SLA durations for a priority and an
// optional category. A missing rule falls back to built-in defaults.
type EscalationRule struct {
	ID             int64
	Name           string
	Priority       TicketPriority
	CategoryID     *int64
	Level0SLAHours float64
	Level1SLAHours float64
	Level2SLAHours float64
	AutoEscalate   bool
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HoursForLevel returns the configured duration for an escalation level.
func (r *EscalationRule) HoursForLevel(level int) float64 {
	switch level {
	case LevelBot:
		return r.Level0SLAHours
	case LevelICP:
		return r.Level1SLAHours
	default:
		return r.Level2SLAHours
	}
}
