package engine

import (
	"time"

	"github.com/youcloud/sla-engine/internal/domain"
)

// DefaultAtRiskThreshold is the warning window before a deadline.
const DefaultAtRiskThreshold = 30 * time.Minute

// ClassifySLA decides whether a log is on time, at risk or breached at the
// given moment. The deadline is created_at + sla_target_hours, wall clock.
func ClassifySLA(log *domain.SLALog, now time.Time, atRisk time.Duration) domain.SLAStatus {
	if atRisk <= 0 {
		atRisk = DefaultAtRiskThreshold
	}
	deadline := log.Deadline()
	if !now.Before(deadline) {
		return domain.SLAStatusBreached
	}
	if deadline.Sub(now) <= atRisk {
		return domain.SLAStatusAtRisk
	}
	return domain.SLAStatusOnTime
}
