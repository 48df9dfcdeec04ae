package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/repository"
)

// defaultSLAHours is the built-in fallback table, indexed by escalation
// level. Level 0 carries no timed SLA: the moment the bot declines, the
// ticket becomes eligible for level 1.
var defaultSLAHours = map[domain.TicketPriority][3]float64{
	domain.TicketPriorityCritical: {0, 1, 2},
	domain.TicketPriorityHigh:     {0, 4, 4},
	domain.TicketPriorityMedium:   {0, 8, 8},
	domain.TicketPriorityLow:      {0, 24, 24},
}

// RuleResolver maps (priority, category, level) to an SLA duration.
// Configured rules win; a missing or unreadable rule falls back to the
// defaults silently.
type RuleResolver struct {
	rules  repository.EscalationRuleRepository
	logger *zap.Logger
}

// NewRuleResolver builds a resolver. rules may be nil, in which case only
// the default table is consulted.
func NewRuleResolver(rules repository.EscalationRuleRepository, logger *zap.Logger) *RuleResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleResolver{rules: rules, logger: logger}
}

// SLAHoursFor resolves the duration for one escalation level. Unknown
// priorities resolve as medium.
func (r *RuleResolver) SLAHoursFor(ctx context.Context, priority domain.TicketPriority, categoryID *int64, level int) float64 {
	priority = domain.NormalizePriority(priority)
	if level < 0 {
		level = 0
	}
	if level > domain.MaxEscalationLevel {
		level = domain.MaxEscalationLevel
	}

	if r.rules != nil {
		rule, err := r.rules.FindActive(ctx, priority, categoryID)
		if err != nil {
			r.logger.Debug("escalation rule lookup failed, using defaults",
				zap.String("priority", string(priority)), zap.Error(err))
		} else if rule != nil {
			return rule.HoursForLevel(level)
		}
	}
	return defaultSLAHours[priority][level]
}
