package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/youcloud/sla-engine/internal/domain"
)

const ruleColumns = `id, name, priority, category_id, level_0_sla_hours, level_1_sla_hours,
               level_2_sla_hours, auto_escalate, is_active, created_at, updated_at`

// EscalationRuleRepository looks up configured SLA durations.
type EscalationRuleRepository interface {
	// FindActive resolves the rule for (priority, category), falling back to
	// the priority-wide rule. Returns nil when no rule is configured.
	FindActive(ctx context.Context, priority domain.TicketPriority, categoryID *int64) (*domain.EscalationRule, error)
}

type escalationRuleRepository struct {
	db Querier
}

// NewEscalationRuleRepository builds repository.
func NewEscalationRuleRepository(db Querier) EscalationRuleRepository {
	return &escalationRuleRepository{db: db}
}

func (r *escalationRuleRepository) FindActive(ctx context.Context, priority domain.TicketPriority, categoryID *int64) (*domain.EscalationRule, error) {
	if categoryID != nil {
		rule, err := r.findOne(ctx, `SELECT `+ruleColumns+`
            FROM escalation_rules
            WHERE priority=$1 AND category_id=$2 AND is_active
            ORDER BY id ASC LIMIT 1`, priority, *categoryID)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			return rule, nil
		}
	}
	return r.findOne(ctx, `SELECT `+ruleColumns+`
        FROM escalation_rules
        WHERE priority=$1 AND category_id IS NULL AND is_active
        ORDER BY id ASC LIMIT 1`, priority)
}

func (r *escalationRuleRepository) findOne(ctx context.Context, query string, args ...any) (*domain.EscalationRule, error) {
	var rule domain.EscalationRule
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&rule.ID,
		&rule.Name,
		&rule.Priority,
		&rule.CategoryID,
		&rule.Level0SLAHours,
		&rule.Level1SLAHours,
		&rule.Level2SLAHours,
		&rule.AutoEscalate,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}
