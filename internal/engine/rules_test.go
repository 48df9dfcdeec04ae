package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/youcloud/sla-engine/internal/domain"
)

func TestSLAHoursForDefaults(t *testing.T) {
	resolver := NewRuleResolver(nil, nil)
	ctx := context.Background()

	tests := []struct {
		priority domain.TicketPriority
		level    int
		want     float64
	}{
		{domain.TicketPriorityCritical, 0, 0},
		{domain.TicketPriorityCritical, 1, 1},
		{domain.TicketPriorityCritical, 2, 2},
		{domain.TicketPriorityHigh, 1, 4},
		{domain.TicketPriorityHigh, 2, 4},
		{domain.TicketPriorityMedium, 1, 8},
		{domain.TicketPriorityMedium, 2, 8},
		{domain.TicketPriorityLow, 1, 24},
		{domain.TicketPriorityLow, 2, 24},
	}
	for _, tt := range tests {
		got := resolver.SLAHoursFor(ctx, tt.priority, nil, tt.level)
		assert.Equal(t, tt.want, got, "priority=%s level=%d", tt.priority, tt.level)
	}
}

func TestSLAHoursForUnknownPriority(t *testing.T) {
	resolver := NewRuleResolver(nil, nil)
	got := resolver.SLAHoursFor(context.Background(), domain.TicketPriority("urgent!!"), nil, 1)
	assert.Equal(t, 8.0, got)
}

func TestSLAHoursForClampsLevel(t *testing.T) {
	resolver := NewRuleResolver(nil, nil)
	ctx := context.Background()
	assert.Equal(t, 0.0, resolver.SLAHoursFor(ctx, domain.TicketPriorityHigh, nil, -1))
	assert.Equal(t, 4.0, resolver.SLAHoursFor(ctx, domain.TicketPriorityHigh, nil, 7))
}

func TestSLAHoursForConfiguredRuleWins(t *testing.T) {
	rules := &fakeRuleRepo{rule: &domain.EscalationRule{
		Level0SLAHours: 0.5,
		Level1SLAHours: 2,
		Level2SLAHours: 6,
	}}
	resolver := NewRuleResolver(rules, nil)
	ctx := context.Background()

	assert.Equal(t, 2.0, resolver.SLAHoursFor(ctx, domain.TicketPriorityMedium, nil, 1))
	assert.Equal(t, 6.0, resolver.SLAHoursFor(ctx, domain.TicketPriorityMedium, nil, 2))
}
