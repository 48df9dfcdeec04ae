package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/youcloud/sla-engine/internal/domain"
)

func TestClassifySLA(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	log := &domain.SLALog{CreatedAt: createdAt, SLATargetHours: 2}

	tests := []struct {
		name string
		now  time.Time
		want domain.SLAStatus
	}{
		{"well before deadline", createdAt.Add(30 * time.Minute), domain.SLAStatusOnTime},
		{"inside warning window", createdAt.Add(95 * time.Minute), domain.SLAStatusAtRisk},
		{"exactly at deadline", createdAt.Add(2 * time.Hour), domain.SLAStatusBreached},
		{"after deadline", createdAt.Add(3 * time.Hour), domain.SLAStatusBreached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySLA(log, tt.now, 30*time.Minute))
		})
	}
}

func TestClassifySLAFractionalHours(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	log := &domain.SLALog{CreatedAt: createdAt, SLATargetHours: 0.5}

	assert.Equal(t, domain.SLAStatusAtRisk, ClassifySLA(log, createdAt.Add(5*time.Minute), 30*time.Minute))
	assert.Equal(t, domain.SLAStatusBreached, ClassifySLA(log, createdAt.Add(31*time.Minute), 30*time.Minute))
}

func TestClassifySLAZeroTarget(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	log := &domain.SLALog{CreatedAt: createdAt, SLATargetHours: 0}

	// A zero-hour target breaches the moment it is observed.
	assert.Equal(t, domain.SLAStatusBreached, ClassifySLA(log, createdAt, 30*time.Minute))
}
