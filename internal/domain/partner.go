package domain

import "time"

// PartnerTier distinguishes the two human responder tiers.
type PartnerTier string

const (
	PartnerTierICP PartnerTier = "ICP"
	PartnerTierYCP PartnerTier = "YCP"
)

// TierForLevel maps an escalation level to the partner tier expected to
// handle it. Level 0 is the bot tier and has no partner.
func TierForLevel(level int) PartnerTier {
	if level == LevelICP {
		return PartnerTierICP
	}
	return PartnerTierYCP
}

// PartnerStatus enumerates partner availability.
type PartnerStatus string

const (
	PartnerStatusActive    PartnerStatus = "active"
	PartnerStatusSuspended PartnerStatus = "suspended"
)

// Partner is an external responder organization. The engine only reads
// active partners; counters are updated inside transition transactions.
type Partner struct {
	ID                  int64
	Name                string
	Tier                PartnerTier
	Email               string
	Status              PartnerStatus
	WebhookURL          *string
	APIKey              *string
	EscalationSettings  map[string]any
	SLASettings         map[string]any
	TotalTicketsHandled int
	AvgResolutionTime   float64
	SatisfactionRating  float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasWebhook reports whether escalation webhooks can be delivered.
func (p *Partner) HasWebhook() bool {
	return p.WebhookURL != nil && *p.WebhookURL != ""
}
