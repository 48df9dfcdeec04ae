package engine

import (
	"context"

	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/repository"
)

// PartnerDirectory selects responder organizations for escalated tickets.
type PartnerDirectory struct {
	partners repository.PartnerRepository
}

// NewPartnerDirectory builds a directory over the partner repository.
func NewPartnerDirectory(partners repository.PartnerRepository) *PartnerDirectory {
	return &PartnerDirectory{partners: partners}
}

// PickPartner returns the active partner of the tier with the fewest
// tickets handled, ties broken by lowest id. A nil partner with nil error
// means no partner is available; the escalation still proceeds unassigned.
func (d *PartnerDirectory) PickPartner(ctx context.Context, tier domain.PartnerTier) (*domain.Partner, error) {
	list, err := d.partners.ListActiveByTier(ctx, tier)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	partner := list[0]
	return &partner, nil
}
