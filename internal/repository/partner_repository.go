package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/youcloud/sla-engine/internal/domain"
)

const partnerColumns = `id, name, partner_type, email, status, webhook_url, api_key,
               escalation_settings, sla_settings, total_tickets_handled,
               avg_resolution_time, satisfaction_rating, created_at, updated_at`

// PartnerRepository reads responder organizations.
type PartnerRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Partner, error)
	// ListActiveByTier returns active partners ordered by ascending load
	// (total_tickets_handled, then id) so selection is deterministic.
	ListActiveByTier(ctx context.Context, tier domain.PartnerTier) ([]domain.Partner, error)
}

type partnerRepository struct {
	db Querier
}

// NewPartnerRepository builds repository.
func NewPartnerRepository(db Querier) PartnerRepository {
	return &partnerRepository{db: db}
}

func (r *partnerRepository) GetByID(ctx context.Context, id int64) (*domain.Partner, error) {
	query := fmt.Sprintf(`SELECT %s FROM partners WHERE id=$1`, partnerColumns)
	partner, err := scanPartner(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return partner, nil
}

func (r *partnerRepository) ListActiveByTier(ctx context.Context, tier domain.PartnerTier) ([]domain.Partner, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM partners
        WHERE partner_type=$1 AND status=$2
        ORDER BY total_tickets_handled ASC, id ASC`, partnerColumns)
	rows, err := r.db.Query(ctx, query, tier, domain.PartnerStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Partner
	for rows.Next() {
		partner, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *partner)
	}
	return result, rows.Err()
}

func scanPartner(row rowScanner) (*domain.Partner, error) {
	var (
		partner       domain.Partner
		escalationRaw []byte
		slaRaw        []byte
	)
	if err := row.Scan(
		&partner.ID,
		&partner.Name,
		&partner.Tier,
		&partner.Email,
		&partner.Status,
		&partner.WebhookURL,
		&partner.APIKey,
		&escalationRaw,
		&slaRaw,
		&partner.TotalTicketsHandled,
		&partner.AvgResolutionTime,
		&partner.SatisfactionRating,
		&partner.CreatedAt,
		&partner.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(escalationRaw) > 0 {
		if err := json.Unmarshal(escalationRaw, &partner.EscalationSettings); err != nil {
			return nil, fmt.Errorf("decode escalation settings for partner %d: %w", partner.ID, err)
		}
	}
	if len(slaRaw) > 0 {
		if err := json.Unmarshal(slaRaw, &partner.SLASettings); err != nil {
			return nil, fmt.Errorf("decode sla settings for partner %d: %w", partner.ID, err)
		}
	}
	return &partner, nil
}

// incrementPartnerHandled bumps the partner's counter inside the transition
// transaction to avoid lost updates under concurrent escalations.
func incrementPartnerHandled(ctx context.Context, q Querier, partnerID int64, delta int) error {
	const query = `
        UPDATE partners SET
            total_tickets_handled = COALESCE(total_tickets_handled, 0) + $1,
            updated_at = NOW()
        WHERE id=$2`
	_, err := q.Exec(ctx, query, delta, partnerID)
	return err
}
