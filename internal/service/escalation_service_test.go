package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/repository"
	apperrors "github.com/youcloud/sla-engine/pkg/util"
)

type stubTicketRepo struct {
	repository.TicketRepository
	tickets map[int64]*domain.Ticket
	updates []repository.TicketEscalationUpdate
}

func (s *stubTicketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	return s.tickets[id], nil
}

func (s *stubTicketRepo) UpdateEscalation(_ context.Context, id int64, upd repository.TicketEscalationUpdate) error {
	s.updates = append(s.updates, upd)
	if t := s.tickets[id]; t != nil && upd.Status != nil {
		t.Status = *upd.Status
	}
	return nil
}

type stubSLALogRepo struct {
	repository.SLALogRepository
	latest         *domain.SLALog
	resolvedAt     *time.Time
	resolvedMethod string
}

func (s *stubSLALogRepo) LatestByTicket(_ context.Context, _ int64) (*domain.SLALog, error) {
	return s.latest, nil
}

func (s *stubSLALogRepo) MarkResolved(_ context.Context, _ int64, at time.Time, method string) error {
	s.resolvedAt = &at
	s.resolvedMethod = method
	return nil
}

type stubStatusLogRepo struct {
	entries []domain.TicketStatusLog
}

func (s *stubStatusLogRepo) Create(_ context.Context, entry *domain.TicketStatusLog) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *stubStatusLogRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketStatusLog, error) {
	var out []domain.TicketStatusLog
	for _, e := range s.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubPartnerRepo struct {
	repository.PartnerRepository
	partners map[int64]*domain.Partner
}

func (s *stubPartnerRepo) GetByID(_ context.Context, id int64) (*domain.Partner, error) {
	return s.partners[id], nil
}

type stubAuditLogRepo struct {
	entries []domain.AuditLog
}

func (s *stubAuditLogRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func newStubService(tickets *stubTicketRepo, slaLogs *stubSLALogRepo) (*EscalationService, *stubStatusLogRepo, *stubAuditLogRepo) {
	statusLogs := &stubStatusLogRepo{}
	audits := &stubAuditLogRepo{}
	svc := NewEscalationService(EscalationDependencies{
		TicketRepo:    tickets,
		SLALogRepo:    slaLogs,
		StatusLogRepo: statusLogs,
		PartnerRepo:   &stubPartnerRepo{partners: map[int64]*domain.Partner{}},
		AuditLogRepo:  audits,
	})
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, statusLogs, audits
}

func openTicket(id int64) *domain.Ticket {
	level := 1
	return &domain.Ticket{
		ID:              id,
		Subject:         "printer on fire",
		Priority:        domain.TicketPriorityHigh,
		Status:          domain.TicketStatusInProgress,
		EscalationLevel: &level,
		CreatedAt:       time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestResolveTicketSealsLogAndAudits(t *testing.T) {
	tickets := &stubTicketRepo{tickets: map[int64]*domain.Ticket{7: openTicket(7)}}
	slaLogs := &stubSLALogRepo{latest: &domain.SLALog{ID: 3, TicketID: 7, IsBreached: true}}
	svc, statusLogs, audits := newStubService(tickets, slaLogs)

	err := svc.ResolveTicket(context.Background(), 7, "operator_review", 42)
	require.NoError(t, err)

	require.Equal(t, "operator_review", slaLogs.resolvedMethod)
	require.NotNil(t, slaLogs.resolvedAt)
	require.Equal(t, domain.TicketStatusResolved, tickets.tickets[7].Status)

	require.Len(t, statusLogs.entries, 1)
	entry := statusLogs.entries[0]
	require.Equal(t, domain.TicketStatusResolved, entry.NewStatus)
	require.Equal(t, domain.SLAStatusBreached, entry.SLAStatus)
	require.Equal(t, domain.ActorTypeAdmin, entry.ChangedByType)
	require.Equal(t, int64(42), *entry.ChangedByID)

	require.Len(t, audits.entries, 1)
	require.Equal(t, "ticket.resolved", audits.entries[0].Action)
	require.Equal(t, "operator_review", audits.entries[0].Details["resolution_method"])
}

func TestResolveTicketValidation(t *testing.T) {
	closed := openTicket(8)
	closed.Status = domain.TicketStatusClosed
	tickets := &stubTicketRepo{tickets: map[int64]*domain.Ticket{7: openTicket(7), 8: closed}}
	svc, _, _ := newStubService(tickets, &stubSLALogRepo{})

	cases := []struct {
		name     string
		ticketID int64
		method   string
		wantKind apperrors.ErrorKind
	}{
		{"empty method", 7, "  ", apperrors.KindOperatorInputInvalid},
		{"unknown ticket", 99, "review", apperrors.KindNotFound},
		{"terminal ticket", 8, "review", apperrors.KindOperatorInputInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ResolveTicket(context.Background(), tc.ticketID, tc.method, 42)
			var domainErr *apperrors.DomainError
			require.True(t, errors.As(err, &domainErr))
			require.Equal(t, tc.wantKind, domainErr.Kind)
		})
	}
}

func TestGetDetailLoadsPartner(t *testing.T) {
	partnerID := int64(5)
	ticket := openTicket(7)
	ticket.AssignedPartnerID = &partnerID
	tickets := &stubTicketRepo{tickets: map[int64]*domain.Ticket{7: ticket}}
	slaLogs := &stubSLALogRepo{latest: &domain.SLALog{ID: 3, TicketID: 7}}
	statusLogs := &stubStatusLogRepo{}
	svc := NewEscalationService(EscalationDependencies{
		TicketRepo:    tickets,
		SLALogRepo:    slaLogs,
		StatusLogRepo: statusLogs,
		PartnerRepo:   &stubPartnerRepo{partners: map[int64]*domain.Partner{5: {ID: 5, Name: "Acme ICP"}}},
		AuditLogRepo:  &stubAuditLogRepo{},
	})

	detail, err := svc.GetDetail(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), detail.Ticket.ID)
	require.Equal(t, int64(3), detail.CurrentLog.ID)
	require.NotNil(t, detail.Partner)
	require.Equal(t, "Acme ICP", detail.Partner.Name)
}

func TestGetDetailUnknownTicket(t *testing.T) {
	svc, _, _ := newStubService(&stubTicketRepo{tickets: map[int64]*domain.Ticket{}}, &stubSLALogRepo{})

	_, err := svc.GetDetail(context.Background(), 404)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, apperrors.KindNotFound, domainErr.Kind)
}
