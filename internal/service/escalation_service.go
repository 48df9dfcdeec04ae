package service

import (
	"context"
	"strings"
	"time"

	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/repository"
	apperrors "github.com/youcloud/sla-engine/pkg/util"
)

// EscalationDetail is a read model combining a ticket's escalation state,
// its open SLA log, and the status-change timeline.
type EscalationDetail struct {
	Ticket     *domain.Ticket
	CurrentLog *domain.SLALog
	Partner    *domain.Partner
	Timeline   []domain.TicketStatusLog
}

// EscalationService serves operator queries and resolution actions on a
// ticket's escalation state.
type EscalationService struct {
	tickets    repository.TicketRepository
	slaLogs    repository.SLALogRepository
	statusLogs repository.StatusLogRepository
	partners   repository.PartnerRepository
	auditLogs  repository.AuditLogRepository
	now        func() time.Time
}

// EscalationDependencies encapsulates repo requirements.
type EscalationDependencies struct {
	TicketRepo    repository.TicketRepository
	SLALogRepo    repository.SLALogRepository
	StatusLogRepo repository.StatusLogRepository
	PartnerRepo   repository.PartnerRepository
	AuditLogRepo  repository.AuditLogRepository
}

// NewEscalationService builds the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	return &EscalationService{
		tickets:    deps.TicketRepo,
		slaLogs:    deps.SLALogRepo,
		statusLogs: deps.StatusLogRepo,
		partners:   deps.PartnerRepo,
		auditLogs:  deps.AuditLogRepo,
		now:        time.Now,
	}
}

// GetDetail loads the escalation view of one ticket.
func (s *EscalationService) GetDetail(ctx context.Context, ticketID int64) (*EscalationDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}

	log, err := s.slaLogs.LatestByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	timeline, err := s.statusLogs.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	detail := &EscalationDetail{Ticket: ticket, CurrentLog: log, Timeline: timeline}
	if ticket.AssignedPartnerID != nil {
		partner, err := s.partners.GetByID(ctx, *ticket.AssignedPartnerID)
		if err != nil {
			return nil, err
		}
		detail.Partner = partner
	}
	return detail, nil
}

// ResolveTicket closes out the ticket on operator authority: the ticket moves
// to resolved and the open SLA log is sealed with the resolution method.
func (s *EscalationService) ResolveTicket(ctx context.Context, ticketID int64, method string, operatorID int64) error {
	method = strings.TrimSpace(method)
	if method == "" {
		return apperrors.NewOperatorInputInvalid("resolution method is required", nil)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket == nil {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if ticket.Status.IsTerminal() {
		return apperrors.NewOperatorInputInvalid("ticket is already resolved or closed",
			map[string]any{"ticket_id": ticketID, "status": string(ticket.Status)})
	}

	current, err := s.slaLogs.LatestByTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	slaStatus := domain.SLAStatusOnTime
	if current != nil && current.IsBreached {
		slaStatus = domain.SLAStatusBreached
	}

	now := s.now().UTC()
	if err := s.slaLogs.MarkResolved(ctx, ticketID, now, method); err != nil {
		return err
	}

	resolved := domain.TicketStatusResolved
	if err := s.tickets.UpdateEscalation(ctx, ticketID, repository.TicketEscalationUpdate{Status: &resolved}); err != nil {
		return err
	}

	oldStatus := ticket.Status
	level := ticket.Level()
	if err := s.statusLogs.Create(ctx, &domain.TicketStatusLog{
		TicketID:        ticketID,
		OldStatus:       &oldStatus,
		NewStatus:       resolved,
		ChangedByID:     &operatorID,
		ChangedByType:   domain.ActorTypeAdmin,
		ChangedAt:       now,
		EscalationLevel: &level,
		SLAStatus:       slaStatus,
		Notes:           "Resolved via " + method,
	}); err != nil {
		return err
	}

	return s.auditLogs.Create(ctx, &domain.AuditLog{
		Action:       "ticket.resolved",
		ResourceType: "ticket",
		ResourceID:   &ticketID,
		UserID:       &operatorID,
		UserType:     domain.ActorTypeAdmin,
		Details:      map[string]any{"resolution_method": method},
		CreatedAt:    now,
	})
}
