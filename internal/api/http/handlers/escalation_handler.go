package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/youcloud/sla-engine/internal/api/dto"
	"github.com/youcloud/sla-engine/internal/auth"
	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/engine"
	"github.com/youcloud/sla-engine/internal/service"
	apperrors "github.com/youcloud/sla-engine/pkg/util"
)

// EscalationHandler exposes the escalation control plane.
type EscalationHandler struct {
	controller  *engine.Controller
	escalations *service.EscalationService
}

// NewEscalationHandler returns a new handler instance.
func NewEscalationHandler(controller *engine.Controller, escalations *service.EscalationService) *EscalationHandler {
	return &EscalationHandler{controller: controller, escalations: escalations}
}

// ForceEscalate jumps a ticket to the requested level on operator authority.
func (h *EscalationHandler) ForceEscalate(c *fiber.Ctx) error {
	ticketID, err := parseTicketID(c)
	if err != nil {
		return err
	}
	var req dto.ForceEscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewOperatorInputInvalid("invalid request body", nil)
	}
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}

	result, err := h.controller.ForceEscalate(c.UserContext(), ticketID, req.Level, principal.OperatorID, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(dto.ForceEscalateResponse{
		OK:                true,
		TicketID:          result.TicketID,
		NewLevel:          result.NewLevel,
		NewLevelName:      result.NewLevelName,
		AssignedPartnerID: result.AssignedPartnerID,
	})
}

// Resolve marks a ticket resolved and seals its open SLA log.
func (h *EscalationHandler) Resolve(c *fiber.Ctx) error {
	ticketID, err := parseTicketID(c)
	if err != nil {
		return err
	}
	var req dto.ResolveTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewOperatorInputInvalid("invalid request body", nil)
	}
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}

	if err := h.escalations.ResolveTicket(c.UserContext(), ticketID, req.Method, principal.OperatorID); err != nil {
		return err
	}
	return c.JSON(dto.ResolveTicketResponse{OK: true, TicketID: ticketID})
}

// Statistics reports SLA compliance over the trailing window.
func (h *EscalationHandler) Statistics(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	if days < 1 || days > 365 {
		return apperrors.NewOperatorInputInvalid("days must be between 1 and 365",
			map[string]any{"days": days})
	}
	stats, err := h.controller.Statistics(c.UserContext(), days)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

// Overview buckets active tickets by SLA state.
func (h *EscalationHandler) Overview(c *fiber.Ctx) error {
	overview, err := h.controller.Overview(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(overview)
}

// CheckTicket evaluates one ticket immediately, outside the tick loop.
func (h *EscalationHandler) CheckTicket(c *fiber.Ctx) error {
	ticketID, err := parseTicketID(c)
	if err != nil {
		return err
	}
	escalated, err := h.controller.CheckTicket(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket_id": ticketID, "escalated": escalated})
}

// Detail returns the escalation view of one ticket.
func (h *EscalationHandler) Detail(c *fiber.Ctx) error {
	ticketID, err := parseTicketID(c)
	if err != nil {
		return err
	}
	detail, err := h.escalations.GetDetail(c.UserContext(), ticketID)
	if err != nil {
		return err
	}

	ticket := detail.Ticket
	resp := dto.EscalationDetailResponse{
		TicketID:          ticket.ID,
		Subject:           ticket.Subject,
		Priority:          ticket.Priority,
		Status:            ticket.Status,
		EscalationLevel:   ticket.Level(),
		LevelName:         domain.LevelName(ticket.Level()),
		CurrentSLATarget:  ticket.CurrentSLATarget,
		EscalationHistory: ticket.EscalationHistory,
		CurrentLog:        dto.NewSLALogView(detail.CurrentLog),
		Timeline:          dto.NewTimelineView(detail.Timeline),
	}
	if detail.Partner != nil {
		resp.Partner = &dto.PartnerView{
			ID:   detail.Partner.ID,
			Name: detail.Partner.Name,
			Tier: string(detail.Partner.Tier),
		}
	}
	return c.JSON(resp)
}

func parseTicketID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("ticketID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewOperatorInputInvalid("invalid ticket id",
			map[string]any{"ticket_id": raw})
	}
	return id, nil
}
