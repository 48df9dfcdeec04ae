package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/youcloud/sla-engine/internal/engine"
	"github.com/youcloud/sla-engine/internal/observability"
)

// EngineHandler exposes the engine's operational status.
type EngineHandler struct {
	controller *engine.Controller
	metrics    *observability.Metrics
}

// NewEngineHandler returns a new handler instance.
func NewEngineHandler(controller *engine.Controller, metrics *observability.Metrics) *EngineHandler {
	return &EngineHandler{controller: controller, metrics: metrics}
}

// Status reports loop state plus counters since process start.
func (h *EngineHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"engine":  h.controller.Status(),
		"metrics": h.metrics.Snapshot(),
	})
}
