package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-service/internal/api/dto"
	"github.com/spec-kit/incident-service/internal/service"
)

// DashboardHandler serves aggregate counts.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: dashboardService}
}

// Stats GET /dashboard/stats.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DashboardResponse{
		Total:       stats.Total,
		Active:      stats.Active,
		Resolved:    stats.Resolved,
		ByPriority:  stats.ByPriority,
		ByStatus:    stats.ByStatus,
		ByModule:    stats.ByModule,
		ByRisk:      stats.ByRisk,
		GeneratedAt: stats.GeneratedAt,
	}})
}
