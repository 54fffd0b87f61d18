package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-service/internal/api/dto"
	"github.com/spec-kit/incident-service/internal/sla"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// SLAHandler exposes the allowance table and the active calendar.
type SLAHandler struct {
	engine *sla.Engine
}

// NewSLAHandler constructs handler.
func NewSLAHandler(engine *sla.Engine) *SLAHandler {
	return &SLAHandler{engine: engine}
}

// Priorities GET /sla/priorities.
func (h *SLAHandler) Priorities(c *fiber.Ctx) error {
	allowances := sla.Allowances()
	resp := make([]dto.PriorityAllowanceResponse, 0, len(allowances))
	for _, a := range allowances {
		resp = append(resp, dto.PriorityAllowanceResponse{Priority: string(a.Priority), Hours: a.Hours})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Calendar GET /sla/calendar. With ?year= the holidays of that year are
// listed too.
func (h *SLAHandler) Calendar(c *fiber.Ctx) error {
	cal := h.engine.Calendar()
	start, end := cal.Window()
	resp := dto.CalendarResponse{
		Version:   cal.Version(),
		Timezone:  cal.Location().String(),
		StartHour: start,
		EndHour:   end,
		Years:     cal.Years(),
	}
	if raw := c.Query("year"); raw != "" {
		year := c.QueryInt("year", 0)
		if year <= 0 {
			return apperrors.NewValidationError("invalid year", map[string]any{"year": raw})
		}
		if !cal.Covers(year) {
			return apperrors.NewNotFound("holiday year", map[string]any{"year": year})
		}
		holidays := cal.Holidays(year)
		resp.Holidays = make([]string, 0, len(holidays))
		for _, day := range holidays {
			resp.Holidays = append(resp.Holidays, day.Format("2006-01-02"))
		}
	}
	return c.JSON(fiber.Map{"data": resp})
}
