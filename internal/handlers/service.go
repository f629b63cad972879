package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nodeledger/nodeledger/internal/models"
	"github.com/nodeledger/nodeledger/internal/objects"
)

func (h *Handler) serviceResponse(c *fiber.Ctx, svc *objects.Service) models.ServiceResponse {
	resp := models.ServiceResponse{
		ID:             svc.ID,
		Host:           svc.Host,
		Binary:         svc.Binary,
		Topic:          svc.Topic,
		Disabled:       svc.Disabled,
		DisabledReason: svc.DisabledReason,
		CreatedAt:      models.FormatTime(svc.CreatedAt),
		UpdatedAt:      models.FormatTime(svc.UpdatedAt),
	}
	up, err := h.services.IsUp(c.UserContext(), svc.ID)
	if err != nil {
		h.logger.Warn("Failed to read service liveness", "service_id", svc.ID, "error", err)
	} else {
		resp.Up = &up
	}
	return resp
}

// ListServices returns every registered service
func (h *Handler) ListServices(c *fiber.Ctx) error {
	services, err := h.services.List(c.UserContext())
	if err != nil {
		return err
	}

	out := models.ServiceListResponse{Services: make([]models.ServiceResponse, 0, len(services))}
	for _, svc := range services {
		out.Services = append(out.Services, h.serviceResponse(c, svc))
	}
	return c.JSON(out)
}

// GetService returns one service
func (h *Handler) GetService(c *fiber.Ctx) error {
	id, err := int64Param(c, "service_id")
	if err != nil {
		return err
	}
	svc, err := h.services.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(h.serviceResponse(c, svc))
}
