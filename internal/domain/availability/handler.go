package availability

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medicall/booking/internal/platform/auth"
	"github.com/medicall/booking/pkg/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors/:doctorId/availability", h.GetAvailability)
	api.PUT("/doctors/:doctorId/availability", h.UpdateAvailability, auth.RequireRole(auth.RoleDoctor))
}

type availabilityBody struct {
	Availability []EntryDTO `json:"availability"`
}

func (h *Handler) GetAvailability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, availabilityBody{Availability: ToDTO(t)})
}

func (h *Handler) UpdateAvailability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	var body availabilityBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	caller, _ := auth.PrincipalFromContext(c.Request().Context())
	t, err := h.svc.UpdateTemplate(c.Request().Context(), caller, doctorID, body.Availability)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, availabilityBody{Availability: ToDTO(t)})
}
