package scheduling

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medicall/booking/internal/platform/auth"
	"github.com/medicall/booking/pkg/apperr"
	"github.com/medicall/booking/pkg/pagination"
)

type Handler struct {
	svc      *Service
	resolver *Resolver
}

func NewHandler(svc *Service, resolver *Resolver) *Handler {
	return &Handler{svc: svc, resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	appts := api.Group("/appointments")
	appts.POST("", h.CreateAppointment, auth.RequireRole(auth.RolePatient))
	appts.GET("/user/:userId", h.ListUserAppointments, auth.RequireRole(auth.RolePatient))
	appts.GET("/doctor/:doctorId", h.ListDoctorAppointments, auth.RequireRole(auth.RoleDoctor))
	appts.GET("/:id", h.GetAppointment, auth.RequireAuth())
	appts.PUT("/:id/cancel", h.CancelAppointment, auth.RequireAuth())
	appts.PUT("/:id/reschedule", h.RescheduleAppointment, auth.RequireAuth())

	api.GET("/doctors/:doctorId/slots", h.GetSlots)
}

func caller(c echo.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return p
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Create(c.Request().Context(), caller(c), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":     "appointment created",
		"appointment": a,
	})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), caller(c), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"appointment": a})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.svc.Cancel(c.Request().Context(), caller(c), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "appointment cancelled"})
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in struct {
		ScheduledAt string `json:"scheduledAt"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Reschedule(c.Request().Context(), caller(c), id, in.ScheduledAt)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "appointment rescheduled",
		"appointment": a,
	})
}

func (h *Handler) ListUserAppointments(c echo.Context) error {
	return h.list(c, "userId", h.svc.ListForUser)
}

func (h *Handler) ListDoctorAppointments(c echo.Context) error {
	return h.list(c, "doctorId", h.svc.ListForDoctor)
}

type listFunc func(ctx context.Context, caller auth.Principal, q ListQuery) ([]*Appointment, int, error)

func (h *Handler) list(c echo.Context, param string, fn listFunc) error {
	id, err := pathID(c, param)
	if err != nil {
		return err
	}
	q := ListQuery{UserID: id, Status: Status(c.QueryParam("status"))}
	loc := h.svc.cfg.Location
	if s := c.QueryParam("startDate"); s != "" {
		if q.StartDate, err = ParseDate(s, loc); err != nil {
			return apperr.ToHTTP(err)
		}
	}
	if s := c.QueryParam("endDate"); s != "" {
		if q.EndDate, err = ParseDate(s, loc); err != nil {
			return apperr.ToHTTP(err)
		}
	}
	pg := pagination.FromContext(c)
	q.Page, q.Limit = pg.Page, pg.Limit

	items, total, err := fn(c.Request().Context(), caller(c), q)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"appointments": items,
		"total":        total,
	})
}

// GetSlots lists open slots for ?date=YYYY-MM-DD in the service location.
func (h *Handler) GetSlots(c echo.Context) error {
	doctorID, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	raw := c.QueryParam("date")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	date, err := ParseDate(raw, h.svc.cfg.Location)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	slots, err := h.resolver.ResolveSlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, slots)
}
