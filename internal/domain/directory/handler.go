package directory

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medicall/booking/internal/platform/auth"
	"github.com/medicall/booking/pkg/apperr"
	"github.com/medicall/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the directory endpoints. credentialLimit wraps the
// routes that accept a secret (OTP and password login).
func (h *Handler) RegisterRoutes(api *echo.Group, credentialLimit ...echo.MiddlewareFunc) {
	users := api.Group("/users")
	users.POST("/register", h.RegisterUser)
	users.POST("/send-otp", h.SendOTP, credentialLimit...)
	users.POST("/verify-otp", h.VerifyOTP, credentialLimit...)
	users.GET("/:userId", h.GetUser, auth.RequireAuth())

	doctors := api.Group("/doctors")
	doctors.POST("/register", h.RegisterDoctor)
	doctors.POST("/login", h.LoginDoctor, credentialLimit...)
	doctors.GET("", h.ListDoctors)
	doctors.GET("/:doctorId", h.GetDoctor)
}

func (h *Handler) RegisterUser(c echo.Context) error {
	var in RegisterUserInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.RegisterUser(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "user registered",
		"user":    u,
	})
}

func (h *Handler) SendOTP(c echo.Context) error {
	var in struct {
		Mobile string `json:"mobile"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.SendOTP(c.Request().Context(), in.Mobile); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "otp sent"})
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var in struct {
		Mobile string `json:"mobile"`
		OTP    string `json:"otp"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token, u, err := h.svc.VerifyOTP(c.Request().Context(), in.Mobile, in.OTP)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "login successful",
		"token":   token,
		"user":    u,
	})
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	u, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"user": u})
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var in RegisterDoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.RegisterDoctor(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "doctor registered",
		"doctor":  d,
	})
}

func (h *Handler) LoginDoctor(c echo.Context) error {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token, d, err := h.svc.LoginDoctor(c.Request().Context(), in.Username, in.Password)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "login successful",
		"token":   token,
		"doctor":  d,
	})
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	out := make([]DoctorSummary, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, d.Summary())
	}
	c.Response().Header().Set("X-Total-Count", strconv.Itoa(total))
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"doctor": d})
}
