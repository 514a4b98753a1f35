package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		method string
		path   string
		public bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodPost, "/api/v1/users/send-otp", true},
		{http.MethodPost, "/api/v1/doctors/login", true},
		{http.MethodGet, "/api/v1/doctors/:doctorId/slots", true},
		{http.MethodGet, "/api/v1/doctors/:doctorId/availability", true},
		{http.MethodPut, "/api/v1/doctors/:doctorId/availability", false},
		{http.MethodPost, "/api/v1/appointments", false},
		{http.MethodGet, "/api/v1/users/:userId", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(tt.method, "/", nil)
			c := e.NewContext(req, httptest.NewRecorder())
			c.SetPath(tt.path)

			if got := AuthSkipper(c); got != tt.public {
				t.Errorf("AuthSkipper = %v, want %v", got, tt.public)
			}
		})
	}
}
