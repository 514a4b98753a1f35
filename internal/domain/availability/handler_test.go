package availability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medicall/booking/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *MemoryRepo, uuid.UUID) {
	t.Helper()
	repo := NewMemoryRepo()
	doctorID := uuid.New()
	if err := repo.Seed(context.Background(), doctorID); err != nil {
		t.Fatal(err)
	}
	return NewHandler(NewService(repo)), repo, doctorID
}

const mondayBody = `{"availability":[
	{"weekday":"Monday","isAvailable":true,"openTime":"09:00","closeTime":"12:00"},
	{"weekday":"Tuesday","isAvailable":false},
	{"weekday":"Wednesday","isAvailable":false},
	{"weekday":"Thursday","isAvailable":false},
	{"weekday":"Friday","isAvailable":false},
	{"weekday":"Saturday","isAvailable":false},
	{"weekday":"Sunday","isAvailable":false}
]}`

func putRequest(e *echo.Echo, doctorID, body string, caller *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if caller != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("doctorId")
	c.SetParamValues(doctorID)
	return c, rec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_GetAvailability(t *testing.T) {
	h, _, doctorID := newTestHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("doctorId")
	c.SetParamValues(doctorID.String())

	if err := h.GetAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Availability []EntryDTO `json:"availability"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Availability) != 7 {
		t.Errorf("expected 7 entries, got %d", len(body.Availability))
	}
}

func TestHandler_GetAvailability_UnknownDoctor(t *testing.T) {
	h, _, _ := newTestHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("doctorId")
	c.SetParamValues(uuid.New().String())

	if code := statusOf(t, h.GetAvailability(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_UpdateAvailability(t *testing.T) {
	h, repo, doctorID := newTestHandler(t)
	e := echo.New()
	caller := auth.Principal{ID: doctorID, Role: auth.RoleDoctor}
	c, rec := putRequest(e, doctorID.String(), mondayBody, &caller)

	if err := h.UpdateAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"openTime":"09:00"`) {
		t.Errorf("expected Monday window in response, got %s", rec.Body.String())
	}

	tpl, _ := repo.Get(context.Background(), doctorID)
	if _, _, ok := tpl.Window(1); !ok {
		t.Error("expected Monday to be stored as available")
	}
}

func TestHandler_UpdateAvailability_OtherDoctor(t *testing.T) {
	h, _, doctorID := newTestHandler(t)
	e := echo.New()
	caller := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	c, _ := putRequest(e, doctorID.String(), mondayBody, &caller)

	if code := statusOf(t, h.UpdateAvailability(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestHandler_UpdateAvailability_Invalid(t *testing.T) {
	h, _, doctorID := newTestHandler(t)
	e := echo.New()
	caller := auth.Principal{ID: doctorID, Role: auth.RoleDoctor}

	bodies := map[string]string{
		"six days":    `{"availability":[{"weekday":"Monday","isAvailable":false}]}`,
		"bad time":    strings.Replace(mondayBody, `"09:00"`, `"9am"`, 1),
		"unknown day": strings.Replace(mondayBody, `"Sunday"`, `"Someday"`, 1),
		"inverted":    strings.Replace(mondayBody, `"12:00"`, `"08:00"`, 1),
		"not json":    `{`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c, _ := putRequest(e, doctorID.String(), body, &caller)
			if code := statusOf(t, h.UpdateAvailability(c)); code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
		})
	}
}

func TestService_UpdateTemplate_UnknownDoctor(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	id := uuid.New()
	entries := weekDTO(nil)
	_, err := svc.UpdateTemplate(context.Background(), auth.Principal{ID: id, Role: auth.RoleDoctor}, id, entries)
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestService_UpdateTemplate_PatientForbidden(t *testing.T) {
	repo := NewMemoryRepo()
	id := uuid.New()
	_ = repo.Seed(context.Background(), id)
	svc := NewService(repo)
	_, err := svc.UpdateTemplate(context.Background(), auth.Principal{ID: id, Role: auth.RolePatient}, id, weekDTO(nil))
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}
