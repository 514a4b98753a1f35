package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

var errSlotTaken = Conflict("slot already booked")

func TestWithDetail_MatchesSentinel(t *testing.T) {
	err := errSlotTaken.WithDetail("doctor busy at %s", "10:00")
	if !errors.Is(err, errSlotTaken) {
		t.Fatal("expected errors.Is to match the sentinel")
	}
	if err.Error() != "doctor busy at 10:00" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if KindOf(err) != KindConflict {
		t.Errorf("expected KindConflict, got %s", KindOf(err))
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("reserve: %w", errSlotTaken.Wrap(cause))
	if !errors.Is(err, errSlotTaken) {
		t.Error("expected sentinel match through fmt wrapping")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause match")
	}
}

func TestWithDetail_DoesNotMatchOtherSentinels(t *testing.T) {
	other := Conflict("slot already booked")
	if errors.Is(errSlotTaken.WithDetail("x"), other) {
		t.Error("expected distinct sentinels not to match")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Error("expected empty kind for nil")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("expected plain errors to be internal")
	}
	if !IsKind(NotFound("x"), KindNotFound) {
		t.Error("expected NotFound kind")
	}
}

func TestToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad %s", "input"), http.StatusBadRequest},
		{"window", New(KindAvailabilityWindow, "closed"), http.StatusBadRequest},
		{"conflict", errSlotTaken, http.StatusBadRequest},
		{"duplicate", Duplicate("taken"), http.StatusConflict},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"unauthorized", Unauthorized("who"), http.StatusUnauthorized},
		{"forbidden", Forbidden("no"), http.StatusForbidden},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := ToHTTP(tt.err)
			if he.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, he.Code)
			}
		})
	}
}

func TestToHTTP_HidesInternalMessage(t *testing.T) {
	he := ToHTTP(fmt.Errorf("query: %w", errors.New("password=secret")))
	if he.Message != "internal server error" {
		t.Errorf("expected generic message, got %v", he.Message)
	}
	if he.Internal == nil {
		t.Error("expected cause to be kept on Internal")
	}
}

func TestToHTTP_PassesThroughHTTPError(t *testing.T) {
	in := echo.NewHTTPError(http.StatusTeapot, "tea")
	if ToHTTP(in) != in {
		t.Error("expected the same *echo.HTTPError back")
	}
	if ToHTTP(nil) != nil {
		t.Error("expected nil for nil")
	}
}
