package scheduling

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/medicall/booking/pkg/apperr"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

const MaxNotesLength = 1000

var (
	ErrInvalidAppointment  = apperr.Validation("invalid appointment")
	ErrNotScheduled        = apperr.Validation("appointment is not scheduled")
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	ErrForbidden           = apperr.Forbidden("not a party to this appointment")
	ErrOutsideAvailability = apperr.New(apperr.KindAvailabilityWindow, "doctor is not available at this time")
	ErrConflict            = apperr.Conflict("doctor is already booked for this time slot")
)

// Appointment is one booking of a doctor's slot by a patient. EndsAt is
// ScheduledAt plus the doctor's slot duration.
type Appointment struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patientId"`
	DoctorID    uuid.UUID `json:"doctorId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	EndsAt      time.Time `json:"endsAt"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsParty reports whether id is the patient or the doctor on a.
func (a *Appointment) IsParty(id uuid.UUID) bool {
	return id != uuid.Nil && (a.PatientID == id || a.DoctorID == id)
}

// ConflictWindow returns the range [from, to) of existing start times that
// block a booking of [start, end): the booking's own span and the slot of the
// same length before it.
func ConflictWindow(start, end time.Time) (from, to time.Time) {
	return start.Add(-end.Sub(start)), end
}

// StartsIn reports whether a starts within [from, to).
func (a *Appointment) StartsIn(from, to time.Time) bool {
	return !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to)
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

// ParseScheduledAt accepts RFC 3339, or a local timestamp without offset
// which is read in loc. The result is truncated to the minute.
func ParseScheduledAt(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidAppointment.WithDetail("scheduledAt is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Truncate(time.Minute), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Truncate(time.Minute), nil
		}
	}
	return time.Time{}, ErrInvalidAppointment.WithDetail("invalid scheduledAt %q, expected RFC 3339", s)
}

// ParseDate reads a YYYY-MM-DD calendar day as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, ErrInvalidAppointment.WithDetail("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DayBounds returns [midnight, next midnight) of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func validateNotes(notes string) error {
	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return ErrInvalidAppointment.WithDetail("notes must be at most %d characters", MaxNotesLength)
	}
	return nil
}
