package availability

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/medicall/booking/pkg/apperr"
)

var (
	ErrInvalidTemplate = apperr.Validation("invalid availability")
	ErrInvalidTime     = apperr.Validation("invalid time of day")
	ErrDoctorNotFound  = apperr.NotFound("doctor not found")
	ErrForbidden       = apperr.Forbidden("only the doctor can change their availability")
)

const minutesPerDay = 24 * 60

// TimeOfDay is a minute-resolution wall clock time, stored as minutes after
// midnight. 24:00 is allowed so a window can close at midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, ErrInvalidTime.WithDetail("invalid time %q, expected HH:MM", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, ErrInvalidTime.WithDetail("invalid time %q, expected HH:MM", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// TimeOfDayOf returns the wall clock time of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Label renders t for display, e.g. "9:30 AM".
func (t TimeOfDay) Label() string {
	h, m := (int(t)/60)%24, int(t)%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, suffix)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidTime.WithDetail("time of day must be a string")
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Entry is one weekday of a doctor's template. OpenTime and CloseTime are
// set only when IsAvailable.
type Entry struct {
	Weekday     time.Weekday
	IsAvailable bool
	OpenTime    *TimeOfDay
	CloseTime   *TimeOfDay
}

func (e Entry) validate() error {
	if !e.IsAvailable {
		if e.OpenTime != nil || e.CloseTime != nil {
			return ErrInvalidTemplate.WithDetail("%s: times must be empty when unavailable", e.Weekday)
		}
		return nil
	}
	if e.OpenTime == nil || e.CloseTime == nil {
		return ErrInvalidTemplate.WithDetail("%s: openTime and closeTime are required when available", e.Weekday)
	}
	if *e.OpenTime < 0 || *e.CloseTime > minutesPerDay {
		return ErrInvalidTemplate.WithDetail("%s: times must be within the day", e.Weekday)
	}
	if *e.OpenTime >= *e.CloseTime {
		return ErrInvalidTemplate.WithDetail("%s: openTime must be before closeTime", e.Weekday)
	}
	return nil
}

// Template maps every weekday to its entry.
type Template map[time.Weekday]Entry

// UnavailableTemplate is the template a new doctor starts with.
func UnavailableTemplate() Template {
	t := make(Template, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		t[d] = Entry{Weekday: d}
	}
	return t
}

// Validate checks all seven weekdays are present and each entry is well formed.
func (t Template) Validate() error {
	for d := time.Sunday; d <= time.Saturday; d++ {
		e, ok := t[d]
		if !ok {
			return ErrInvalidTemplate.WithDetail("missing entry for %s", d)
		}
		if e.Weekday != d {
			return ErrInvalidTemplate.WithDetail("entry for %s is keyed under %s", e.Weekday, d)
		}
		if err := e.validate(); err != nil {
			return err
		}
	}
	if len(t) != 7 {
		return ErrInvalidTemplate.WithDetail("expected 7 entries, got %d", len(t))
	}
	return nil
}

// Window returns the open and close times for day. ok is false when the doctor
// does not work that day.
func (t Template) Window(day time.Weekday) (open, close TimeOfDay, ok bool) {
	e, found := t[day]
	if !found || !e.IsAvailable || e.OpenTime == nil || e.CloseTime == nil {
		return 0, 0, false
	}
	return *e.OpenTime, *e.CloseTime, true
}

// weekOrder lists weekdays Monday first, the order used on the wire.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// Entries returns the entries Monday through Sunday.
func (t Template) Entries() []Entry {
	out := make([]Entry, 0, len(t))
	for _, d := range weekOrder {
		if e, ok := t[d]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ParseWeekday accepts English weekday names, case-insensitively.
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(strings.TrimSpace(name), d.String()) {
			return d, nil
		}
	}
	return 0, ErrInvalidTemplate.WithDetail("unknown weekday %q", name)
}

// -- Wire format --

// EntryDTO is the JSON shape of one weekday.
type EntryDTO struct {
	Weekday     string     `json:"weekday"`
	IsAvailable bool       `json:"isAvailable"`
	OpenTime    *TimeOfDay `json:"openTime"`
	CloseTime   *TimeOfDay `json:"closeTime"`
}

// FromDTO builds a Template from exactly seven entries, one per weekday.
// Times sent for an unavailable day are dropped.
func FromDTO(entries []EntryDTO) (Template, error) {
	t := make(Template, 7)
	for _, dto := range entries {
		day, err := ParseWeekday(dto.Weekday)
		if err != nil {
			return nil, err
		}
		if _, dup := t[day]; dup {
			return nil, ErrInvalidTemplate.WithDetail("duplicate entry for %s", day)
		}
		e := Entry{Weekday: day, IsAvailable: dto.IsAvailable}
		if dto.IsAvailable {
			e.OpenTime, e.CloseTime = dto.OpenTime, dto.CloseTime
		}
		t[day] = e
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ToDTO renders t Monday through Sunday.
func ToDTO(t Template) []EntryDTO {
	out := make([]EntryDTO, 0, 7)
	for _, e := range t.Entries() {
		out = append(out, EntryDTO{
			Weekday:     e.Weekday.String(),
			IsAvailable: e.IsAvailable,
			OpenTime:    e.OpenTime,
			CloseTime:   e.CloseTime,
		})
	}
	return out
}
