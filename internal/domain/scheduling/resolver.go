package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medicall/booking/internal/domain/availability"
	"github.com/medicall/booking/internal/domain/directory"
)

// Directory looks up the parties to an appointment.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

// TemplateSource returns a doctor's weekly availability.
type TemplateSource interface {
	GetTemplate(ctx context.Context, doctorID uuid.UUID) (availability.Template, error)
}

// Resolver computes the open slots of a doctor on a day. It never writes.
type Resolver struct {
	dir       Directory
	templates TemplateSource
	ledger    Ledger
	loc       *time.Location
}

func NewResolver(dir Directory, templates TemplateSource, ledger Ledger, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{dir: dir, templates: templates, ledger: ledger, loc: loc}
}

// ResolveSlots lists the slot starts on date's calendar day, in the service
// location, that are inside the doctor's window and not already booked.
// A day the doctor does not work yields an empty list.
func (r *Resolver) ResolveSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.Slot, error) {
	doctor, err := r.dir.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	tpl, err := r.templates.GetTemplate(ctx, doctorID)
	if errors.Is(err, availability.ErrDoctorNotFound) {
		return []availability.Slot{}, nil
	}
	if err != nil {
		return nil, err
	}

	dayStart, dayEnd := DayBounds(date, r.loc)
	open, close, ok := tpl.Window(dayStart.Weekday())
	if !ok {
		return []availability.Slot{}, nil
	}

	booked, err := r.ledger.Find(ctx, doctorID, StatusScheduled, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	taken := make(map[availability.TimeOfDay]struct{}, len(booked))
	for _, a := range booked {
		taken[availability.TimeOfDayOf(a.ScheduledAt.In(r.loc))] = struct{}{}
	}

	seq := availability.NewSlotSequence(open, close, doctor.SlotDuration())
	out := make([]availability.Slot, 0, seq.Len())
	for it := seq.Iter(); ; {
		start, ok := it.Next()
		if !ok {
			break
		}
		if _, busy := taken[start]; busy {
			continue
		}
		out = append(out, availability.NewSlot(start))
	}
	return out, nil
}
