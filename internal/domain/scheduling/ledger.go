package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Query filters appointment listings. Zero values leave a field
// unconstrained. From/To bound ScheduledAt as [From, To).
type Query struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    Status
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Ledger is the appointment store. Reserve and Move are the only writes that
// may place a scheduled appointment on a doctor's calendar, and each checks
// for conflicts and writes atomically.
type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Find returns the doctor's appointments with status whose ScheduledAt is
	// in [from, to), earliest first.
	Find(ctx context.Context, doctorID uuid.UUID, status Status, from, to time.Time) ([]*Appointment, error)
	// List returns matching appointments, latest ScheduledAt first.
	List(ctx context.Context, q Query) ([]*Appointment, error)
	Count(ctx context.Context, q Query) (int, error)

	// Insert stores a without a conflict check.
	Insert(ctx context.Context, a *Appointment) error
	// Reserve stores a unless a scheduled appointment of the same doctor
	// starts inside ConflictWindow(a.ScheduledAt, a.EndsAt), in which case it
	// returns ErrConflict.
	Reserve(ctx context.Context, a *Appointment) error
	// Move reschedules a scheduled appointment to [start, end), ignoring the
	// appointment itself when checking conflicts.
	Move(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error)
	// Update transitions id from one status to another. It returns
	// ErrNotScheduled when the current status is not from.
	Update(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// CompleteEndedBefore marks scheduled appointments ending before t as
	// completed and returns how many changed.
	CompleteEndedBefore(ctx context.Context, t time.Time) (int64, error)
}
