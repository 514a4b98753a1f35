package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger. Every check-and-write runs under one
// mutex.
type MemoryLedger struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]*Appointment
	now   func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{appts: make(map[uuid.UUID]*Appointment), now: time.Now}
}

func cloneAppt(a *Appointment) *Appointment {
	c := *a
	return &c
}

func (l *MemoryLedger) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppt(a), nil
}

func (l *MemoryLedger) Find(_ context.Context, doctorID uuid.UUID, status Status, from, to time.Time) ([]*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Appointment
	for _, a := range l.appts {
		if a.DoctorID == doctorID && a.Status == status && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, cloneAppt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func matches(a *Appointment, q Query) bool {
	switch {
	case q.PatientID != uuid.Nil && a.PatientID != q.PatientID:
		return false
	case q.DoctorID != uuid.Nil && a.DoctorID != q.DoctorID:
		return false
	case q.Status != "" && a.Status != q.Status:
		return false
	case !q.From.IsZero() && a.ScheduledAt.Before(q.From):
		return false
	case !q.To.IsZero() && !a.ScheduledAt.Before(q.To):
		return false
	}
	return true
}

func (l *MemoryLedger) List(_ context.Context, q Query) ([]*Appointment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*Appointment
	for _, a := range l.appts {
		if matches(a, q) {
			out = append(out, cloneAppt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if q.Limit > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		end := q.Offset + q.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[q.Offset:end]
	}
	return out, nil
}

func (l *MemoryLedger) Count(_ context.Context, q Query) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, a := range l.appts {
		if matches(a, q) {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) Insert(_ context.Context, a *Appointment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertLocked(a)
	return nil
}

func (l *MemoryLedger) insertLocked(a *Appointment) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	now := l.now()
	a.CreatedAt, a.UpdatedAt = now, now
	l.appts[a.ID] = cloneAppt(a)
}

func (l *MemoryLedger) conflictsLocked(doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) bool {
	from, to := ConflictWindow(start, end)
	for _, a := range l.appts {
		if a.ID != excludeID && a.DoctorID == doctorID && a.Status == StatusScheduled && a.StartsIn(from, to) {
			return true
		}
	}
	return false
}

func (l *MemoryLedger) Reserve(_ context.Context, a *Appointment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conflictsLocked(a.DoctorID, a.ScheduledAt, a.EndsAt, uuid.Nil) {
		return ErrConflict
	}
	a.Status = StatusScheduled
	l.insertLocked(a)
	return nil
}

func (l *MemoryLedger) Move(_ context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusScheduled {
		return nil, ErrNotScheduled.WithDetail("appointment is %s", a.Status)
	}
	if l.conflictsLocked(a.DoctorID, start, end, id) {
		return nil, ErrConflict
	}
	a.ScheduledAt, a.EndsAt, a.UpdatedAt = start, end, l.now()
	return cloneAppt(a), nil
}

func (l *MemoryLedger) Update(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrNotScheduled.WithDetail("appointment is already %s", a.Status)
	}
	a.Status, a.UpdatedAt = to, l.now()
	return cloneAppt(a), nil
}

func (l *MemoryLedger) CompleteEndedBefore(_ context.Context, t time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, a := range l.appts {
		if a.Status == StatusScheduled && a.EndsAt.Before(t) {
			a.Status, a.UpdatedAt = StatusCompleted, l.now()
			n++
		}
	}
	return n, nil
}
