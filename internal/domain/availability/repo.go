package availability

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type Repository interface {
	// Get returns the doctor's template, or ErrDoctorNotFound when the doctor
	// has none.
	Get(ctx context.Context, doctorID uuid.UUID) (Template, error)
	// Replace overwrites all seven entries in one statement.
	Replace(ctx context.Context, doctorID uuid.UUID, t Template) error
	// Seed writes the all-unavailable template for a new doctor.
	Seed(ctx context.Context, doctorID uuid.UUID) error
}

// MemoryRepo is an in-process Repository.
type MemoryRepo struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]Template
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{templates: make(map[uuid.UUID]Template)}
}

func (r *MemoryRepo) Get(_ context.Context, doctorID uuid.UUID) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return clone(t), nil
}

func (r *MemoryRepo) Replace(_ context.Context, doctorID uuid.UUID, t Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[doctorID]; !ok {
		return ErrDoctorNotFound
	}
	r.templates[doctorID] = clone(t)
	return nil
}

func (r *MemoryRepo) Seed(_ context.Context, doctorID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[doctorID]; !ok {
		r.templates[doctorID] = UnavailableTemplate()
	}
	return nil
}

func clone(t Template) Template {
	out := make(Template, len(t))
	for d, e := range t {
		if e.OpenTime != nil {
			v := *e.OpenTime
			e.OpenTime = &v
		}
		if e.CloseTime != nil {
			v := *e.CloseTime
			e.CloseTime = &v
		}
		out[d] = e
	}
	return out
}
