package availability

import (
	"context"

	"github.com/google/uuid"

	"github.com/medicall/booking/internal/platform/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetTemplate returns the doctor's weekly template.
func (s *Service) GetTemplate(ctx context.Context, doctorID uuid.UUID) (Template, error) {
	return s.repo.Get(ctx, doctorID)
}

// UpdateTemplate replaces the doctor's template. Only the doctor may do so,
// and the entries must cover each weekday exactly once.
func (s *Service) UpdateTemplate(ctx context.Context, caller auth.Principal, doctorID uuid.UUID, entries []EntryDTO) (Template, error) {
	if !caller.IsDoctor() || caller.ID != doctorID {
		return nil, ErrForbidden
	}
	t, err := FromDTO(entries)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Replace(ctx, doctorID, t); err != nil {
		return nil, err
	}
	return t, nil
}
