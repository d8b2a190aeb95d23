package materials

import (
	"context"
	"errors"
	"time"
)

// Clock abstracts time for grace-window tests.
type Clock func() time.Time

// Service coordinates material lifecycle operations.
type Service struct {
	repo        Repository
	graceWindow time.Duration
	now         Clock
}

// NewService builds a Service. graceWindow controls how long after creation
// an edit patches the record in place instead of superseding it.
func NewService(repo Repository, graceWindow time.Duration) *Service {
	return &Service{repo: repo, graceWindow: graceWindow, now: time.Now}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(clock Clock) *Service {
	s.now = clock
	return s
}

func (s *Service) List(ctx context.Context, ownerID int64, filters ListFilters) ([]Material, int, error) {
	return s.repo.List(ctx, ownerID, filters)
}

func (s *Service) Get(ctx context.Context, ownerID, id int64) (Material, error) {
	if id <= 0 {
		return Material{}, errors.New("invalid material ID")
	}
	return s.repo.Get(ctx, ownerID, id)
}

func (s *Service) Create(ctx context.Context, material Material) (Material, error) {
	if err := s.validate(material); err != nil {
		return Material{}, err
	}
	return s.repo.Create(ctx, material)
}

// Update applies an edit. Inside the grace window the record is patched in
// place; afterwards the old record is closed out and a successor inserted so
// existing transactions keep pointing at the snapshot they were recorded
// against.
func (s *Service) Update(ctx context.Context, ownerID, id int64, material Material) (Material, error) {
	if id <= 0 {
		return Material{}, errors.New("invalid material ID")
	}
	if err := s.validate(material); err != nil {
		return Material{}, err
	}
	current, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return Material{}, err
	}
	if current.State != StateActive {
		return Material{}, errors.New("materials: cannot edit a superseded record")
	}

	descriptiveChange := material.Name != current.Name || material.Category != current.Category
	withinGrace := s.now().Sub(current.CreatedAt) <= s.graceWindow

	if !descriptiveChange || withinGrace {
		if err := s.repo.Patch(ctx, ownerID, id, material); err != nil {
			return Material{}, err
		}
		current.Name = material.Name
		current.Category = material.Category
		current.DefaultUnit = material.DefaultUnit
		current.Attributes = material.Attributes
		current.ImageRef = material.ImageRef
		return current, nil
	}

	material.OwnerID = ownerID
	return s.repo.Supersede(ctx, current, material)
}

func (s *Service) ListVersions(ctx context.Context, ownerID, materialID int64) ([]Version, error) {
	if materialID <= 0 {
		return nil, errors.New("invalid material ID")
	}
	return s.repo.ListVersions(ctx, ownerID, materialID)
}
