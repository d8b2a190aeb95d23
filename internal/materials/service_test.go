package materials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockroom-app/stockroom/internal/shared"
)

type memoryRepo struct {
	nextID     int64
	records    map[int64]Material
	patched    []int64
	superseded []int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: map[int64]Material{}}
}

func (m *memoryRepo) List(_ context.Context, ownerID int64, _ ListFilters) ([]Material, int, error) {
	var out []Material
	for _, rec := range m.records {
		if rec.OwnerID == ownerID && rec.State == StateActive {
			out = append(out, rec)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, ownerID, id int64) (Material, error) {
	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID {
		return Material{}, shared.ErrNotFound
	}
	return rec, nil
}

func (m *memoryRepo) Create(_ context.Context, material Material) (Material, error) {
	m.nextID++
	material.ID = m.nextID
	material.RootID = m.nextID
	material.State = StateActive
	m.records[material.ID] = material
	return material, nil
}

func (m *memoryRepo) Patch(_ context.Context, ownerID, id int64, material Material) error {
	rec, ok := m.records[id]
	if !ok || rec.OwnerID != ownerID || rec.State != StateActive {
		return shared.ErrNotFound
	}
	rec.Name = material.Name
	rec.Category = material.Category
	rec.DefaultUnit = material.DefaultUnit
	rec.Attributes = material.Attributes
	rec.ImageRef = material.ImageRef
	m.records[id] = rec
	m.patched = append(m.patched, id)
	return nil
}

func (m *memoryRepo) Supersede(_ context.Context, old Material, replacement Material) (Material, error) {
	m.nextID++
	replacement.ID = m.nextID
	replacement.RootID = old.RootID
	replacement.State = StateActive
	m.records[replacement.ID] = replacement

	now := time.Now()
	old.State = StateSuperseded
	old.EndedAt = &now
	old.SuccessorID = &replacement.ID
	m.records[old.ID] = old
	m.superseded = append(m.superseded, old.ID)
	return replacement, nil
}

func (m *memoryRepo) GetVersion(_ context.Context, _ int64) (Version, error) {
	return Version{}, shared.ErrNotFound
}

func (m *memoryRepo) ListVersions(_ context.Context, _, _ int64) ([]Version, error) {
	return nil, nil
}

func seedMaterial(repo *memoryRepo, ownerID int64, name string, createdAt time.Time) Material {
	rec, _ := repo.Create(context.Background(), Material{OwnerID: ownerID, Name: name, Category: "raw"})
	rec.CreatedAt = createdAt
	repo.records[rec.ID] = rec
	return rec
}

func TestUpdateWithinGracePatchesInPlace(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, 10*time.Minute).WithClock(func() time.Time { return now })
	rec := seedMaterial(repo, 1, "Steel Rod", now.Add(-5*time.Minute))

	updated, err := svc.Update(context.Background(), 1, rec.ID, Material{OwnerID: 1, Name: "Steel Rod 8mm", Category: "raw"})
	require.NoError(t, err)
	require.Equal(t, rec.ID, updated.ID)
	require.Equal(t, "Steel Rod 8mm", updated.Name)
	require.Len(t, repo.patched, 1)
	require.Empty(t, repo.superseded)
}

func TestUpdateAfterGraceSupersedes(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, 10*time.Minute).WithClock(func() time.Time { return now })
	rec := seedMaterial(repo, 1, "Steel Rod", now.Add(-2*time.Hour))

	updated, err := svc.Update(context.Background(), 1, rec.ID, Material{OwnerID: 1, Name: "Steel Rod 8mm", Category: "raw"})
	require.NoError(t, err)
	require.NotEqual(t, rec.ID, updated.ID)
	require.Equal(t, rec.RootID, updated.RootID)
	require.Equal(t, StateActive, updated.State)

	old := repo.records[rec.ID]
	require.Equal(t, StateSuperseded, old.State)
	require.NotNil(t, old.EndedAt)
	require.Equal(t, updated.ID, *old.SuccessorID)
}

func TestUpdateNonDescriptiveChangeAlwaysPatches(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, 10*time.Minute).WithClock(func() time.Time { return now })
	rec := seedMaterial(repo, 1, "Steel Rod", now.Add(-48*time.Hour))

	// Same name and category, only the unit changes.
	updated, err := svc.Update(context.Background(), 1, rec.ID, Material{OwnerID: 1, Name: "Steel Rod", Category: "raw", DefaultUnit: "kg"})
	require.NoError(t, err)
	require.Equal(t, rec.ID, updated.ID)
	require.Equal(t, "kg", updated.DefaultUnit)
	require.Empty(t, repo.superseded)
}

func TestUpdateSupersededRecordRejected(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, 10*time.Minute).WithClock(func() time.Time { return now })
	rec := seedMaterial(repo, 1, "Steel Rod", now.Add(-2*time.Hour))

	_, err := svc.Update(context.Background(), 1, rec.ID, Material{OwnerID: 1, Name: "Renamed", Category: "raw"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), 1, rec.ID, Material{OwnerID: 1, Name: "Renamed Again", Category: "raw"})
	require.Error(t, err)
}

func TestValidateAttributes(t *testing.T) {
	num := 4.5
	cases := []struct {
		name  string
		attrs []Attribute
		ok    bool
	}{
		{"text attribute", []Attribute{{Key: "color", Kind: AttributeKindText, TextValue: "red"}}, true},
		{"number attribute", []Attribute{{Key: "weight", Kind: AttributeKindNumber, NumberValue: &num}}, true},
		{"missing key", []Attribute{{Kind: AttributeKindText, TextValue: "red"}}, false},
		{"duplicate key", []Attribute{
			{Key: "color", Kind: AttributeKindText, TextValue: "red"},
			{Key: "color", Kind: AttributeKindText, TextValue: "blue"},
		}, false},
		{"number without value", []Attribute{{Key: "weight", Kind: AttributeKindNumber}}, false},
		{"text with number value", []Attribute{{Key: "color", Kind: AttributeKindText, NumberValue: &num}}, false},
		{"unknown kind", []Attribute{{Key: "color", Kind: "bool"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAttributes(tc.attrs)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidAttribute)
			}
		})
	}
}
