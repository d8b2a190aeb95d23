package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockroom-app/stockroom/internal/materials"
	"github.com/stockroom-app/stockroom/internal/shared"
)

type stockKey struct {
	ownerID     int64
	warehouseID int64
	materialID  int64
}

// memoryRepo is an in-memory RepositoryPort/TxRepository used by the service
// tests. WithTx snapshots all state up front and restores it when the callback
// fails, mirroring database rollback.
type memoryRepo struct {
	nextID       int64
	warehouses   map[int64]int64 // warehouse id -> owner id
	materials    map[int64]materials.Material
	versions     map[int64]materials.Version
	stock        map[stockKey]StockLevel
	transactions []Transaction
	details      []Detail
	outbox       [][]byte
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		warehouses: map[int64]int64{},
		materials:  map[int64]materials.Material{},
		versions:   map[int64]materials.Version{},
		stock:      map[stockKey]StockLevel{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) addWarehouse(ownerID int64) int64 {
	id := m.id()
	m.warehouses[id] = ownerID
	return id
}

func (m *memoryRepo) addMaterial(ownerID int64, name string) int64 {
	id := m.id()
	m.materials[id] = materials.Material{ID: id, OwnerID: ownerID, RootID: id, Name: name}
	return id
}

func (m *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	cp.nextID = m.nextID
	for k, v := range m.warehouses {
		cp.warehouses[k] = v
	}
	for k, v := range m.materials {
		cp.materials[k] = v
	}
	for k, v := range m.versions {
		cp.versions[k] = v
	}
	for k, v := range m.stock {
		cp.stock[k] = v
	}
	cp.transactions = append([]Transaction(nil), m.transactions...)
	cp.details = append([]Detail(nil), m.details...)
	cp.outbox = append([][]byte(nil), m.outbox...)
	return cp
}

func (m *memoryRepo) restore(snap *memoryRepo) {
	m.nextID = snap.nextID
	m.warehouses = snap.warehouses
	m.materials = snap.materials
	m.versions = snap.versions
	m.stock = snap.stock
	m.transactions = snap.transactions
	m.details = snap.details
	m.outbox = snap.outbox
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memoryRepo) ListTransactions(_ context.Context, ownerID int64, _ ListFilters) ([]Transaction, error) {
	var out []Transaction
	for _, t := range m.transactions {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListStock(_ context.Context, ownerID int64, warehouseID, materialID int64) ([]StockLevel, error) {
	var out []StockLevel
	for k, s := range m.stock {
		if k.ownerID != ownerID {
			continue
		}
		if warehouseID != 0 && k.warehouseID != warehouseID {
			continue
		}
		if materialID != 0 && k.materialID != materialID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryRepo) InsertTransaction(_ context.Context, t Transaction) (int64, error) {
	t.ID = m.id()
	m.transactions = append(m.transactions, t)
	return t.ID, nil
}

func (m *memoryRepo) InsertDetail(_ context.Context, d Detail) (int64, error) {
	d.ID = m.id()
	m.details = append(m.details, d)
	return d.ID, nil
}

func (m *memoryRepo) WarehouseExists(_ context.Context, ownerID, warehouseID int64) (bool, error) {
	owner, ok := m.warehouses[warehouseID]
	return ok && owner == ownerID, nil
}

func (m *memoryRepo) GetMaterial(_ context.Context, ownerID, materialID int64) (materials.Material, error) {
	mat, ok := m.materials[materialID]
	if !ok || mat.OwnerID != ownerID {
		return materials.Material{}, shared.ErrNotFound
	}
	return mat, nil
}

func (m *memoryRepo) GetVersion(_ context.Context, versionID int64) (materials.Version, error) {
	v, ok := m.versions[versionID]
	if !ok {
		return materials.Version{}, shared.ErrNotFound
	}
	return v, nil
}

func (m *memoryRepo) NextVersionNo(_ context.Context, rootID int64) (int, error) {
	max := 0
	for _, v := range m.versions {
		mat := m.materials[v.MaterialID]
		if mat.RootID == rootID && v.VersionNo > max {
			max = v.VersionNo
		}
	}
	return max + 1, nil
}

func (m *memoryRepo) InsertVersion(_ context.Context, v materials.Version) (int64, error) {
	v.ID = m.id()
	m.versions[v.ID] = v
	return v.ID, nil
}

func (m *memoryRepo) SetCurrentVersion(_ context.Context, materialID, versionID int64) error {
	mat := m.materials[materialID]
	mat.CurrentVersionID = &versionID
	m.materials[materialID] = mat
	return nil
}

func (m *memoryRepo) GetStockForUpdate(_ context.Context, ownerID, warehouseID, materialID int64) (StockLevel, error) {
	s, ok := m.stock[stockKey{ownerID, warehouseID, materialID}]
	if !ok {
		return StockLevel{WarehouseID: warehouseID, MaterialID: materialID}, ErrStockNotFound
	}
	return s, nil
}

func (m *memoryRepo) UpsertStock(_ context.Context, ownerID int64, s StockLevel) error {
	m.stock[stockKey{ownerID, s.WarehouseID, s.MaterialID}] = s
	return nil
}

func (m *memoryRepo) InsertOutboxEvent(_ context.Context, _ int64, payload []byte) error {
	m.outbox = append(m.outbox, payload)
	return nil
}

func (m *memoryRepo) quantity(ownerID, warehouseID, materialID int64) float64 {
	return m.stock[stockKey{ownerID, warehouseID, materialID}].Quantity
}

func ptr(v int64) *int64 { return &v }

func TestRecordAddedCreatesFirstVersion(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	wh := repo.addWarehouse(owner)
	mat := repo.addMaterial(owner, "steel rod")

	tx, err := svc.Record(context.Background(), RecordInput{
		Action:        ActionAdded,
		ToWarehouseID: ptr(wh),
		Lines:         []Line{{MaterialID: mat, Quantity: 10}},
		ActorID:       owner,
	})
	require.NoError(t, err)
	require.Len(t, tx.Details, 1)

	version := repo.versions[tx.Details[0].MaterialVersionID]
	require.Equal(t, 1, version.VersionNo)
	require.Equal(t, "steel rod", version.Name)
	require.NotNil(t, repo.materials[mat].CurrentVersionID)
	require.Equal(t, version.ID, *repo.materials[mat].CurrentVersionID)
	require.Equal(t, 10.0, repo.quantity(owner, wh, mat))
	require.Len(t, repo.outbox, 1)
}

func TestRecordReusesCurrentVersion(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	wh := repo.addWarehouse(owner)
	mat := repo.addMaterial(owner, "bolt")

	first, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: mat, Quantity: 5}}, ActorID: owner,
	})
	require.NoError(t, err)
	second, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: mat, Quantity: 3}}, ActorID: owner,
	})
	require.NoError(t, err)

	require.Equal(t, first.Details[0].MaterialVersionID, second.Details[0].MaterialVersionID)
	require.Len(t, repo.versions, 1)
	require.Equal(t, 8.0, repo.quantity(owner, wh, mat))
}

func TestRecordTransferMovesStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	src := repo.addWarehouse(owner)
	dst := repo.addWarehouse(owner)
	mat := repo.addMaterial(owner, "copper wire")

	_, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(src),
		Lines: []Line{{MaterialID: mat, Quantity: 10}}, ActorID: owner,
	})
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), RecordInput{
		Action: ActionTransfered, FromWarehouseID: ptr(src), ToWarehouseID: ptr(dst),
		Lines: []Line{{MaterialID: mat, Quantity: 4}}, ActorID: owner,
	})
	require.NoError(t, err)

	require.Equal(t, 6.0, repo.quantity(owner, src, mat))
	require.Equal(t, 4.0, repo.quantity(owner, dst, mat))
}

func TestRecordRemoveFromNeverStockedPair(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	wh := repo.addWarehouse(owner)
	mat := repo.addMaterial(owner, "gasket")

	_, err := svc.Record(context.Background(), RecordInput{
		Action: ActionRemoved, FromWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: mat, Quantity: 1}}, ActorID: owner,
	})
	require.ErrorIs(t, err, ErrNoSuchRecord)
	require.Empty(t, repo.transactions)
	require.Empty(t, repo.outbox)
}

func TestRecordInsufficientStockRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	wh := repo.addWarehouse(owner)
	mat := repo.addMaterial(owner, "valve")

	_, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: mat, Quantity: 5}}, ActorID: owner,
	})
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), RecordInput{
		Action: ActionRemoved, FromWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: mat, Quantity: 8}}, ActorID: owner,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 5.0, repo.quantity(owner, wh, mat))
	require.Len(t, repo.transactions, 1)
}

func TestRecordMultiLinePartialFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	wh := repo.addWarehouse(owner)
	stocked := repo.addMaterial(owner, "pipe")
	empty := repo.addMaterial(owner, "flange")

	_, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: stocked, Quantity: 9}}, ActorID: owner,
	})
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), RecordInput{
		Action: ActionRemoved, FromWarehouseID: ptr(wh),
		Lines: []Line{
			{MaterialID: stocked, Quantity: 2},
			{MaterialID: empty, Quantity: 1},
		},
		ActorID: owner,
	})
	require.ErrorIs(t, err, ErrNoSuchRecord)
	require.Equal(t, 9.0, repo.quantity(owner, wh, stocked))
	require.Len(t, repo.transactions, 1)
	require.Len(t, repo.details, 1)
}

func TestRecordExplicitVersionMismatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	wh := repo.addWarehouse(owner)
	matA := repo.addMaterial(owner, "screw")
	matB := repo.addMaterial(owner, "nut")

	_, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: matB, Quantity: 1}}, ActorID: owner,
	})
	require.NoError(t, err)
	versionOfB := *repo.materials[matB].CurrentVersionID

	_, err = svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(wh),
		Lines:  []Line{{MaterialID: matA, MaterialVersionID: ptr(versionOfB), Quantity: 1}},
		ActorID: owner,
	})
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestRecordUnknownMaterial(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	wh := repo.addWarehouse(owner)

	_, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(wh),
		Lines: []Line{{MaterialID: 999, Quantity: 1}}, ActorID: owner,
	})
	require.ErrorIs(t, err, ErrMaterialNotFound)
	require.Empty(t, repo.transactions)
}

func TestRecordRejectsForeignWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	owner := int64(1)
	foreignWh := repo.addWarehouse(2)
	mat := repo.addMaterial(owner, "cable")

	_, err := svc.Record(context.Background(), RecordInput{
		Action: ActionAdded, ToWarehouseID: ptr(foreignWh),
		Lines: []Line{{MaterialID: mat, Quantity: 1}}, ActorID: owner,
	})
	require.ErrorIs(t, err, ErrInvalidMovement)
}

func TestRecordUnauthenticated(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.Record(context.Background(), RecordInput{Action: ActionAdded})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestValidateMovementShapes(t *testing.T) {
	line := []Line{{MaterialID: 1, Quantity: 1}}
	cases := []struct {
		name  string
		input RecordInput
		ok    bool
	}{
		{"added with destination", RecordInput{Action: ActionAdded, ToWarehouseID: ptr(1), Lines: line}, true},
		{"added with source", RecordInput{Action: ActionAdded, FromWarehouseID: ptr(1), ToWarehouseID: ptr(2), Lines: line}, false},
		{"added missing destination", RecordInput{Action: ActionAdded, Lines: line}, false},
		{"removed with source", RecordInput{Action: ActionRemoved, FromWarehouseID: ptr(1), Lines: line}, true},
		{"removed with destination", RecordInput{Action: ActionRemoved, FromWarehouseID: ptr(1), ToWarehouseID: ptr(2), Lines: line}, false},
		{"transfer with both", RecordInput{Action: ActionTransfered, FromWarehouseID: ptr(1), ToWarehouseID: ptr(2), Lines: line}, true},
		{"transfer same warehouse", RecordInput{Action: ActionTransfered, FromWarehouseID: ptr(1), ToWarehouseID: ptr(1), Lines: line}, false},
		{"transfer missing destination", RecordInput{Action: ActionTransfered, FromWarehouseID: ptr(1), Lines: line}, false},
		{"unknown action", RecordInput{Action: "moved", ToWarehouseID: ptr(1), Lines: line}, false},
		{"no lines", RecordInput{Action: ActionAdded, ToWarehouseID: ptr(1)}, false},
		{"zero quantity", RecordInput{Action: ActionAdded, ToWarehouseID: ptr(1), Lines: []Line{{MaterialID: 1}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateMovement(tc.input)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidMovement)
			}
		})
	}
}
