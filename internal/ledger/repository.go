package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom-app/stockroom/internal/materials"
	"github.com/stockroom-app/stockroom/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service.
// Every method runs on the same database transaction, so mid-write reads
// observe a consistent snapshot.
type TxRepository interface {
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertDetail(ctx context.Context, detail Detail) (int64, error)
	WarehouseExists(ctx context.Context, ownerID, warehouseID int64) (bool, error)
	GetMaterial(ctx context.Context, ownerID, materialID int64) (materials.Material, error)
	GetVersion(ctx context.Context, versionID int64) (materials.Version, error)
	NextVersionNo(ctx context.Context, rootID int64) (int, error)
	InsertVersion(ctx context.Context, version materials.Version) (int64, error)
	SetCurrentVersion(ctx context.Context, materialID, versionID int64) error
	GetStockForUpdate(ctx context.Context, ownerID, warehouseID, materialID int64) (StockLevel, error)
	UpsertStock(ctx context.Context, ownerID int64, stock StockLevel) error
	InsertOutboxEvent(ctx context.Context, transactionID int64, payload []byte) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ListTransactions returns the caller's transactions with their line items.
func (r *Repository) ListTransactions(ctx context.Context, ownerID int64, filter ListFilters) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, owner_id, from_warehouse_id, to_warehouse_id, action_type, description, posted_at, created_at
FROM transactions
WHERE owner_id = $1
  AND ($2::bigint = 0 OR from_warehouse_id = $2 OR to_warehouse_id = $2)
  AND ($3::timestamptz IS NULL OR posted_at >= $3)
  AND ($4::timestamptz IS NULL OR posted_at <= $4)
ORDER BY posted_at DESC, id DESC
LIMIT $5`, ownerID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Transaction
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.FromWarehouseID, &t.ToWarehouseID, &t.Action, &t.Description, &t.PostedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		index[t.ID] = len(list)
		ids = append(ids, t.ID)
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return list, nil
	}

	detailRows, err := r.pool.Query(ctx, `SELECT id, transaction_id, material_id, material_version_id, quantity
FROM transaction_details
WHERE transaction_id = ANY($1)
  AND ($2::bigint = 0 OR material_id = $2)
ORDER BY id ASC`, ids, filter.MaterialID)
	if err != nil {
		return nil, err
	}
	defer detailRows.Close()
	for detailRows.Next() {
		var d Detail
		if err := detailRows.Scan(&d.ID, &d.TransactionID, &d.MaterialID, &d.MaterialVersionID, &d.Quantity); err != nil {
			return nil, err
		}
		if i, ok := index[d.TransactionID]; ok {
			list[i].Details = append(list[i].Details, d)
		}
	}
	return list, detailRows.Err()
}

// ListStock returns current quantities scoped to the owning user.
func (r *Repository) ListStock(ctx context.Context, ownerID int64, warehouseID, materialID int64) ([]StockLevel, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, material_id, quantity, updated_at
FROM inventories
WHERE owner_id = $1
  AND ($2::bigint = 0 OR warehouse_id = $2)
  AND ($3::bigint = 0 OR material_id = $3)
ORDER BY warehouse_id ASC, material_id ASC`, ownerID, warehouseID, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := []StockLevel{}
	for rows.Next() {
		var s StockLevel
		if err := rows.Scan(&s.WarehouseID, &s.MaterialID, &s.Quantity, &s.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, s)
	}
	return levels, rows.Err()
}

// GetSummary loads the denormalised view of one transaction for indexing.
func (r *Repository) GetSummary(ctx context.Context, ownerID, transactionID int64) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT t.id, t.action_type, t.description, t.posted_at,
       COALESCE(src.name, ''), COALESCE(dst.name, '')
FROM transactions t
LEFT JOIN warehouses src ON src.id = t.from_warehouse_id
LEFT JOIN warehouses dst ON dst.id = t.to_warehouse_id
WHERE t.id = $1 AND t.owner_id = $2`, transactionID, ownerID).
		Scan(&s.TransactionID, &s.Action, &s.Description, &s.PostedAt, &s.FromWarehouse, &s.ToWarehouse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, shared.ErrNotFound
		}
		return Summary{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT v.name, d.quantity
FROM transaction_details d
JOIN material_versions v ON v.id = d.material_version_id
WHERE d.transaction_id = $1
ORDER BY d.id ASC`, transactionID)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item SummaryItem
		if err := rows.Scan(&item.MaterialName, &item.Quantity); err != nil {
			return Summary{}, err
		}
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}

// SaveEmbedding stores the semantic index vector for a transaction.
func (r *Repository) SaveEmbedding(ctx context.Context, transactionID int64, summary string, vector []float64) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO transaction_search (transaction_id, summary, embedding, indexed_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (transaction_id) DO UPDATE SET summary = EXCLUDED.summary, embedding = EXCLUDED.embedding, indexed_at = NOW()`,
		transactionID, summary, data)
	return err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transactions (owner_id, from_warehouse_id, to_warehouse_id, action_type, description, posted_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id`,
		t.OwnerID, t.FromWarehouseID, t.ToWarehouseID, string(t.Action), t.Description, t.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertDetail(ctx context.Context, d Detail) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transaction_details (transaction_id, material_id, material_version_id, quantity)
VALUES ($1, $2, $3, $4) RETURNING id`,
		d.TransactionID, d.MaterialID, d.MaterialVersionID, d.Quantity).Scan(&id)
	return id, err
}

func (r *txRepository) WarehouseExists(ctx context.Context, ownerID, warehouseID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id = $1 AND owner_id = $2)`, warehouseID, ownerID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetMaterial(ctx context.Context, ownerID, materialID int64) (materials.Material, error) {
	var m materials.Material
	err := r.tx.QueryRow(ctx, `SELECT id, owner_id, root_id, name, category, current_version_id
FROM materials WHERE id = $1 AND owner_id = $2`, materialID, ownerID).
		Scan(&m.ID, &m.OwnerID, &m.RootID, &m.Name, &m.Category, &m.CurrentVersionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return materials.Material{}, shared.ErrNotFound
		}
		return materials.Material{}, err
	}
	return m, nil
}

func (r *txRepository) GetVersion(ctx context.Context, versionID int64) (materials.Version, error) {
	var v materials.Version
	err := r.tx.QueryRow(ctx, `SELECT id, material_id, version_no, name, category, created_at
FROM material_versions WHERE id = $1`, versionID).
		Scan(&v.ID, &v.MaterialID, &v.VersionNo, &v.Name, &v.Category, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return materials.Version{}, shared.ErrNotFound
		}
		return materials.Version{}, err
	}
	return v, nil
}

// NextVersionNo counts across the whole lineage so renamed successors keep
// the monotonic sequence started by their root material.
func (r *txRepository) NextVersionNo(ctx context.Context, rootID int64) (int, error) {
	var next int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(v.version_no), 0) + 1
FROM material_versions v
JOIN materials m ON m.id = v.material_id
WHERE m.root_id = $1`, rootID).Scan(&next)
	return next, err
}

func (r *txRepository) InsertVersion(ctx context.Context, v materials.Version) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO material_versions (material_id, version_no, name, category, created_at)
VALUES ($1, $2, $3, $4, NOW()) RETURNING id`,
		v.MaterialID, v.VersionNo, v.Name, v.Category).Scan(&id)
	return id, err
}

func (r *txRepository) SetCurrentVersion(ctx context.Context, materialID, versionID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE materials SET current_version_id = $1, updated_at = NOW() WHERE id = $2`, versionID, materialID)
	return err
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, ownerID, warehouseID, materialID int64) (StockLevel, error) {
	var s StockLevel
	err := r.tx.QueryRow(ctx, `SELECT warehouse_id, material_id, quantity, updated_at
FROM inventories WHERE owner_id = $1 AND warehouse_id = $2 AND material_id = $3 FOR UPDATE`,
		ownerID, warehouseID, materialID).
		Scan(&s.WarehouseID, &s.MaterialID, &s.Quantity, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{WarehouseID: warehouseID, MaterialID: materialID}, ErrStockNotFound
		}
		return StockLevel{}, err
	}
	return s, nil
}

func (r *txRepository) UpsertStock(ctx context.Context, ownerID int64, stock StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventories (owner_id, warehouse_id, material_id, quantity, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (owner_id, warehouse_id, material_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		ownerID, stock.WarehouseID, stock.MaterialID, stock.Quantity)
	return err
}

func (r *txRepository) InsertOutboxEvent(ctx context.Context, transactionID int64, payload []byte) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transaction_outbox (transaction_id, payload, status, attempts, created_at)
VALUES ($1, $2, 'pending', 0, NOW())`, transactionID, payload)
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
