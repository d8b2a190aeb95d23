package materials

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom-app/stockroom/internal/platform/db"
	"github.com/stockroom-app/stockroom/internal/shared"
)

// ListFilters narrows material listings. Search matches the normalised name.
type ListFilters struct {
	Search  string
	Category string
	SortBy  string
	SortDir string
	Page    int
	Limit   int
}

// Repository defines persistence operations for materials.
type Repository interface {
	List(ctx context.Context, ownerID int64, filters ListFilters) ([]Material, int, error)
	Get(ctx context.Context, ownerID, id int64) (Material, error)
	Create(ctx context.Context, material Material) (Material, error)
	Patch(ctx context.Context, ownerID, id int64, material Material) error
	Supersede(ctx context.Context, old Material, replacement Material) (Material, error)
	GetVersion(ctx context.Context, id int64) (Version, error)
	ListVersions(ctx context.Context, ownerID, materialID int64) ([]Version, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const materialColumns = `id, owner_id, root_id, name, category, default_unit, attributes, image_ref, state, ended_at, successor_id, current_version_id, created_at, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	var attrs []byte
	err := row.Scan(&m.ID, &m.OwnerID, &m.RootID, &m.Name, &m.Category, &m.DefaultUnit, &attrs, &m.ImageRef, &m.State, &m.EndedAt, &m.SuccessorID, &m.CurrentVersionID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Material{}, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &m.Attributes); err != nil {
			return Material{}, err
		}
	}
	return m, nil
}

func (r *repository) List(ctx context.Context, ownerID int64, filters ListFilters) ([]Material, int, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE owner_id = $1 AND state = 'active'`
	args := []interface{}{ownerID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		query += ` AND name_normalized LIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+NormalizeName(filters.Search)+"%")
	}
	if filters.Category != "" {
		argCount++
		query += ` AND category = $` + strconv.Itoa(argCount)
		args = append(args, filters.Category)
	}

	countQuery := `SELECT COUNT(*) FROM (` + query + `) c`
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dir := "ASC"
	if filters.SortDir == "desc" {
		dir = "DESC"
	}
	switch filters.SortBy {
	case "created_at":
		query += " ORDER BY created_at " + dir
	default:
		query += " ORDER BY name " + dir
	}

	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, ownerID, id int64) (Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1 AND owner_id = $2`, id, ownerID)
	m, err := scanMaterial(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, shared.ErrNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (r *repository) Create(ctx context.Context, material Material) (Material, error) {
	attrs, err := json.Marshal(material.Attributes)
	if err != nil {
		return Material{}, err
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO materials (owner_id, root_id, name, name_normalized, category, default_unit, attributes, image_ref, state, created_at, updated_at)
VALUES ($1, 0, $2, $3, $4, $5, $6, $7, 'active', NOW(), NOW()) RETURNING id, created_at, updated_at`,
			material.OwnerID, material.Name, NormalizeName(material.Name), material.Category, material.DefaultUnit, attrs, material.ImageRef).
			Scan(&material.ID, &material.CreatedAt, &material.UpdatedAt)
		if err != nil {
			return err
		}
		// A brand-new material starts its own lineage.
		material.RootID = material.ID
		_, err = tx.Exec(ctx, `UPDATE materials SET root_id = id WHERE id = $1`, material.ID)
		return err
	})
	if err != nil {
		return Material{}, err
	}
	material.State = StateActive
	return material, nil
}

func (r *repository) Patch(ctx context.Context, ownerID, id int64, material Material) error {
	attrs, err := json.Marshal(material.Attributes)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE materials SET name = $1, name_normalized = $2, category = $3, default_unit = $4, attributes = $5, image_ref = $6, updated_at = NOW()
WHERE id = $7 AND owner_id = $8 AND state = 'active'`,
		material.Name, NormalizeName(material.Name), material.Category, material.DefaultUnit, attrs, material.ImageRef, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Supersede closes out the old record and inserts the replacement as the new
// active record of the same lineage, in one transaction. This is what keeps
// the "at most one active record per lineage" invariant enforceable.
func (r *repository) Supersede(ctx context.Context, old Material, replacement Material) (Material, error) {
	attrs, err := json.Marshal(replacement.Attributes)
	if err != nil {
		return Material{}, err
	}
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO materials (owner_id, root_id, name, name_normalized, category, default_unit, attributes, image_ref, state, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'active', NOW(), NOW()) RETURNING id, created_at, updated_at`,
			replacement.OwnerID, old.RootID, replacement.Name, NormalizeName(replacement.Name), replacement.Category, replacement.DefaultUnit, attrs, replacement.ImageRef).
			Scan(&replacement.ID, &replacement.CreatedAt, &replacement.UpdatedAt)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE materials SET state = 'superseded', ended_at = NOW(), successor_id = $1, updated_at = NOW()
WHERE id = $2 AND owner_id = $3 AND state = 'active'`, replacement.ID, old.ID, old.OwnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Material{}, err
	}
	replacement.RootID = old.RootID
	replacement.State = StateActive
	return replacement, nil
}

func (r *repository) GetVersion(ctx context.Context, id int64) (Version, error) {
	var v Version
	err := r.pool.QueryRow(ctx, `SELECT id, material_id, version_no, name, category, created_at FROM material_versions WHERE id = $1`, id).
		Scan(&v.ID, &v.MaterialID, &v.VersionNo, &v.Name, &v.Category, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Version{}, shared.ErrNotFound
		}
		return Version{}, err
	}
	return v, nil
}

func (r *repository) ListVersions(ctx context.Context, ownerID, materialID int64) ([]Version, error) {
	rows, err := r.pool.Query(ctx, `SELECT v.id, v.material_id, v.version_no, v.name, v.category, v.created_at
FROM material_versions v
JOIN materials m ON m.id = v.material_id
WHERE v.material_id = $1 AND m.owner_id = $2
ORDER BY v.version_no ASC`, materialID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.MaterialID, &v.VersionNo, &v.Name, &v.Category, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
