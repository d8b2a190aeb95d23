package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stockroom-app/stockroom/internal/materials"
	"github.com/stockroom-app/stockroom/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListTransactions(ctx context.Context, ownerID int64, filter ListFilters) ([]Transaction, error)
	ListStock(ctx context.Context, ownerID int64, warehouseID, materialID int64) ([]StockLevel, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger writes and reads.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// outboxPayload is the event body written for the post-commit indexing job.
type outboxPayload struct {
	TransactionID int64 `json:"transaction_id"`
	OwnerID       int64 `json:"owner_id"`
}

// Record applies one stock movement: header, line items, version snapshots
// and stock adjustments are written in a single repeatable-read transaction,
// together with the outbox event that triggers semantic indexing. Either all
// of it commits or none of it does.
func (s *Service) Record(ctx context.Context, input RecordInput) (Transaction, error) {
	if input.ActorID <= 0 {
		return Transaction{}, ErrUnauthenticated
	}
	if err := validateMovement(input); err != nil {
		return Transaction{}, err
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "ledger"); err != nil {
			return Transaction{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	header := Transaction{
		OwnerID:         input.ActorID,
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		Action:          input.Action,
		Description:     input.Description,
		PostedAt:        now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := checkWarehouses(ctx, tx, input); err != nil {
			return err
		}

		txID, err := tx.InsertTransaction(ctx, header)
		if err != nil {
			return err
		}
		header.ID = txID

		for _, line := range input.Lines {
			material, err := tx.GetMaterial(ctx, input.ActorID, line.MaterialID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("%w: material %d", ErrMaterialNotFound, line.MaterialID)
				}
				return err
			}
			versionID, err := resolveVersion(ctx, tx, material, line.MaterialVersionID)
			if err != nil {
				return err
			}
			detail := Detail{
				TransactionID:     txID,
				MaterialID:        line.MaterialID,
				MaterialVersionID: versionID,
				Quantity:          line.Quantity,
			}
			detailID, err := tx.InsertDetail(ctx, detail)
			if err != nil {
				return err
			}
			detail.ID = detailID
			header.Details = append(header.Details, detail)

			for _, adj := range adjustments(input, line) {
				if err := adjustStock(ctx, tx, input.ActorID, adj.warehouseID, line.MaterialID, adj.delta); err != nil {
					return err
				}
			}
		}

		payload, err := json.Marshal(outboxPayload{TransactionID: txID, OwnerID: input.ActorID})
		if err != nil {
			return err
		}
		return tx.InsertOutboxEvent(ctx, txID, payload)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Transaction{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("ledger:%s", input.Action),
			Entity:   "transaction",
			EntityID: fmt.Sprintf("%d", header.ID),
			Meta: map[string]any{
				"action":      string(input.Action),
				"line_count":  len(input.Lines),
				"description": input.Description,
			},
		})
	}
	return header, nil
}

// ListTransactions lists the caller's ledger entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, ownerID int64, filter ListFilters) ([]Transaction, error) {
	if ownerID <= 0 {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListTransactions(ctx, ownerID, filter)
}

// ListStock lists current quantities, optionally narrowed to one warehouse
// or one material. Always scoped to the owning user.
func (s *Service) ListStock(ctx context.Context, ownerID, warehouseID, materialID int64) ([]StockLevel, error) {
	if ownerID <= 0 {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListStock(ctx, ownerID, warehouseID, materialID)
}

func validateMovement(input RecordInput) error {
	switch input.Action {
	case ActionAdded:
		if input.ToWarehouseID == nil || input.FromWarehouseID != nil {
			return fmt.Errorf("%w: added requires a destination warehouse only", ErrInvalidMovement)
		}
	case ActionRemoved:
		if input.FromWarehouseID == nil || input.ToWarehouseID != nil {
			return fmt.Errorf("%w: removed requires a source warehouse only", ErrInvalidMovement)
		}
	case ActionTransfered:
		if input.FromWarehouseID == nil || input.ToWarehouseID == nil {
			return fmt.Errorf("%w: transfer requires source and destination warehouses", ErrInvalidMovement)
		}
		if *input.FromWarehouseID == *input.ToWarehouseID {
			return fmt.Errorf("%w: source and destination warehouse must differ", ErrInvalidMovement)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidMovement, input.Action)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: at least one material line required", ErrInvalidMovement)
	}
	for _, line := range input.Lines {
		if line.MaterialID <= 0 {
			return fmt.Errorf("%w: material id required", ErrInvalidMovement)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrInvalidMovement)
		}
	}
	return nil
}

func checkWarehouses(ctx context.Context, tx TxRepository, input RecordInput) error {
	for _, id := range []*int64{input.FromWarehouseID, input.ToWarehouseID} {
		if id == nil {
			continue
		}
		ok, err := tx.WarehouseExists(ctx, input.ActorID, *id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown warehouse %d", ErrInvalidMovement, *id)
		}
	}
	return nil
}

// resolveVersion picks the version snapshot a detail row should pin.
// Explicit ids are validated against the material's lineage; otherwise the
// material's current snapshot is reused, and the very first reference to a
// material lazily materialises snapshot number one.
func resolveVersion(ctx context.Context, tx TxRepository, material materials.Material, explicit *int64) (int64, error) {
	if explicit != nil {
		version, err := tx.GetVersion(ctx, *explicit)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return 0, fmt.Errorf("%w: version %d", ErrVersionMismatch, *explicit)
			}
			return 0, err
		}
		if version.MaterialID != material.ID {
			return 0, ErrVersionMismatch
		}
		return version.ID, nil
	}
	if material.CurrentVersionID != nil {
		return *material.CurrentVersionID, nil
	}

	nextNo, err := tx.NextVersionNo(ctx, material.RootID)
	if err != nil {
		return 0, err
	}
	versionID, err := tx.InsertVersion(ctx, materials.Version{
		MaterialID: material.ID,
		VersionNo:  nextNo,
		Name:       material.Name,
		Category:   material.Category,
	})
	if err != nil {
		return 0, err
	}
	if err := tx.SetCurrentVersion(ctx, material.ID, versionID); err != nil {
		return 0, err
	}
	return versionID, nil
}

type stockAdjustment struct {
	warehouseID int64
	delta       float64
}

func adjustments(input RecordInput, line Line) []stockAdjustment {
	switch input.Action {
	case ActionAdded:
		return []stockAdjustment{{warehouseID: *input.ToWarehouseID, delta: line.Quantity}}
	case ActionRemoved:
		return []stockAdjustment{{warehouseID: *input.FromWarehouseID, delta: -line.Quantity}}
	case ActionTransfered:
		return []stockAdjustment{
			{warehouseID: *input.FromWarehouseID, delta: -line.Quantity},
			{warehouseID: *input.ToWarehouseID, delta: line.Quantity},
		}
	}
	return nil
}

// adjustStock applies one signed delta to a (warehouse, material) aggregate.
// Quantities never go negative; removing from a pair that was never stocked
// is rejected outright.
func adjustStock(ctx context.Context, tx TxRepository, ownerID, warehouseID, materialID int64, delta float64) error {
	stock, err := tx.GetStockForUpdate(ctx, ownerID, warehouseID, materialID)
	if err != nil {
		if !errors.Is(err, ErrStockNotFound) {
			return err
		}
		if delta < 0 {
			return fmt.Errorf("%w: warehouse %d material %d", ErrNoSuchRecord, warehouseID, materialID)
		}
		stock = StockLevel{WarehouseID: warehouseID, MaterialID: materialID}
	}
	newQty := stock.Quantity + delta
	if newQty < 0 {
		return fmt.Errorf("%w: warehouse %d material %d has %.3f, need %.3f", ErrInsufficientStock, warehouseID, materialID, stock.Quantity, -delta)
	}
	stock.Quantity = newQty
	return tx.UpsertStock(ctx, ownerID, stock)
}
