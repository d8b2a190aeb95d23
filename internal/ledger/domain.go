package ledger

import (
	"errors"
	"time"
)

// ActionType enumerates supported stock movements.
type ActionType string

const (
	// ActionAdded represents stock entering a destination warehouse.
	ActionAdded ActionType = "added"
	// ActionRemoved represents stock leaving a source warehouse.
	ActionRemoved ActionType = "removed"
	// ActionTransfered represents stock moving between two warehouses.
	ActionTransfered ActionType = "transfered"
)

// Transaction models an immutable ledger entry for one stock movement event.
type Transaction struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	FromWarehouseID *int64     `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   *int64     `json:"to_warehouse_id,omitempty"`
	Action          ActionType `json:"action_type"`
	Description     string     `json:"description,omitempty"`
	PostedAt        time.Time  `json:"posted_at"`
	CreatedAt       time.Time  `json:"created_at"`
	Details         []Detail   `json:"details,omitempty"`
}

// Detail is one line item of a transaction, pinned to the material version
// snapshot in effect when the movement was recorded.
type Detail struct {
	ID                int64   `json:"id"`
	TransactionID     int64   `json:"transaction_id"`
	MaterialID        int64   `json:"material_id"`
	MaterialVersionID int64   `json:"material_version_id"`
	Quantity          float64 `json:"quantity"`
}

// Line is one requested movement of a material.
type Line struct {
	MaterialID        int64
	MaterialVersionID *int64
	Quantity          float64
}

// RecordInput describes a requested stock movement.
type RecordInput struct {
	Action          ActionType
	FromWarehouseID *int64
	ToWarehouseID   *int64
	Lines           []Line
	Description     string
	ActorID         int64
	IdempotencyKey  string
}

// StockLevel is the current quantity of one material in one warehouse.
type StockLevel struct {
	WarehouseID int64     `json:"warehouse_id"`
	MaterialID  int64     `json:"material_id"`
	Quantity    float64   `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilters narrows transaction listings.
type ListFilters struct {
	WarehouseID int64
	MaterialID  int64
	From        time.Time
	To          time.Time
	Limit       int
}

// Summary is the denormalised view of a transaction used for semantic
// indexing of the movement description.
type Summary struct {
	TransactionID int64
	Action        ActionType
	Description   string
	FromWarehouse string
	ToWarehouse   string
	PostedAt      time.Time
	Items         []SummaryItem
}

// SummaryItem pairs a material name with the quantity moved.
type SummaryItem struct {
	MaterialName string
	Quantity     float64
}

var (
	// ErrUnauthenticated indicates no resolvable caller identity.
	ErrUnauthenticated = errors.New("ledger: unauthenticated")
	// ErrInvalidMovement indicates an action/warehouse shape mismatch or an
	// empty or invalid line list.
	ErrInvalidMovement = errors.New("ledger: invalid movement")
	// ErrMaterialNotFound indicates a referenced material does not exist.
	ErrMaterialNotFound = errors.New("ledger: material not found")
	// ErrInsufficientStock indicates an adjustment would drive a quantity negative.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrNoSuchRecord indicates a removal from a pair that was never stocked.
	ErrNoSuchRecord = errors.New("ledger: no stock record for warehouse/material")
	// ErrVersionMismatch indicates an explicit version id that does not belong
	// to the referenced material.
	ErrVersionMismatch = errors.New("ledger: material version belongs to a different material")
	// ErrStockNotFound indicates a missing stock row, internal to the repository.
	ErrStockNotFound = errors.New("ledger: stock record not found")
)
