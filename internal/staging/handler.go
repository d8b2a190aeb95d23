package staging

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockroom-app/stockroom/internal/ledger"
	"github.com/stockroom-app/stockroom/internal/platform/httpx"
	"github.com/stockroom-app/stockroom/internal/shared"
)

var validate = validator.New()

// Recorder is the slice of the ledger service the staging handler needs.
type Recorder interface {
	Record(ctx context.Context, input ledger.RecordInput) (ledger.Transaction, error)
}

// EntryForm is the JSON payload for staging one line.
type EntryForm struct {
	MaterialID        int64   `json:"material_id" validate:"required,gt=0"`
	MaterialVersionID *int64  `json:"material_version_id"`
	Quantity          float64 `json:"quantity" validate:"required,gt=0"`
	Note              string  `json:"note" validate:"max=500"`
}

// SubmitForm describes how the staged lines should be recorded.
type SubmitForm struct {
	Action                 string `json:"action" validate:"required,oneof=added removed transfered"`
	CounterpartWarehouseID *int64 `json:"counterpart_warehouse_id"`
	Description            string `json:"description" validate:"max=2000"`
}

// Handler wires the per-warehouse staging endpoints.
type Handler struct {
	logger *slog.Logger
	store  *Store
	ledger Recorder
}

// NewHandler constructs a staging handler.
func NewHandler(logger *slog.Logger, store *Store, rec Recorder) *Handler {
	return &Handler{logger: logger, store: store, ledger: rec}
}

// MountRoutes registers staging routes under a warehouse.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.add)
	r.Delete("/", h.clear)
	r.Delete("/{materialID}", h.remove)
	r.Post("/submit", h.submit)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (sessionID string, ownerID, warehouseID int64, ok bool) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return "", 0, 0, false
	}
	sess := shared.SessionFromContext(r.Context())
	warehouseID, err = strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid warehouse id")
		return "", 0, 0, false
	}
	return sess.ID, ownerID, warehouseID, true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sessionID, _, warehouseID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	entries, err := h.store.List(r.Context(), sessionID, warehouseID)
	if err != nil {
		h.logger.Error("list staging failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	sessionID, _, warehouseID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var form EntryForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.store.Add(r.Context(), sessionID, warehouseID, Entry{
		MaterialID:        form.MaterialID,
		MaterialVersionID: form.MaterialVersionID,
		Quantity:          form.Quantity,
		Note:              form.Note,
	})
	if err != nil {
		h.logger.Error("stage line failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	sessionID, _, warehouseID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	materialID, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil || materialID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	entries, err := h.store.Remove(r.Context(), sessionID, warehouseID, materialID)
	if err != nil {
		h.logger.Error("unstage line failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	sessionID, _, warehouseID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := h.store.Clear(r.Context(), sessionID, warehouseID); err != nil {
		h.logger.Error("clear staging failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// submit turns the staged lines into one ledger transaction. The staging
// warehouse is the destination for additions and the source otherwise, with
// the counterpart warehouse completing transfers.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	sessionID, ownerID, warehouseID, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var form SubmitForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entries, err := h.store.List(r.Context(), sessionID, warehouseID)
	if err != nil {
		h.logger.Error("load staging failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if len(entries) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", ErrEmpty.Error())
		return
	}

	input := ledger.RecordInput{
		Action:         ledger.ActionType(form.Action),
		Description:    form.Description,
		ActorID:        ownerID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	switch input.Action {
	case ledger.ActionAdded:
		input.ToWarehouseID = &warehouseID
	case ledger.ActionRemoved:
		input.FromWarehouseID = &warehouseID
	case ledger.ActionTransfered:
		input.FromWarehouseID = &warehouseID
		input.ToWarehouseID = form.CounterpartWarehouseID
	}
	for _, e := range entries {
		input.Lines = append(input.Lines, ledger.Line{
			MaterialID:        e.MaterialID,
			MaterialVersionID: e.MaterialVersionID,
			Quantity:          e.Quantity,
		})
	}

	tx, err := h.ledger.Record(r.Context(), input)
	if err != nil {
		ledger.RespondRecordError(w, h.logger, err)
		return
	}
	if err := h.store.Clear(r.Context(), sessionID, warehouseID); err != nil {
		h.logger.Warn("clear staging after submit failed", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusCreated, tx)
}
