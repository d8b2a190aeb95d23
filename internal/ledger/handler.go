package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockroom-app/stockroom/internal/platform/httpx"
	"github.com/stockroom-app/stockroom/internal/shared"
)

var validate = validator.New()

// LineForm is one material line of a movement request.
type LineForm struct {
	MaterialID        int64   `json:"material_id" validate:"required,gt=0"`
	MaterialVersionID *int64  `json:"material_version_id"`
	Quantity          float64 `json:"quantity" validate:"required,gt=0"`
}

// RecordForm is the JSON payload for recording a stock movement.
type RecordForm struct {
	Action          string     `json:"action" validate:"required,oneof=added removed transfered"`
	FromWarehouseID *int64     `json:"from_warehouse_id"`
	ToWarehouseID   *int64     `json:"to_warehouse_id"`
	Description     string     `json:"description" validate:"max=2000"`
	Lines           []LineForm `json:"lines" validate:"required,min=1,dive"`
}

// Handler wires HTTP endpoints for the ledger module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
}

// MountStockRoutes registers stock level routes.
func (h *Handler) MountStockRoutes(r chi.Router) {
	r.Get("/", h.stock)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	var form RecordForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	lines := make([]Line, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, Line{
			MaterialID:        l.MaterialID,
			MaterialVersionID: l.MaterialVersionID,
			Quantity:          l.Quantity,
		})
	}
	tx, err := h.service.Record(r.Context(), RecordInput{
		Action:          ActionType(form.Action),
		FromWarehouseID: form.FromWarehouseID,
		ToWarehouseID:   form.ToWarehouseID,
		Lines:           lines,
		Description:     form.Description,
		ActorID:         ownerID,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		RespondRecordError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tx)
}

// RespondRecordError maps Record failures onto problem detail responses.
// Shared with the staging submit endpoint.
func RespondRecordError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
	case errors.Is(err, ErrInvalidMovement):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrMaterialNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoSuchRecord):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrVersionMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Version Mismatch", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this request was already processed")
	default:
		logger.Error("record transaction failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	q := r.URL.Query()
	filter := ListFilters{}
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.MaterialID, _ = strconv.ParseInt(q.Get("material_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = t
		}
	}

	list, err := h.service.ListTransactions(r.Context(), ownerID, filter)
	if err != nil {
		h.logger.Error("list transactions failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": list})
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	q := r.URL.Query()
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	materialID, _ := strconv.ParseInt(q.Get("material_id"), 10, 64)

	levels, err := h.service.ListStock(r.Context(), ownerID, warehouseID, materialID)
	if err != nil {
		h.logger.Error("list stock failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock": levels})
}
