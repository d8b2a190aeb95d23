package materials

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockroom-app/stockroom/internal/platform/httpx"
	"github.com/stockroom-app/stockroom/internal/shared"
)

var validate = validator.New()

// AttributeForm mirrors Attribute for request payloads.
type AttributeForm struct {
	Key         string   `json:"key" validate:"required,max=100"`
	Kind        string   `json:"kind" validate:"required,oneof=text number"`
	TextValue   string   `json:"text_value" validate:"max=1000"`
	NumberValue *float64 `json:"number_value"`
}

// MaterialForm is the JSON payload for create/update requests.
type MaterialForm struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Category    string          `json:"category" validate:"max=100"`
	DefaultUnit string          `json:"default_unit" validate:"max=50"`
	Attributes  []AttributeForm `json:"attributes" validate:"dive"`
	ImageRef    string          `json:"image_ref" validate:"max=500"`
}

// Handler wires HTTP endpoints for the materials module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a materials handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers material routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Get("/{id}/versions", h.versions)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 50
	}

	list, total, err := h.service.List(r.Context(), ownerID, ListFilters{
		Page:     page,
		Limit:    limit,
		Search:   q.Get("search"),
		Category: q.Get("category"),
		SortBy:   q.Get("sort"),
		SortDir:  q.Get("dir"),
	})
	if err != nil {
		h.logger.Error("list materials failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"materials":  list,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	material, err := h.service.Get(r.Context(), ownerID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "material not found")
			return
		}
		h.logger.Error("get material failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	material, err := h.service.Create(r.Context(), materialFromForm(ownerID, form))
	if err != nil {
		h.logger.Error("create material failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, material)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	material, err := h.service.Update(r.Context(), ownerID, id, materialFromForm(ownerID, form))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "material not found")
			return
		}
		h.logger.Error("update material failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) versions(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.CurrentUserID(r.Context())
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	versions, err := h.service.ListVersions(r.Context(), ownerID, id)
	if err != nil {
		h.logger.Error("list material versions failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (MaterialForm, bool) {
	var form MaterialForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return MaterialForm{}, false
	}
	if err := validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return MaterialForm{}, false
	}
	return form, true
}

func materialFromForm(ownerID int64, form MaterialForm) Material {
	attrs := make([]Attribute, 0, len(form.Attributes))
	for _, a := range form.Attributes {
		attrs = append(attrs, Attribute{
			Key:         a.Key,
			Kind:        AttributeKind(a.Kind),
			TextValue:   a.TextValue,
			NumberValue: a.NumberValue,
		})
	}
	return Material{
		OwnerID:     ownerID,
		Name:        form.Name,
		Category:    form.Category,
		DefaultUnit: form.DefaultUnit,
		Attributes:  attrs,
		ImageRef:    form.ImageRef,
	}
}
