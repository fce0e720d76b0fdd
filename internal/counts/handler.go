package counts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conductor-hq/conductor-stock/internal/platform/db"
	"github.com/conductor-hq/conductor-stock/internal/platform/httpx"
	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// Handler wires HTTP endpoints for physical inventories.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the counts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.plan)
	r.Get("/{id}", h.show)
	r.Post("/{id}/counts", h.recordCount)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/cancel", h.cancel)
}

type planPayload struct {
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Type       string  `json:"type" validate:"required,oneof=full cycle spot"`
	ItemIDs    []int64 `json:"item_ids"`
}

type countPayload struct {
	ItemID     int64   `json:"item_id" validate:"required,gt=0"`
	CountedQty float64 `json:"counted_qty" validate:"gte=0"`
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	var req planPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inventory, err := h.service.Plan(r.Context(), PlanInput{
		TenantID:   identity.TenantID,
		LocationID: req.LocationID,
		Type:       Type(req.Type),
		ItemIDs:    req.ItemIDs,
		ActorID:    identity.ActorID,
	})
	if err != nil {
		h.respondError(w, "plan inventory", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inventory)
}

func (h *Handler) recordCount(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.inventoryID(w, r)
	if !ok {
		return
	}
	var req countPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	count, err := h.service.RecordCount(r.Context(), identity.TenantID, id, req.ItemID, req.CountedQty, identity.ActorID)
	if err != nil {
		h.respondError(w, "record count", err)
		return
	}
	httpx.JSON(w, http.StatusOK, count)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.inventoryID(w, r)
	if !ok {
		return
	}
	inventory, err := h.service.ApproveAdjustments(r.Context(), identity.TenantID, id, identity.ActorID)
	if err != nil {
		h.respondError(w, "approve inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inventory)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.inventoryID(w, r)
	if !ok {
		return
	}
	inventory, err := h.service.Cancel(r.Context(), identity.TenantID, id, identity.ActorID)
	if err != nil {
		h.respondError(w, "cancel inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inventory)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.inventoryID(w, r)
	if !ok {
		return
	}
	inventory, err := h.service.Get(r.Context(), identity.TenantID, id)
	if err != nil {
		h.respondError(w, "get inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inventory)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filters := ListFilters{Status: Status(q.Get("status")), Type: Type(q.Get("type"))}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	result, total, err := h.service.List(r.Context(), identity.TenantID, filters)
	if err != nil {
		h.respondError(w, "list inventories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"inventories": result,
		"pagination":  shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) inventoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "inventory id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCountNotFound),
		errors.Is(err, stock.ErrUnknownItem), errors.Is(err, stock.ErrUnknownLocation):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrIncompleteCount), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, stock.ErrInsufficientStock), errors.Is(err, stock.ErrInsufficientAvailable),
		errors.Is(err, db.ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrInvalidType), errors.Is(err, ErrNegativeQuantity),
		errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
