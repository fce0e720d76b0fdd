package reservations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conductor-hq/conductor-stock/internal/platform/db"
	"github.com/conductor-hq/conductor-stock/internal/platform/httpx"
	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// Handler wires HTTP endpoints for reservations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the reservations handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reservation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.reserve)
	r.Get("/{id}", h.show)
	r.Post("/{id}/consume", h.consume)
	r.Post("/{id}/cancel", h.cancel)
}

type reserveRequest struct {
	ItemID      int64      `json:"item_id" validate:"required,gt=0"`
	LocationID  int64      `json:"location_id" validate:"required,gt=0"`
	Type        string     `json:"type" validate:"required,oneof=service_order project customer internal"`
	ReferenceID string     `json:"reference_id"`
	Quantity    float64    `json:"quantity" validate:"required,gt=0"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type consumeRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	reservation, err := h.service.Reserve(r.Context(), ReserveInput{
		TenantID:    identity.TenantID,
		ItemID:      req.ItemID,
		LocationID:  req.LocationID,
		Type:        Type(req.Type),
		ReferenceID: req.ReferenceID,
		Quantity:    req.Quantity,
		ExpiresAt:   req.ExpiresAt,
		ActorID:     identity.ActorID,
	})
	if err != nil {
		h.respondError(w, "reserve", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reservation)
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "reservation id must be numeric")
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	reservation, movement, err := h.service.Consume(r.Context(), identity.TenantID, id, req.Quantity, identity.ActorID)
	if err != nil {
		h.respondError(w, "consume reservation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reservation": reservation, "movement": movement})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "reservation id must be numeric")
		return
	}
	reservation, err := h.service.Cancel(r.Context(), identity.TenantID, id, identity.ActorID)
	if err != nil {
		h.respondError(w, "cancel reservation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reservation)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "reservation id must be numeric")
		return
	}
	reservation, err := h.service.Get(r.Context(), identity.TenantID, id)
	if err != nil {
		h.respondError(w, "get reservation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reservation)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filters := ListFilters{
		Status:      Status(q.Get("status")),
		Type:        Type(q.Get("type")),
		ReferenceID: q.Get("reference_id"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
	filters.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	result, total, err := h.service.List(r.Context(), identity.TenantID, filters)
	if err != nil {
		h.respondError(w, "list reservations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reservations": result,
		"pagination":   shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, stock.ErrUnknownItem), errors.Is(err, stock.ErrUnknownLocation):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, stock.ErrInsufficientAvailable), errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConsumeExceedsRemaining), errors.Is(err, db.ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidType), errors.Is(err, ErrExpiryInPast), errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
