package kits

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

// Handler wires HTTP endpoints for service kits.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the kits handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers kit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Post("/{id}/consume", h.consume)
	r.Post("/{id}/reserve", h.reserve)
	r.Post("/{id}/deactivate", h.deactivate)
}

type kitItemPayload struct {
	ItemID     int64   `json:"item_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	IsOptional bool    `json:"is_optional"`
	Priority   int     `json:"priority"`
}

type createPayload struct {
	Name            string           `json:"name" validate:"required"`
	KitType         string           `json:"kit_type"`
	EquipmentType   string           `json:"equipment_type"`
	MaintenanceType string           `json:"maintenance_type"`
	EstimatedCost   float64          `json:"estimated_cost" validate:"gte=0"`
	Items           []kitItemPayload `json:"items" validate:"required,min=1,dive"`
}

type expandPayload struct {
	LocationID      int64      `json:"location_id" validate:"required,gt=0"`
	ReferenceID     string     `json:"reference_id" validate:"required"`
	IncludeOptional []int64    `json:"include_optional"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	var req createPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		TenantID:        identity.TenantID,
		Name:            req.Name,
		KitType:         req.KitType,
		EquipmentType:   req.EquipmentType,
		MaintenanceType: req.MaintenanceType,
		EstimatedCost:   req.EstimatedCost,
		ActorID:         identity.ActorID,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, ItemInput{
			ItemID:     item.ItemID,
			Quantity:   item.Quantity,
			IsOptional: item.IsOptional,
			Priority:   item.Priority,
		})
	}
	kit, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create kit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, kit)
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	input, ok := h.expandInput(w, r)
	if !ok {
		return
	}
	movements, err := h.service.Consume(r.Context(), input)
	if err != nil {
		h.respondError(w, "consume kit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	input, ok := h.expandInput(w, r)
	if !ok {
		return
	}
	created, err := h.service.Reserve(r.Context(), input)
	if err != nil {
		h.respondError(w, "reserve kit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"reservations": created})
}

func (h *Handler) expandInput(w http.ResponseWriter, r *http.Request) (ExpandInput, bool) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "kit id must be numeric")
		return ExpandInput{}, false
	}
	var req expandPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return ExpandInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return ExpandInput{}, false
	}
	return ExpandInput{
		TenantID:        identity.TenantID,
		KitID:           id,
		LocationID:      req.LocationID,
		ReferenceID:     req.ReferenceID,
		IncludeOptional: req.IncludeOptional,
		ExpiresAt:       req.ExpiresAt,
		ActorID:         identity.ActorID,
	}, true
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "kit id must be numeric")
		return
	}
	if err := h.service.Deactivate(r.Context(), identity.TenantID, id, identity.ActorID); err != nil {
		h.respondError(w, "deactivate kit", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "kit id must be numeric")
		return
	}
	kit, err := h.service.Get(r.Context(), identity.TenantID, id)
	if err != nil {
		h.respondError(w, "get kit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, kit)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filters := ListFilters{KitType: q.Get("kit_type"), Search: q.Get("search")}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	result, total, err := h.service.List(r.Context(), identity.TenantID, filters)
	if err != nil {
		h.respondError(w, "list kits", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"kits":       result,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, stock.ErrUnknownItem), errors.Is(err, stock.ErrUnknownLocation):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock), errors.Is(err, stock.ErrInsufficientAvailable),
		errors.Is(err, ErrInactive), errors.Is(err, db.ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoItems), errors.Is(err, ErrValidation), errors.Is(err, ErrOptionalNotOnKit),
		errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
