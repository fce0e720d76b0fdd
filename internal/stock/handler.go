package stock

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
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.recordMovement)
	r.Get("/movements", h.listMovements)
	r.Post("/movements/{id}/reverse", h.reverseMovement)
	r.Get("/levels", h.getLevel)
	r.Put("/levels/policy", h.updatePolicy)
	r.Get("/low-stock", h.listLowStock)
	r.Get("/valuation", h.valuation)
}

type movementRequest struct {
	ItemID        int64   `json:"item_id" validate:"required"`
	LocationID    int64   `json:"location_id" validate:"required"`
	Type          string  `json:"type" validate:"required,oneof=IN OUT ADJUSTMENT RETURN"`
	Quantity      float64 `json:"quantity" validate:"required"`
	UnitCost      float64 `json:"unit_cost" validate:"gte=0"`
	ReferenceType string  `json:"reference_type"`
	ReferenceID   string  `json:"reference_id"`
	Note          string  `json:"note"`
	ApprovedBy    int64   `json:"approved_by"`
}

type movementResponse struct {
	Movement Movement `json:"movement"`
	Level    Level    `json:"level"`
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok || identity.TenantID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "missing tenant identity")
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, level, err := h.service.RecordMovement(r.Context(), MovementInput{
		TenantID:      identity.TenantID,
		ItemID:        req.ItemID,
		LocationID:    req.LocationID,
		Type:          MovementType(req.Type),
		Quantity:      req.Quantity,
		UnitCost:      req.UnitCost,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Note:          req.Note,
		ActorID:       identity.ActorID,
		ApprovedBy:    req.ApprovedBy,
	})
	if err != nil {
		h.respondError(w, r, "record movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse{Movement: movement, Level: level})
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) reverseMovement(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	movementID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "movement id must be numeric")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, level, err := h.service.ReverseMovement(r.Context(), identity.TenantID, movementID, identity.ActorID, req.Reason)
	if err != nil {
		h.respondError(w, r, "reverse movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse{Movement: movement, Level: level})
}

func (h *Handler) getLevel(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	itemID, _ := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	if itemID == 0 || locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id and location_id are required")
		return
	}
	level, err := h.service.GetLevel(r.Context(), identity.TenantID, itemID, locationID)
	if err != nil {
		h.respondError(w, r, "get level", err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filter := MovementFilter{TenantID: identity.TenantID}
	filter.ItemID, _ = strconv.ParseInt(q.Get("item_id"), 10, 64)
	filter.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	filter.Type = MovementType(q.Get("type"))
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type policyRequest struct {
	ItemID        int64   `json:"item_id" validate:"required"`
	LocationID    int64   `json:"location_id" validate:"required"`
	MinimumLevel  float64 `json:"minimum_level" validate:"gte=0"`
	MaximumLevel  float64 `json:"maximum_level" validate:"gte=0"`
	ReorderPoint  float64 `json:"reorder_point" validate:"gte=0"`
	EconomicOrder float64 `json:"economic_order_qty" validate:"gte=0"`
}

func (h *Handler) updatePolicy(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	var req policyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.UpdatePolicy(r.Context(), PolicyInput{
		TenantID:      identity.TenantID,
		ItemID:        req.ItemID,
		LocationID:    req.LocationID,
		MinimumLevel:  req.MinimumLevel,
		MaximumLevel:  req.MaximumLevel,
		ReorderPoint:  req.ReorderPoint,
		EconomicOrder: req.EconomicOrder,
		ActorID:       identity.ActorID,
	})
	if err != nil {
		h.respondError(w, r, "update policy", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	entries, err := h.service.ListLowStock(r.Context(), identity.TenantID, locationID)
	if err != nil {
		h.respondError(w, r, "list low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) valuation(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	summary, err := h.service.Valuation(r.Context(), identity.TenantID)
	if err != nil {
		h.respondError(w, r, "valuation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInsufficientAvailable):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrMovementReversed):
		httpx.Problem(w, http.StatusConflict, "Already Reversed", err.Error())
	case errors.Is(err, ErrUnknownItem), errors.Is(err, ErrUnknownLocation), errors.Is(err, ErrMovementNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost), errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, db.ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
