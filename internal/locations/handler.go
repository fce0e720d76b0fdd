package locations

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conductor-hq/conductor-stock/internal/platform/httpx"
	"github.com/conductor-hq/conductor-stock/internal/shared"
)

// Handler wires HTTP endpoints for the location registry.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the locations handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers location routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/reactivate", h.reactivate)
}

type locationRequest struct {
	Name      string  `json:"name" validate:"required"`
	Code      string  `json:"code" validate:"required"`
	Type      string  `json:"type" validate:"required,oneof=FIXED MOBILE VIRTUAL CONSIGNMENT"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ManagerID int64   `json:"manager_id"`
	Capacity  float64 `json:"capacity" validate:"gte=0"`
	Occupancy float64 `json:"occupancy" validate:"gte=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("search"), Type: LocationType(q.Get("type"))}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if activeStr := q.Get("active"); activeStr != "" {
		active := activeStr == "true"
		filters.IsActive = &active
	}
	result, total, err := h.service.List(r.Context(), identity.TenantID, filters)
	if err != nil {
		h.respondError(w, "list locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"locations":  result,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "location id must be numeric")
		return
	}
	location, err := h.service.Get(r.Context(), identity.TenantID, id)
	if err != nil {
		h.respondError(w, "get location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, location)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	var req locationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), locationFromRequest(identity.TenantID, req), identity.ActorID)
	if err != nil {
		h.respondError(w, "create location", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "location id must be numeric")
		return
	}
	var req locationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	location := locationFromRequest(identity.TenantID, req)
	location.ID = id
	if err := h.service.Update(r.Context(), location, identity.ActorID); err != nil {
		h.respondError(w, "update location", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "location id must be numeric")
		return
	}
	if active {
		err = h.service.Reactivate(r.Context(), identity.TenantID, id, identity.ActorID)
	} else {
		err = h.service.Deactivate(r.Context(), identity.TenantID, id, identity.ActorID)
	}
	if err != nil {
		h.respondError(w, "set location active", err)
		return
	}
	httpx.NoContent(w)
}

func locationFromRequest(tenantID int64, req locationRequest) Location {
	return Location{
		TenantID:  tenantID,
		Name:      req.Name,
		Code:      req.Code,
		Type:      LocationType(req.Type),
		Address:   req.Address,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		ManagerID: req.ManagerID,
		Capacity:  req.Capacity,
		Occupancy: req.Occupancy,
	}
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate Code", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
