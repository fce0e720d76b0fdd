package transfers

import (
	"context"
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

// Handler wires HTTP endpoints for transfers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfers handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.request)
	r.Get("/{id}", h.show)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/ship", h.ship)
	r.Post("/{id}/receive", h.receive)
	r.Post("/{id}/cancel", h.cancel)
}

type requestLinePayload struct {
	ItemID   int64   `json:"item_id" validate:"required,gt=0"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

type requestPayload struct {
	FromLocationID int64                `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64                `json:"to_location_id" validate:"required,gt=0"`
	Note           string               `json:"note"`
	Lines          []requestLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type quantitiesPayload struct {
	Lines []requestLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type cancelPayload struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	var req requestPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := RequestInput{
		TenantID:       identity.TenantID,
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Note:           req.Note,
		ActorID:        identity.ActorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, RequestLine{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	transfer, err := h.service.Request(r.Context(), input)
	if err != nil {
		h.respondError(w, "request transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.transferID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.Approve(r.Context(), identity.TenantID, id, identity.ActorID)
	if err != nil {
		h.respondError(w, "approve transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	h.moveLines(w, r, "ship transfer", h.service.Ship)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	h.moveLines(w, r, "receive transfer", h.service.Receive)
}

type lineMover func(ctx context.Context, tenantID, transferID, actorID int64, quantities []LineQuantity) (Transfer, error)

func (h *Handler) moveLines(w http.ResponseWriter, r *http.Request, op string, fn lineMover) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.transferID(w, r)
	if !ok {
		return
	}
	var req quantitiesPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	quantities := make([]LineQuantity, 0, len(req.Lines))
	for _, line := range req.Lines {
		quantities = append(quantities, LineQuantity{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	transfer, err := fn(r.Context(), identity.TenantID, id, identity.ActorID, quantities)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.transferID(w, r)
	if !ok {
		return
	}
	var req cancelPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	transfer, err := h.service.Cancel(r.Context(), identity.TenantID, id, identity.ActorID, req.Reason)
	if err != nil {
		h.respondError(w, "cancel transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	id, ok := h.transferID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.Get(r.Context(), identity.TenantID, id)
	if err != nil {
		h.respondError(w, "get transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, _ := shared.IdentityFromContext(r.Context())
	q := r.URL.Query()
	filters := ListFilters{Status: Status(q.Get("status"))}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.FromLocationID, _ = strconv.ParseInt(q.Get("from_location_id"), 10, 64)
	filters.ToLocationID, _ = strconv.ParseInt(q.Get("to_location_id"), 10, 64)
	result, total, err := h.service.List(r.Context(), identity.TenantID, filters)
	if err != nil {
		h.respondError(w, "list transfers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transfers":  result,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) transferID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "transfer id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, stock.ErrUnknownItem), errors.Is(err, stock.ErrUnknownLocation):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, stock.ErrInsufficientAvailable), errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotApproved),
		errors.Is(err, ErrShipExceedsRequested), errors.Is(err, ErrReceiveExceedsShipped),
		errors.Is(err, db.ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrSameLocation), errors.Is(err, ErrNoLines), errors.Is(err, ErrLineQuantity),
		errors.Is(err, ErrUnknownLine), errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
