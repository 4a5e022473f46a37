package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/events"
	"github.com/renzmar06/Destruction-Web-API-sub000/internal/store"
)

type adminQuerier interface {
	CreateEndpoint(ctx context.Context, arg store.CreateEndpointParams) (store.WebhookEndpoint, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (store.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context) ([]store.WebhookEndpoint, error)
	UpdateEndpoint(ctx context.Context, id uuid.UUID, arg store.CreateEndpointParams) (store.WebhookEndpoint, error)
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit, offset int32) ([]store.WebhookDelivery, error)
}

// AdminHandler exposes webhook endpoint management. The secret is write-only;
// responses never echo it.
type AdminHandler struct {
	Q        adminQuerier
	Validate *validator.Validate
}

type endpointRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Secret string   `json:"secret" validate:"required,min=16"`
	Topics []string `json:"topics" validate:"required,min=1"`
	Active *bool    `json:"active"`
}

type endpointEntry struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Topics []string `json:"topics"`
	Active bool     `json:"active"`
}

type deliveryEntry struct {
	ID        string `json:"id"`
	EventID   string `json:"eventId"`
	Status    string `json:"status"`
	Attempts  int32  `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Create handles POST /api/v1/webhooks.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	topics, ok := normaliseTopics(req.Topics)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown topic", nil)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	ep, err := h.Q.CreateEndpoint(r.Context(), store.CreateEndpointParams{
		URL:    strings.TrimSpace(req.URL),
		Secret: req.Secret,
		Topics: topics,
		Active: active,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": toEndpointEntry(ep)})
}

// List handles GET /api/v1/webhooks.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.Q.ListEndpoints(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	items := make([]endpointEntry, 0, len(endpoints))
	for _, ep := range endpoints {
		items = append(items, toEndpointEntry(ep))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// Get handles GET /api/v1/webhooks/{endpointID}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ep, err := h.Q.GetEndpoint(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "webhook endpoint not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toEndpointEntry(ep)})
}

// Update handles PUT /api/v1/webhooks/{endpointID}.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req endpointRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	topics, okTopics := normaliseTopics(req.Topics)
	if !okTopics {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown topic", nil)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	ep, err := h.Q.UpdateEndpoint(r.Context(), id, store.CreateEndpointParams{
		URL:    strings.TrimSpace(req.URL),
		Secret: req.Secret,
		Topics: topics,
		Active: active,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "webhook endpoint not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toEndpointEntry(ep)})
}

// Delete handles DELETE /api/v1/webhooks/{endpointID}.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Q.DeleteEndpoint(r.Context(), id); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deliveries handles GET /api/v1/webhooks/{endpointID}/deliveries.
func (h *AdminHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 50)
	rows, err := h.Q.ListDeliveries(r.Context(), id, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		return
	}
	items := make([]deliveryEntry, 0, len(rows))
	for _, d := range rows {
		items = append(items, deliveryEntry{
			ID:        d.ID.String(),
			EventID:   d.EventID.String(),
			Status:    d.Status,
			Attempts:  d.Attempts,
			LastError: d.LastError,
			CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *AdminHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "endpointID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid endpoint id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func toEndpointEntry(ep store.WebhookEndpoint) endpointEntry {
	return endpointEntry{
		ID:     ep.ID.String(),
		URL:    ep.URL,
		Topics: ep.Topics,
		Active: ep.Active,
	}
}

func normaliseTopics(raw []string) ([]string, bool) {
	known := make(map[string]struct{}, len(events.DefaultTopics()))
	for _, t := range events.DefaultTopics() {
		known[t] = struct{}{}
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if _, ok := known[t]; !ok {
			return nil, false
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, true
}
