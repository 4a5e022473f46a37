package rules

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
)

// Handler exposes the price rule admin endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type ruleRequest struct {
	CustomerID      *string `json:"customerId"`
	CustomerType    string  `json:"customerType"`
	ServiceID       *string `json:"serviceId"`
	ServiceCategory string  `json:"serviceCategory"`
	Kind            string  `json:"kind" validate:"required"`
	Value           string  `json:"value" validate:"required"`
	Priority        int32   `json:"priority"`
	ValidFrom       *string `json:"validFrom"`
	ValidTo         *string `json:"validTo"`
	Active          *bool   `json:"active"`
}

type previewRequest struct {
	CustomerID string `json:"customerId" validate:"required,uuid4"`
	ServiceID  string `json:"serviceId" validate:"required,uuid4"`
}

// Create handles POST /api/v1/price-rules.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}
	rule, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": rule})
}

// Get handles GET /api/v1/price-rules/{ruleID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "ruleID")
	if !ok {
		return
	}
	rule, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// List handles GET /api/v1/price-rules.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	result, err := h.Svc.List(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(result.Total)},
	})
}

// Update handles PUT /api/v1/price-rules/{ruleID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "ruleID")
	if !ok {
		return
	}
	var req ruleRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}
	rule, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rule})
}

// Delete handles DELETE /api/v1/price-rules/{ruleID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "ruleID")
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview handles POST /api/v1/price-rules/preview: a dry-run resolution for
// a (customer, service) pair.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid service id", nil)
		return
	}
	result, err := h.Svc.Preview(r.Context(), customerID, serviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func (r ruleRequest) toInput() (Input, error) {
	value, err := decimal.NewFromString(r.Value)
	if err != nil {
		return Input{}, badRequest("value", "value must be a decimal string", err)
	}
	in := Input{
		CustomerType:    r.CustomerType,
		ServiceCategory: r.ServiceCategory,
		Kind:            r.Kind,
		Value:           value,
		Priority:        r.Priority,
		Active:          true,
	}
	if r.Active != nil {
		in.Active = *r.Active
	}
	if r.CustomerID != nil && *r.CustomerID != "" {
		id, err := uuid.Parse(*r.CustomerID)
		if err != nil {
			return Input{}, badRequest("customerId", "customerId must be a UUID", err)
		}
		in.CustomerID = &id
	}
	if r.ServiceID != nil && *r.ServiceID != "" {
		id, err := uuid.Parse(*r.ServiceID)
		if err != nil {
			return Input{}, badRequest("serviceId", "serviceId must be a UUID", err)
		}
		in.ServiceID = &id
	}
	if r.ValidFrom != nil && *r.ValidFrom != "" {
		ts, err := time.Parse(time.RFC3339, *r.ValidFrom)
		if err != nil {
			return Input{}, badRequest("validFrom", "validFrom must be RFC 3339", err)
		}
		in.ValidFrom = &ts
	}
	if r.ValidTo != nil && *r.ValidTo != "" {
		ts, err := time.Parse(time.RFC3339, *r.ValidTo)
		if err != nil {
			return Input{}, badRequest("validTo", "validTo must be RFC 3339", err)
		}
		in.ValidTo = &ts
	}
	return in, nil
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+param, nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
