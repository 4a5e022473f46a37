package estimate

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/renzmar06/Destruction-Web-API-sub000/internal/common"
)

// Handler exposes the estimate endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createRequest struct {
	CustomerID string  `json:"customerId" validate:"required,uuid4"`
	Notes      string  `json:"notes"`
	TaxRate    *string `json:"taxRate"`
}

type lineRequest struct {
	ServiceID   *string `json:"serviceId"`
	Description string  `json:"description"`
	Quantity    string  `json:"quantity" validate:"required"`
	UnitPrice   *string `json:"unitPrice"`
	Taxable     *bool   `json:"taxable"`
}

type reorderRequest struct {
	LineIDs []string `json:"lineIds" validate:"required,min=1"`
}

type chargeRequest struct {
	Kind        string `json:"kind" validate:"required"`
	Description string `json:"description"`
	Amount      string `json:"amount" validate:"required"`
}

type pricingRequest struct {
	DiscountType        string  `json:"discountType"`
	DiscountValue       string  `json:"discountValue"`
	TaxRate             string  `json:"taxRate" validate:"required"`
	ShippingAmount      string  `json:"shippingAmount"`
	OverrideSubtotal    *string `json:"overrideSubtotal"`
	OverrideTaxAmount   *string `json:"overrideTaxAmount"`
	OverrideTotalAmount *string `json:"overrideTotalAmount"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// Create handles POST /api/v1/estimates.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return
	}
	in := CreateInput{CustomerID: customerID, Notes: req.Notes}
	if req.TaxRate != nil {
		rate, err := decimal.NewFromString(*req.TaxRate)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "taxRate must be a decimal string", nil)
			return
		}
		in.TaxRate = &rate
	}
	detail, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": detail})
}

// List handles GET /api/v1/estimates.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	params := ListParams{Page: page, PerPage: perPage, Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("customerId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
			return
		}
		params.CustomerID = &id
	}
	result, err := h.Svc.List(r.Context(), params)
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

// Get handles GET /api/v1/estimates/{estimateID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	detail, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// AddLine handles POST /api/v1/estimates/{estimateID}/lines.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	in, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	detail, err := h.Svc.AddLine(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": detail})
}

// UpdateLine handles PUT /api/v1/estimates/{estimateID}/lines/{lineID}.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	in, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	detail, err := h.Svc.UpdateLine(r.Context(), id, lineID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// RemoveLine handles DELETE /api/v1/estimates/{estimateID}/lines/{lineID}.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	detail, err := h.Svc.RemoveLine(r.Context(), id, lineID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// ReorderLines handles POST /api/v1/estimates/{estimateID}/lines/reorder.
func (h *Handler) ReorderLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	var req reorderRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	ids := make([]uuid.UUID, 0, len(req.LineIDs))
	for _, raw := range req.LineIDs {
		lineID, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid line id", nil)
			return
		}
		ids = append(ids, lineID)
	}
	detail, err := h.Svc.ReorderLines(r.Context(), id, ids)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// AddCharge handles POST /api/v1/estimates/{estimateID}/charges.
func (h *Handler) AddCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	in, ok := h.decodeCharge(w, r)
	if !ok {
		return
	}
	detail, err := h.Svc.AddCharge(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": detail})
}

// UpdateCharge handles PUT /api/v1/estimates/{estimateID}/charges/{chargeID}.
func (h *Handler) UpdateCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	chargeID, ok := h.pathID(w, r, "chargeID")
	if !ok {
		return
	}
	in, ok := h.decodeCharge(w, r)
	if !ok {
		return
	}
	detail, err := h.Svc.UpdateCharge(r.Context(), id, chargeID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// RemoveCharge handles DELETE /api/v1/estimates/{estimateID}/charges/{chargeID}.
func (h *Handler) RemoveCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	chargeID, ok := h.pathID(w, r, "chargeID")
	if !ok {
		return
	}
	detail, err := h.Svc.RemoveCharge(r.Context(), id, chargeID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// UpdatePricing handles PUT /api/v1/estimates/{estimateID}/pricing.
func (h *Handler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	var req pricingRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	in := PricingInput{DiscountType: req.DiscountType}
	var err error
	if in.DiscountValue, err = parseAmount(req.DiscountValue, "discountValue"); err != nil {
		writeError(w, err)
		return
	}
	if in.TaxRate, err = parseAmount(req.TaxRate, "taxRate"); err != nil {
		writeError(w, err)
		return
	}
	if in.ShippingAmount, err = parseAmount(req.ShippingAmount, "shippingAmount"); err != nil {
		writeError(w, err)
		return
	}
	if in.OverrideSubtotal, err = parseOptionalAmount(req.OverrideSubtotal, "overrideSubtotal"); err != nil {
		writeError(w, err)
		return
	}
	if in.OverrideTaxAmount, err = parseOptionalAmount(req.OverrideTaxAmount, "overrideTaxAmount"); err != nil {
		writeError(w, err)
		return
	}
	if in.OverrideTotalAmount, err = parseOptionalAmount(req.OverrideTotalAmount, "overrideTotalAmount"); err != nil {
		writeError(w, err)
		return
	}
	detail, err := h.Svc.UpdatePricing(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// UpdateNotes handles PUT /api/v1/estimates/{estimateID}/notes.
func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	var req notesRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	detail, err := h.Svc.UpdateNotes(r.Context(), id, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

// Send handles POST /api/v1/estimates/{estimateID}/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Svc.Send)
}

// Accept handles POST /api/v1/estimates/{estimateID}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Svc.Accept)
}

// Cancel handles POST /api/v1/estimates/{estimateID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Svc.Cancel)
}

// Expire handles POST /api/v1/estimates/{estimateID}/expire.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.Svc.Expire)
}

// Duplicate handles POST /api/v1/estimates/{estimateID}/duplicate.
func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	detail, err := h.Svc.Duplicate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": detail})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (Detail, error)) {
	id, ok := h.pathID(w, r, "estimateID")
	if !ok {
		return
	}
	detail, err := op(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": detail})
}

func (h *Handler) decodeLine(w http.ResponseWriter, r *http.Request) (LineInput, bool) {
	var req lineRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return LineInput{}, false
	}
	in := LineInput{Description: req.Description, Taxable: req.Taxable}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantity must be a decimal string", nil)
		return LineInput{}, false
	}
	in.Quantity = qty
	if req.ServiceID != nil && *req.ServiceID != "" {
		id, err := uuid.Parse(*req.ServiceID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid service id", nil)
			return LineInput{}, false
		}
		in.ServiceID = &id
	}
	if req.UnitPrice != nil {
		price, err := decimal.NewFromString(*req.UnitPrice)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unitPrice must be a decimal string", nil)
			return LineInput{}, false
		}
		in.UnitPrice = &price
	}
	return in, true
}

func (h *Handler) decodeCharge(w http.ResponseWriter, r *http.Request) (ChargeInput, bool) {
	var req chargeRequest
	if appErr := common.DecodeAndValidate(r, h.Validate, &req); appErr != nil {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return ChargeInput{}, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "amount must be a decimal string", nil)
		return ChargeInput{}, false
	}
	return ChargeInput{Kind: req.Kind, Description: req.Description, Amount: amount}, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+param, nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badRequest(field, field+" must be a decimal string", err)
	}
	return v, nil
}

func parseOptionalAmount(raw *string, field string) (*decimal.Decimal, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, badRequest(field, field+" must be a decimal string", err)
	}
	return &v, nil
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
