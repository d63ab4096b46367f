package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/oakmart/ordercore/internal/domain/discount"
)

type validateDiscountRequest struct {
	Code       string          `json:"code"`
	OrderValue decimal.Decimal `json:"orderValue"`
}

type applyDiscountRequest struct {
	OrderValue decimal.Decimal `json:"orderValue"`
	OrderID    string          `json:"orderId"`
}

type quoteResponse struct {
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
}

type discountParamsRequest struct {
	Code              string           `json:"code"`
	Percent           int              `json:"percent"`
	MinOrderValue     decimal.Decimal  `json:"minOrderValue"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           time.Time        `json:"endDate"`
	UsageLimit        *int             `json:"usageLimit,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type discountDTO struct {
	ID                string           `json:"id"`
	Code              string           `json:"code"`
	Percent           int              `json:"percent"`
	MinOrderValue     decimal.Decimal  `json:"minOrderValue"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           time.Time        `json:"endDate"`
	UsageLimit        *int             `json:"usageLimit,omitempty"`
	UsedCount         int              `json:"usedCount"`
	ApprovalStatus    string           `json:"approvalStatus"`
	RejectedReason    string           `json:"rejectedReason,omitempty"`
}

func (h *Handler) validateDiscount(w http.ResponseWriter, r *http.Request) {
	var req validateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	q, err := h.discounts.Validate(r.Context(), req.Code, req.OrderValue)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (h *Handler) applyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.OrderID == "" {
		badRequest(w, "orderId is required")
		return
	}

	q, err := h.discounts.Apply(r.Context(), chi.URLParam(r, "discountID"), req.OrderValue, req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (h *Handler) createDiscount(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req discountParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	d, err := h.discountAdmin.Create(r.Context(), toParams(req), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDiscountDTO(d))
}

func (h *Handler) updateDiscount(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req discountParamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	d, err := h.discountAdmin.Update(r.Context(), chi.URLParam(r, "discountID"), toParams(req), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscountDTO(d))
}

func (h *Handler) approveDiscount(w http.ResponseWriter, r *http.Request) {
	h.reviewOp(w, r, func(id string) (*discount.Discount, error) {
		a, _ := ActorFromContext(r.Context())
		return h.discountAdmin.Approve(r.Context(), id, a)
	})
}

func (h *Handler) rejectDiscount(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	h.reviewOp(w, r, func(id string) (*discount.Discount, error) {
		a, _ := ActorFromContext(r.Context())
		return h.discountAdmin.Reject(r.Context(), id, req.Reason, a)
	})
}

func (h *Handler) activateDiscount(w http.ResponseWriter, r *http.Request) {
	h.reviewOp(w, r, func(id string) (*discount.Discount, error) {
		a, _ := ActorFromContext(r.Context())
		return h.discountAdmin.Activate(r.Context(), id, a)
	})
}

func (h *Handler) deactivateDiscount(w http.ResponseWriter, r *http.Request) {
	h.reviewOp(w, r, func(id string) (*discount.Discount, error) {
		a, _ := ActorFromContext(r.Context())
		return h.discountAdmin.Deactivate(r.Context(), id, a)
	})
}

func (h *Handler) reviewOp(w http.ResponseWriter, r *http.Request, op func(id string) (*discount.Discount, error)) {
	if _, ok := ActorFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	d, err := op(chi.URLParam(r, "discountID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscountDTO(d))
}

func toParams(req discountParamsRequest) discount.Params {
	return discount.Params{
		Code:              req.Code,
		Percent:           req.Percent,
		MinOrderValue:     req.MinOrderValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		UsageLimit:        req.UsageLimit,
	}
}

func toQuoteResponse(q *discount.Quote) quoteResponse {
	return quoteResponse{
		DiscountAmount: q.DiscountAmount,
		FinalAmount:    q.FinalAmount,
	}
}

func toDiscountDTO(d *discount.Discount) discountDTO {
	return discountDTO{
		ID:                d.ID,
		Code:              d.Code,
		Percent:           d.Percent,
		MinOrderValue:     d.MinOrderValue,
		MaxDiscountAmount: d.MaxDiscountAmount,
		StartDate:         d.StartDate,
		EndDate:           d.EndDate,
		UsageLimit:        d.UsageLimit,
		UsedCount:         d.UsedCount,
		ApprovalStatus:    string(d.ApprovalStatus),
		RejectedReason:    d.RejectedReason,
	}
}
