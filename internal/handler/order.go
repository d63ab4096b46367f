package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/oakmart/ordercore/internal/domain/actor"
	"github.com/oakmart/ordercore/internal/domain/checkout"
	"github.com/oakmart/ordercore/internal/domain/order"
)

type receiverDTO struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type placeOrderRequest struct {
	CustomerID    string          `json:"customerId,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountCode  string          `json:"discountCode,omitempty"`
	Receiver      receiverDTO     `json:"receiver"`
}

type placeOrderResponse struct {
	Order         orderDTO `json:"order"`
	DiscountError string   `json:"discountError,omitempty"`
}

type statusChangeDTO struct {
	From          string    `json:"from"`
	To            string    `json:"to"`
	ChangedBy     string    `json:"changedBy"`
	ChangedByRole string    `json:"changedByRole"`
	ChangedAt     time.Time `json:"changedAt"`
	Note          string    `json:"note,omitempty"`
}

type orderDTO struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customerId"`
	Status         string            `json:"status"`
	PaymentMethod  string            `json:"paymentMethod"`
	TotalPrice     decimal.Decimal   `json:"totalPrice"`
	DiscountCode   string            `json:"discountCode,omitempty"`
	DiscountAmount decimal.Decimal   `json:"discountAmount"`
	Receiver       receiverDTO       `json:"receiver"`
	RefundStatus   string            `json:"refundStatus,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	StatusHistory  []statusChangeDTO `json:"statusHistory"`
}

type transitionRequest struct {
	Target string `json:"target"`
	Note   string `json:"note,omitempty"`
}

type noteRequest struct {
	Note string `json:"note,omitempty"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	// Customers always order for themselves; staff may order on behalf of a
	// customer.
	customerID := req.CustomerID
	if a.Role == actor.RoleCustomer || customerID == "" {
		customerID = a.ID
	}

	result, err := h.checkout.PlaceOrder(r.Context(), checkout.Request{
		CustomerID:    customerID,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Subtotal:      req.Subtotal,
		DiscountCode:  req.DiscountCode,
		Receiver: order.Receiver{
			Name:    req.Receiver.Name,
			Phone:   req.Receiver.Phone,
			Address: req.Receiver.Address,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.checkouts.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("payment_method", string(result.Order.PaymentMethod)),
	))

	resp := placeOrderResponse{Order: toOrderDTO(result.Order)}
	if result.DiscountErr != nil {
		resp.DiscountError = result.DiscountErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if a.Role == actor.RoleCustomer && o.CustomerID != a.ID {
		// Do not reveal whether the order exists.
		writeError(w, r, order.ErrNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toOrderDTO(o))
}

func (h *Handler) requestTransition(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	target := order.Status(req.Target)
	if !target.Valid() {
		badRequest(w, "unknown target status")
		return
	}

	change, err := h.orders.RequestTransition(r.Context(), chi.URLParam(r, "orderID"), target, a, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.recordTransition(r, change)
	writeJSON(w, http.StatusOK, toStatusChangeDTO(*change))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.sideChannel(w, r, h.orders.Cancel)
}

func (h *Handler) markReturned(w http.ResponseWriter, r *http.Request) {
	h.sideChannel(w, r, h.orders.MarkReturned)
}

func (h *Handler) initiateRefund(w http.ResponseWriter, r *http.Request) {
	h.sideChannel(w, r, h.orders.InitiateRefund)
}

// sideChannel is the shared shape of cancel/return/refund handlers: a note
// body, one service call, one StatusChange out.
func (h *Handler) sideChannel(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, orderID string, by actor.Actor, note string) (*order.StatusChange, error),
) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req noteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}

	change, err := op(r.Context(), chi.URLParam(r, "orderID"), a, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.recordTransition(r, change)
	writeJSON(w, http.StatusOK, toStatusChangeDTO(*change))
}

func (h *Handler) confirmRefund(w http.ResponseWriter, r *http.Request) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.orders.ConfirmRefund(r.Context(), chi.URLParam(r, "orderID"), a); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordTransition(r *http.Request, change *order.StatusChange) {
	h.transitions.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("from", string(change.From)),
		attribute.String("to", string(change.To)),
	))
}

func toOrderDTO(o *order.Order) orderDTO {
	history := make([]statusChangeDTO, len(o.StatusHistory))
	for i, c := range o.StatusHistory {
		history[i] = toStatusChangeDTO(c)
	}
	return orderDTO{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		Status:         string(o.Status),
		PaymentMethod:  string(o.PaymentMethod),
		TotalPrice:     o.TotalPrice,
		DiscountCode:   o.DiscountCode,
		DiscountAmount: o.DiscountAmount,
		Receiver: receiverDTO{
			Name:    o.Receiver.Name,
			Phone:   o.Receiver.Phone,
			Address: o.Receiver.Address,
		},
		RefundStatus:  string(o.RefundStatus),
		CreatedAt:     o.CreatedAt,
		StatusHistory: history,
	}
}

func toStatusChangeDTO(c order.StatusChange) statusChangeDTO {
	return statusChangeDTO{
		From:          string(c.From),
		To:            string(c.To),
		ChangedBy:     c.ChangedBy.ID,
		ChangedByRole: string(c.ChangedBy.Role),
		ChangedAt:     c.ChangedAt,
		Note:          c.Note,
	}
}
