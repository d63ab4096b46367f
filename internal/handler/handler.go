// Package handler exposes the lifecycle and discount engines over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/oakmart/ordercore/internal/domain/checkout"
	"github.com/oakmart/ordercore/internal/domain/discount"
	"github.com/oakmart/ordercore/internal/domain/order"
)

// Handler maps HTTP requests onto the domain services.
type Handler struct {
	orders        *order.Service
	discounts     *discount.Engine
	discountAdmin *discount.AdminService
	checkout      *checkout.Orchestrator

	transitions metric.Int64Counter
	checkouts   metric.Int64Counter
}

// New constructs a Handler with the required domain dependencies and
// instrument counters.
func New(
	orders *order.Service,
	discounts *discount.Engine,
	discountAdmin *discount.AdminService,
	co *checkout.Orchestrator,
	meter metric.Meter,
) (*Handler, error) {
	transitions, err := meter.Int64Counter("ordercore.order.transitions",
		metric.WithDescription("Committed order status transitions"))
	if err != nil {
		return nil, errors.Wrap(err, "create transitions counter")
	}
	checkouts, err := meter.Int64Counter("ordercore.checkouts",
		metric.WithDescription("Orders placed through checkout"))
	if err != nil {
		return nil, errors.Wrap(err, "create checkouts counter")
	}

	return &Handler{
		orders:        orders,
		discounts:     discounts,
		discountAdmin: discountAdmin,
		checkout:      co,
		transitions:   transitions,
		checkouts:     checkouts,
	}, nil
}

// Routes returns the authenticated API routes.
func (h *Handler) Routes(tokenSecret []byte) http.Handler {
	r := chi.NewRouter()
	r.Use(ActorAuth(tokenSecret))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Post("/transition", h.requestTransition)
			r.Post("/cancel", h.cancelOrder)
			r.Post("/return", h.markReturned)
			r.Post("/refund", h.initiateRefund)
			r.Post("/refund/confirm", h.confirmRefund)
		})
	})

	r.Route("/discounts", func(r chi.Router) {
		r.Post("/validate", h.validateDiscount)
		r.Post("/", h.createDiscount)
		r.Route("/{discountID}", func(r chi.Router) {
			r.Put("/", h.updateDiscount)
			r.Post("/apply", h.applyDiscount)
			r.Post("/approve", h.approveDiscount)
			r.Post("/reject", h.rejectDiscount)
			r.Post("/activate", h.activateDiscount)
			r.Post("/deactivate", h.deactivateDiscount)
		})
	})

	return r
}
