package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/oakmart/ordercore/internal/domain/actor"
	"github.com/oakmart/ordercore/internal/domain/checkout"
	"github.com/oakmart/ordercore/internal/domain/discount"
	"github.com/oakmart/ordercore/internal/domain/order"
)

var testSecret = []byte("test-secret")

// --- Mock repositories ---

var _ order.Repository = (*memOrderRepo)(nil)

type memOrderRepo struct {
	orders map[string]*order.Order
}

func newMemOrderRepo(orders ...*order.Order) *memOrderRepo {
	m := &memOrderRepo{orders: make(map[string]*order.Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.orders[o.ID] = o
	return nil
}

func (m *memOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	cp.StatusHistory = append([]order.StatusChange(nil), o.StatusHistory...)
	return &cp, nil
}

func (m *memOrderRepo) ApplyTransition(_ context.Context, orderID string, change order.StatusChange) error {
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != change.From {
		return order.ErrStatusConflict
	}
	o.Status = change.To
	o.StatusHistory = append(o.StatusHistory, change)
	return nil
}

func (m *memOrderRepo) AttachDiscount(_ context.Context, orderID, code string, amount decimal.Decimal) error {
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.DiscountCode = code
	o.DiscountAmount = amount
	return nil
}

func (m *memOrderRepo) SetRefundStatus(_ context.Context, orderID string, status order.RefundStatus) error {
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.RefundStatus = status
	return nil
}

var _ discount.Repository = (*memDiscountRepo)(nil)

type memDiscountRepo struct {
	discounts   map[string]*discount.Discount
	redemptions map[string]*discount.Redemption
}

func newMemDiscountRepo(discounts ...*discount.Discount) *memDiscountRepo {
	m := &memDiscountRepo{
		discounts:   make(map[string]*discount.Discount),
		redemptions: make(map[string]*discount.Redemption),
	}
	for _, d := range discounts {
		m.discounts[d.ID] = d
	}
	return m
}

func (m *memDiscountRepo) Create(_ context.Context, d *discount.Discount) error {
	m.discounts[d.ID] = d
	return nil
}

func (m *memDiscountRepo) Update(_ context.Context, d *discount.Discount) error {
	m.discounts[d.ID] = d
	return nil
}

func (m *memDiscountRepo) FindByID(_ context.Context, id string) (*discount.Discount, error) {
	d, ok := m.discounts[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (m *memDiscountRepo) FindByCode(_ context.Context, code string) (*discount.Discount, error) {
	for _, d := range m.discounts {
		if d.Code == discount.NormalizeCode(code) {
			return d, nil
		}
	}
	return nil, discount.ErrNotFound
}

func (m *memDiscountRepo) FindRedemption(_ context.Context, discountID, orderRef string) (*discount.Redemption, error) {
	r, ok := m.redemptions[discountID+"/"+orderRef]
	if !ok {
		return nil, discount.ErrRedemptionNotFound
	}
	return r, nil
}

func (m *memDiscountRepo) Redeem(_ context.Context, r *discount.Redemption) error {
	key := r.DiscountID + "/" + r.OrderRef
	if _, ok := m.redemptions[key]; ok {
		return discount.ErrAlreadyRedeemed
	}
	d := m.discounts[r.DiscountID]
	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return discount.ErrUsageLimitReached
	}
	m.redemptions[key] = r
	d.UsedCount++
	return nil
}

// --- Helpers ---

func newTestRouter(t *testing.T, orders *memOrderRepo, discounts *memDiscountRepo) http.Handler {
	t.Helper()

	engine := discount.NewEngine(discounts)
	h, err := New(
		order.NewService(orders),
		engine,
		discount.NewAdminService(discounts),
		checkout.New(orders, engine),
		noop.NewMeterProvider().Meter("test"),
	)
	require.NoError(t, err)
	return h.Routes(testSecret)
}

func tokenFor(t *testing.T, a actor.Actor) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  a.ID,
		"role": string(a.Role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, router http.Handler, a actor.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, a))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var (
	testCustomer = actor.Actor{ID: "cust-1", Role: actor.RoleCustomer}
	testStaff    = actor.Actor{ID: "staff-1", Role: actor.RoleStaff}
	testAdmin    = actor.Actor{ID: "admin-1", Role: actor.RoleAdmin}
)

func activeDiscount() *discount.Discount {
	cap25k := decimal.NewFromInt(25000)
	return &discount.Discount{
		ID:                "d1",
		Code:              "SALE20",
		Percent:           20,
		MinOrderValue:     decimal.NewFromInt(100000),
		MaxDiscountAmount: &cap25k,
		StartDate:         time.Now().UTC().AddDate(0, -1, 0),
		EndDate:           time.Now().UTC().AddDate(0, 1, 0),
		ApprovalStatus:    discount.ApprovalApproved,
	}
}

// --- Tests ---

func TestAuth_MissingToken(t *testing.T) {
	router := newTestRouter(t, newMemOrderRepo(), newMemDiscountRepo())

	req := httptest.NewRequest("GET", "/orders/o1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BadSignature(t *testing.T) {
	router := newTestRouter(t, newMemOrderRepo(), newMemDiscountRepo())

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "cust-1", "role": "CUSTOMER",
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/orders/o1", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrder(t *testing.T) {
	orders := newMemOrderRepo()
	router := newTestRouter(t, orders, newMemDiscountRepo(activeDiscount()))

	rec := doJSON(t, router, testCustomer, "POST", "/orders", placeOrderRequest{
		PaymentMethod: "PREPAID_WALLET",
		Subtotal:      decimal.NewFromInt(150000),
		DiscountCode:  "sale20",
		Receiver:      receiverDTO{Name: "A", Phone: "1", Address: "x"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp placeOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testCustomer.ID, resp.Order.CustomerID)
	assert.Equal(t, "PENDING", resp.Order.Status)
	assert.Equal(t, "SALE20", resp.Order.DiscountCode)
	assert.True(t, resp.Order.DiscountAmount.Equal(decimal.NewFromInt(25000)))
	assert.Empty(t, resp.DiscountError)
}

func TestPlaceOrder_DiscountFailureSurfaced(t *testing.T) {
	orders := newMemOrderRepo()
	router := newTestRouter(t, orders, newMemDiscountRepo(activeDiscount()))

	rec := doJSON(t, router, testCustomer, "POST", "/orders", placeOrderRequest{
		PaymentMethod: "CASH_ON_DELIVERY",
		Subtotal:      decimal.NewFromInt(50000),
		DiscountCode:  "SALE20",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp placeOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DiscountError)
	assert.True(t, resp.Order.DiscountAmount.IsZero())
}

func TestGetOrder_CustomerIsolation(t *testing.T) {
	o := &order.Order{
		ID:            "o1",
		CustomerID:    "someone-else",
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentCashOnDelivery,
	}
	router := newTestRouter(t, newMemOrderRepo(o), newMemDiscountRepo())

	rec := doJSON(t, router, testCustomer, "GET", "/orders/o1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "foreign orders look nonexistent")

	rec = doJSON(t, router, testStaff, "GET", "/orders/o1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTransition_IllegalListsLegalTargets(t *testing.T) {
	o := &order.Order{
		ID:            "o1",
		CustomerID:    testCustomer.ID,
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentCashOnDelivery,
	}
	router := newTestRouter(t, newMemOrderRepo(o), newMemDiscountRepo())

	rec := doJSON(t, router, testStaff, "POST", "/orders/o1/transition", transitionRequest{Target: "SHIPPING"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{"READY_TO_SHIP", "CANCELLED"}, resp.LegalNext)
}

func TestTransition_UnknownTarget(t *testing.T) {
	router := newTestRouter(t, newMemOrderRepo(), newMemDiscountRepo())

	rec := doJSON(t, router, testStaff, "POST", "/orders/o1/transition", transitionRequest{Target: "DELIVERED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransition_CustomerForbidden(t *testing.T) {
	o := &order.Order{
		ID:            "o1",
		CustomerID:    testCustomer.ID,
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentPrepaidWallet,
	}
	router := newTestRouter(t, newMemOrderRepo(o), newMemDiscountRepo())

	rec := doJSON(t, router, testCustomer, "POST", "/orders/o1/transition", transitionRequest{Target: "PAID"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefundFlow(t *testing.T) {
	o := &order.Order{
		ID:            "o1",
		CustomerID:    testCustomer.ID,
		Status:        order.StatusCompleted,
		PaymentMethod: order.PaymentPrepaidWallet,
	}
	repo := newMemOrderRepo(o)
	router := newTestRouter(t, repo, newMemDiscountRepo())

	rec := doJSON(t, router, testStaff, "POST", "/orders/o1/refund", noteRequest{Note: "customer complaint"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, testStaff, "POST", "/orders/o1/refund/confirm", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, order.RefundSuccess, o.RefundStatus)

	// Confirming again is a no-op.
	rec = doJSON(t, router, testStaff, "POST", "/orders/o1/refund/confirm", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestValidateDiscount(t *testing.T) {
	router := newTestRouter(t, newMemOrderRepo(), newMemDiscountRepo(activeDiscount()))

	rec := doJSON(t, router, testCustomer, "POST", "/discounts/validate", validateDiscountRequest{
		Code:       "SALE20",
		OrderValue: decimal.NewFromInt(150000),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp quoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.DiscountAmount.Equal(decimal.NewFromInt(25000)))
	assert.True(t, resp.FinalAmount.Equal(decimal.NewFromInt(125000)))
}

func TestValidateDiscount_BelowMinimumIs422(t *testing.T) {
	router := newTestRouter(t, newMemOrderRepo(), newMemDiscountRepo(activeDiscount()))

	rec := doJSON(t, router, testCustomer, "POST", "/discounts/validate", validateDiscountRequest{
		Code:       "SALE20",
		OrderValue: decimal.NewFromInt(1000),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDiscountAdminFlow(t *testing.T) {
	router := newTestRouter(t, newMemOrderRepo(), newMemDiscountRepo())

	// Customer cannot create.
	rec := doJSON(t, router, testCustomer, "POST", "/discounts", discountParamsRequest{
		Code:          "NEW10",
		Percent:       10,
		MinOrderValue: decimal.Zero,
		StartDate:     time.Now().UTC(),
		EndDate:       time.Now().UTC().AddDate(0, 1, 0),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Staff creates.
	rec = doJSON(t, router, testStaff, "POST", "/discounts", discountParamsRequest{
		Code:          "NEW10",
		Percent:       10,
		MinOrderValue: decimal.Zero,
		StartDate:     time.Now().UTC(),
		EndDate:       time.Now().UTC().AddDate(0, 1, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created discountDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "PENDING", created.ApprovalStatus)

	path := fmt.Sprintf("/discounts/%s", created.ID)

	// Staff cannot approve; admin can.
	rec = doJSON(t, router, testStaff, "POST", path+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, testAdmin, "POST", path+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Second review conflicts.
	rec = doJSON(t, router, testAdmin, "POST", path+"/reject", rejectRequest{Reason: "nope"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Deactivate then reactivate.
	rec = doJSON(t, router, testStaff, "POST", path+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, testStaff, "POST", path+"/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestApplyDiscount_Idempotent(t *testing.T) {
	discounts := newMemDiscountRepo(activeDiscount())
	router := newTestRouter(t, newMemOrderRepo(), discounts)

	body := applyDiscountRequest{OrderValue: decimal.NewFromInt(150000), OrderID: "order-1"}

	rec := doJSON(t, router, testStaff, "POST", "/discounts/d1/apply", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, testStaff, "POST", "/discounts/d1/apply", body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, discounts.discounts["d1"].UsedCount)
}
