package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/ordercore/internal/domain/checkout"
	"github.com/oakmart/ordercore/internal/domain/discount"
	"github.com/oakmart/ordercore/internal/domain/order"
)

type errorResponse struct {
	Code      int      `json:"code"`
	Message   string   `json:"message"`
	LegalNext []string `json:"legalNext,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Everything in the core's
// taxonomy is recoverable; only unknown errors become a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		illegalErr    *order.IllegalTransitionError
		unauthWrapped *order.UnauthorizedError
		wrongStateErr *order.WrongStateError
	)

	switch {
	case errors.As(err, &illegalErr):
		legal := make([]string, len(illegalErr.Legal))
		for i, s := range illegalErr.Legal {
			legal[i] = string(s)
		}
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:      http.StatusConflict,
			Message:   illegalErr.Error(),
			LegalNext: legal,
		})
	case errors.As(err, &wrongStateErr),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, discount.ErrNotEditable),
		errors.Is(err, discount.ErrAlreadyReviewed),
		errors.Is(err, discount.ErrNotApprovedYet),
		errors.Is(err, discount.ErrNotDeactivated):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    http.StatusConflict,
			Message: err.Error(),
		})
	case errors.As(err, &unauthWrapped),
		errors.Is(err, order.ErrCancelNotAllowed),
		errors.Is(err, discount.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Code:    http.StatusForbidden,
			Message: err.Error(),
		})
	case errors.Is(err, order.ErrNotFound), errors.Is(err, discount.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Code:    http.StatusNotFound,
			Message: err.Error(),
		})
	case isDiscountRuleError(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    http.StatusUnprocessableEntity,
			Message: err.Error(),
		})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal error",
		})
	}
}

// isDiscountRuleError reports whether err belongs to the discount rule
// taxonomy surfaced to the user as an unprocessable request.
func isDiscountRuleError(err error) bool {
	var (
		notApproved *discount.NotApprovedError
		expired     *discount.ExpiredError
		exhausted   *discount.UsageExhaustedError
		belowMin    *discount.BelowMinimumError
	)
	return errors.As(err, &notApproved) ||
		errors.As(err, &expired) ||
		errors.As(err, &exhausted) ||
		errors.As(err, &belowMin)
}

func isValidationError(err error) bool {
	return errors.Is(err, discount.ErrCodeTooShort) ||
		errors.Is(err, discount.ErrInvalidPercent) ||
		errors.Is(err, discount.ErrInvalidWindow) ||
		errors.Is(err, discount.ErrNegativeAmount) ||
		errors.Is(err, discount.ErrReasonRequired) ||
		errors.Is(err, checkout.ErrNegativeSubtotal) ||
		errors.Is(err, checkout.ErrInvalidPaymentMethod)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    http.StatusBadRequest,
		Message: message,
	})
}
