package httpx

import (
	"errors"
	"net/http"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	if ve, ok := shared.AsValidationError(err); ok {
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: ve.Error(),
			Fields: ve.Fields,
		})
		return
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrAlreadyApproved),
		errors.Is(err, shared.ErrLocked),
		errors.Is(err, shared.ErrPeriodClosed),
		errors.Is(err, shared.ErrLimitExceeded),
		errors.Is(err, shared.ErrOverpayment),
		errors.Is(err, shared.ErrAllocationMismatch),
		errors.Is(err, shared.ErrNotAllowed):
		Problem(w, http.StatusUnprocessableEntity, "Not Allowed", err.Error())
	case errors.Is(err, shared.ErrPaymentProcessor):
		Problem(w, http.StatusFailedDependency, "Payment Processor", err.Error())
	case errors.Is(err, shared.ErrUnbalanced):
		Problem(w, http.StatusInternalServerError, "Unbalanced Transaction", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
