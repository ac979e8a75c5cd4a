package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	lederr "github.com/vitewallet/ledger/internal/errors"
)

// ErrorParameter is one key/value detail attached to an error envelope.
type ErrorParameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ErrorResponse is the error envelope every failed API call returns.
type ErrorResponse struct {
	ErrorCategory    string           `json:"errorCategory"`
	ErrorCode        string           `json:"errorCode"`
	ErrorDescription string           `json:"errorDescription"`
	ErrorDateTime    time.Time        `json:"errorDateTime"`
	ErrorParameters  []ErrorParameter `json:"errorParameters,omitempty"`
}

func newError(category, code, description string, params ...ErrorParameter) *ErrorResponse {
	return &ErrorResponse{
		ErrorCategory:    category,
		ErrorCode:        code,
		ErrorDescription: description,
		ErrorDateTime:    time.Now().UTC(),
		ErrorParameters:  params,
	}
}

// errorEnvelope maps a service error to its HTTP status and error envelope.
func errorEnvelope(err error) (int, *ErrorResponse) {
	var validation *lederr.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, newError("validation", "formatError",
			validation.Reason, ErrorParameter{Key: "field", Value: validation.Field})
	}

	var insufficient *lederr.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return http.StatusPaymentRequired, newError("businessRule", "insufficientFunds",
			"the debit party does not have enough available balance",
			ErrorParameter{Key: "available", Value: strconv.FormatInt(insufficient.Available, 10)},
			ErrorParameter{Key: "requested", Value: strconv.FormatInt(insufficient.Requested, 10)},
		)
	}

	var transition *lederr.InvalidStateTransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict, newError("businessRule", "invalidState",
			fmt.Sprintf("transaction cannot move from %s to %s", transition.From, transition.To))
	}

	switch {
	case errors.Is(err, lederr.ErrMalformedIdentifier):
		return http.StatusBadRequest, newError("validation", "formatError",
			"identifier is not a valid UUID")

	case errors.Is(err, lederr.ErrInvalidFilter):
		return http.StatusBadRequest, newError("validation", "formatError",
			"filter must be empty, completions, or rejections")

	case errors.Is(err, lederr.ErrWalletInactive):
		return http.StatusBadRequest, newError("businessRule", "accountInactive",
			"the account cannot take part in transactions")

	case errors.Is(err, lederr.ErrWalletNotFound), errors.Is(err, lederr.ErrNotFound):
		return http.StatusNotFound, newError("identification", "identifierError",
			"no record matches the supplied identifier")

	case errors.Is(err, lederr.ErrDuplicateCorrelationID):
		return http.StatusConflict, newError("businessRule", "duplicateCorrelationId",
			"a transaction with this correlation id already exists")

	case errors.Is(err, lederr.ErrReferenceExhausted):
		return http.StatusConflict, newError("businessRule", "referenceExhausted",
			"could not allocate a unique transaction reference")
	}

	return http.StatusInternalServerError, newError("systemError", "genericError",
		"an internal error occurred")
}
