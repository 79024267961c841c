package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/domain/customer"
	"github.com/xenking/counter-checkout/internal/domain/product"
)

type errorResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Fields  []checkout.FieldError `json:"fields,omitempty"`
	// SKU and Available describe a stock rejection.
	SKU       string `json:"sku,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// badRequestError marks malformed input that never reached the domain.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		badReq *badRequestError
		verr   *checkout.ValidationError
		stock  *checkout.StockLimitExceededError
		perr   *checkout.PersistenceError
	)
	switch {
	case errors.As(err, &badReq), errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &stock):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable
	case errors.Is(err, checkout.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, customer.ErrNotFound),
		errors.Is(err, checkout.ErrItemNotInCart),
		errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrCheckoutInProgress),
		errors.Is(err, checkout.ErrInvalidState),
		errors.Is(err, checkout.ErrNotCancellable),
		errors.Is(err, checkout.ErrRegisterBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	resp := errorResponse{Code: code, Message: err.Error()}

	var (
		verr  *checkout.ValidationError
		stock *checkout.StockLimitExceededError
	)
	switch {
	case errors.As(err, &verr):
		resp.Message = "validation failed"
		resp.Fields = verr.Fields
	case errors.As(err, &stock):
		resp.SKU = stock.SKU
		resp.Available = &stock.Available
	}

	lg := zctx.From(r.Context())
	switch {
	case code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable:
		lg.Error("Request failed", zap.Error(err))
		resp.Message = "internal error"
	case code == http.StatusServiceUnavailable:
		lg.Warn("Sale not persisted", zap.Error(err))
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object from the request body. Unknown
// fields are rejected so typos in the register UI surface immediately.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}
