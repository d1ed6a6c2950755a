package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/cart"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type stockExceededResponse struct {
	ErrorResponse
	cart.StockExceeded
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondStockExceeded(w http.ResponseWriter, se cart.StockExceeded) {
	respondJSON(w, http.StatusConflict, stockExceededResponse{
		ErrorResponse: ErrorResponse{
			Error: "not enough stock",
			Code:  "stock_exceeded",
		},
		StockExceeded: se,
	})
}

// handleCartError converts cart errors to HTTP status codes.
func handleCartError(w http.ResponseWriter, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, cart.ErrInvalidInput):
		status = http.StatusBadRequest
		code = "invalid_input"
	case errors.Is(err, cart.ErrLineNotFound):
		status = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, cart.ErrStockUnavailable):
		status = http.StatusServiceUnavailable
		code = "stock_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
	default:
		zap.L().Error("cart operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, status, code, err.Error())
}
