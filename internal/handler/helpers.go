package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/checkout-backend/internal/order"
	"github.com/vasiliy-maslov/checkout-backend/internal/payment"
)

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write response")
	}
}

func mapErrorToStatusCode(err error) int {
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, order.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrDuplicateOrderID):
		return http.StatusConflict
	case errors.As(err, &gwErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage decides what the caller may see. Validation problems are the
// caller's to fix and get the specific message; everything else gets a
// generic one, the detail stays in the server log (gateway payloads can carry
// provider diagnostics that must not reach the public internet).
func clientMessage(err error) string {
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, order.ErrValidation):
		return err.Error()
	case errors.Is(err, order.ErrOrderNotFound):
		return "order not found"
	case errors.Is(err, order.ErrDuplicateOrderID):
		return "order with this ID already exists"
	case errors.As(err, &gwErr):
		return "payment gateway request failed"
	case errors.Is(err, payment.ErrConfiguration):
		return "service is misconfigured"
	default:
		return "internal server error"
	}
}
