package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/checkout-backend/internal/order"
)

// OrderHandler handles HTTP requests for the checkout backend.
type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// CreateOrder handles POST /orders/create.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in order.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.CreateOrder(r.Context(), in)
	if err != nil {
		log.Info().Err(err).Msg("Failed to create order")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

// ConfirmOrder handles POST /orders/confirm.
func (h *OrderHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	var in order.ConfirmOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.ConfirmOrder(r.Context(), in)
	if err != nil {
		log.Info().Err(err).Str("order_id", in.OrderID).Msg("Failed to confirm order")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// CreateCheckout handles POST /checkout/create.
func (h *OrderHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var in order.CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	checkoutURL, err := h.svc.InitiateCheckout(r.Context(), in)
	if err != nil {
		log.Info().Err(err).Str("order_id", in.OrderID).Msg("Failed to create checkout session")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"checkout_url": checkoutURL})
}

// ListOrders handles GET /admin/orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	orders, err := h.svc.ListOrders(r.Context(), limit)
	if err != nil {
		log.Info().Err(err).Msg("Failed to list orders")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

type shipRequest struct {
	Shipped bool `json:"shipped"`
}

// ShipOrder handles POST /admin/orders/{id}/ship.
func (h *OrderHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	rowID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "id must be a valid uuid")
		return
	}

	var in shipRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.svc.SetShippingStatus(r.Context(), rowID, in.Shipped)
	if err != nil {
		log.Info().Err(err).Stringer("row_id", rowID).Msg("Failed to update shipping status")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}
