package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/VenkatGGG/idempotency-coordinator/internal/idempotency"
	"github.com/VenkatGGG/idempotency-coordinator/internal/order"
	"github.com/VenkatGGG/idempotency-coordinator/pkg/httpx"
)

type createOrderRequest struct {
	Item     string `json:"item" validate:"required,max=200"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10000"`
}

// Creating an order requires a key and pins it to the request body.
func (s *Server) createOrderOptions() idempotency.Options {
	opts := s.idempotency
	opts.KeyPrefix = "orders"
	opts.Mandatory = true
	opts.IncludeBody = true
	return opts
}

func (s *Server) cancelOrderOptions() idempotency.Options {
	opts := s.idempotency
	opts.KeyPrefix = "order-cancel"
	opts.Mandatory = false
	opts.IncludeBody = false
	return opts
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	created, err := s.orders.Create(r.Context(), order.CreateInput{Item: req.Item, Quantity: req.Quantity})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	found, err := s.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, found)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	canceled, err := s.orders.Cancel(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, canceled)
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, order.ErrAlreadyCanceled):
		httpx.WriteError(w, http.StatusConflict, "already_canceled", err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "order_failed", err.Error())
	}
}
