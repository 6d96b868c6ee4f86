package handler

import (
	"net/http"

	"accountmart-api/internal/model"
	"accountmart-api/internal/service"
	"accountmart-api/pkg/response"

	"github.com/shopspring/decimal"
)

// PaymentHandler handles top-up requests and their review.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// SubmitPaymentRequest is the body of a top-up request.
type SubmitPaymentRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address"`
}

// PayoutAddressRequest is the body of the payout address update.
type PayoutAddressRequest struct {
	Address string `json:"address"`
}

// PayoutAddress handles GET /api/payments/payout-address
func (h *PaymentHandler) PayoutAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := h.payments.PayoutAddress(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"address": addr})
}

// Submit handles POST /api/payments
func (h *PaymentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req SubmitPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	pr, err := h.payments.Submit(r.Context(), id.UserID, req.Amount, req.Address)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, pr)
}

// ListMine handles GET /api/payments
func (h *PaymentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	list, err := h.payments.ListMine(r.Context(), id.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, list)
}

// List handles GET /api/admin/payments?status=
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.payments.List(r.Context(), model.PaymentStatus(r.URL.Query().Get("status")))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, list)
}

// Approve handles PUT /api/admin/payments/{id}/approve
func (h *PaymentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	rid, err := pathID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	pr, err := h.payments.Approve(r.Context(), id.UserID, rid)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, pr)
}

// Reject handles PUT /api/admin/payments/{id}/reject
func (h *PaymentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	rid, err := pathID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	pr, err := h.payments.Reject(r.Context(), id.UserID, rid)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, pr)
}

// SetPayoutAddress handles PUT /api/admin/settings/payout-address
func (h *PaymentHandler) SetPayoutAddress(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req PayoutAddressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	if err := h.payments.SetPayoutAddress(r.Context(), id.UserID, req.Address); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"address": req.Address})
}
