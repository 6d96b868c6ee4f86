package handler

import (
	"net/http"

	"accountmart-api/internal/service"
	"accountmart-api/pkg/response"
)

// PurchaseHandler handles buying and purchase record requests.
type PurchaseHandler struct {
	purchases *service.PurchaseService
}

// NewPurchaseHandler creates a new purchase handler.
func NewPurchaseHandler(purchases *service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// PurchaseRequest is the body of a purchase.
type PurchaseRequest struct {
	CategoryID string `json:"category_id"`
	Quantity   int    `json:"quantity"`
}

// Purchase handles POST /api/purchases
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req PurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	out, err := h.purchases.Purchase(r.Context(), id.UserID, req.CategoryID, req.Quantity)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, out)
}

// List handles GET /api/purchases
func (h *PurchaseHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	records, err := h.purchases.ListOwned(r.Context(), id.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, records)
}

// Export handles GET /api/purchases/{id}/export
func (h *PurchaseHandler) Export(w http.ResponseWriter, r *http.Request) {
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
	filename, content, err := h.purchases.Export(r.Context(), id.UserID, rid)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Attachment(w, filename, content)
}

// Delete handles DELETE /api/purchases/{id}
func (h *PurchaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.purchases.DeleteOwned(r.Context(), id.UserID, rid); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}
