package handler

import (
	"net/http"

	"accountmart-api/internal/model"
	"accountmart-api/internal/service"
	"accountmart-api/pkg/response"
)

// CatalogHandler serves categories and inventory items.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// CategoryRequest is the body of category create and update.
type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListCategories handles GET /api/categories and GET /api/admin/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	views, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, views)
}

// GetCategory handles GET /api/categories/{id}
func (h *CatalogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	rid, err := pathID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	view, err := h.catalog.CategoryAvailability(r.Context(), rid)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, view)
}

// CreateCategory handles POST /api/admin/categories
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	c, err := h.catalog.CreateCategory(r.Context(), id.UserID, req.Name, req.Description)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, c)
}

// UpdateCategory handles PUT /api/admin/categories/{id}
func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	rid, err := pathID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	c, err := h.catalog.UpdateCategory(r.Context(), id.UserID, rid, req.Name, req.Description)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, c)
}

// DeleteCategory handles DELETE /api/admin/categories/{id}
func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
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
	if err := h.catalog.DeleteCategory(r.Context(), id.UserID, rid); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// ListItems handles GET /api/admin/items?category_id=&status=
func (h *CatalogHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.catalog.ListItems(r.Context(), q.Get("category_id"), model.ItemStatus(q.Get("status")))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, items)
}

// CreateItem handles POST /api/admin/items
func (h *CatalogHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req service.ItemInput
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	item, err := h.catalog.CreateItem(r.Context(), id.UserID, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, item)
}

// DeleteItem handles DELETE /api/admin/items/{id}
func (h *CatalogHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
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
	if err := h.catalog.DeleteItem(r.Context(), id.UserID, rid); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}
