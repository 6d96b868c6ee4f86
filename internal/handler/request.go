package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/middleware"
	"accountmart-api/internal/model"
	"accountmart-api/pkg/apierror"
	"accountmart-api/pkg/uid"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON request body into dst. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.BadRequest("request body is required")
		}
		return apierror.BadRequest("invalid request body")
	}
	return nil
}

// identity returns the caller set by the auth middleware.
func identity(r *http.Request) (*model.Identity, error) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		return nil, apperr.ErrInvalidSession
	}
	return id, nil
}

// queryInt parses an optional integer query parameter. Missing yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.BadRequest(name + " must be an integer")
	}
	return n, nil
}

// pathID returns the {id} route parameter. Malformed ids cannot exist, so they are not found.
func pathID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if !uid.IsValid(id) {
		return "", apierror.NotFound("")
	}
	return id, nil
}
