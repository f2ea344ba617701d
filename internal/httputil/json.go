package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"optrade/internal/model"
)

type ErrorResponse struct {
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// WriteDomainError maps a domain error to its HTTP status and stable kind.
// Unknown errors come back as a generic 500 so storage details never leak.
func WriteDomainError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Kind: "validation_error", Error: ve.Message})
	case errors.Is(err, model.ErrInsufficientFunds):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Kind: "insufficient_funds", Error: "insufficient balance"})
	case errors.Is(err, model.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Kind: "not_found", Error: "not found"})
	case errors.Is(err, model.ErrForbidden):
		WriteJSON(w, http.StatusForbidden, ErrorResponse{Kind: "forbidden", Error: "not allowed"})
	case errors.Is(err, model.ErrAlreadySettled):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Kind: "already_settled", Error: "order already settled"})
	case errors.Is(err, model.ErrUnauthenticated):
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Kind: "unauthenticated", Error: "missing or invalid credential"})
	default:
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Kind: "internal", Error: "internal error"})
	}
}
