package auth

import (
	"net/http"

	"optrade/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Nonce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	nonce, err := h.svc.Nonce(req.Address)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address   string `json:"address"`
		Signature string `json:"signature"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	token, u, err := h.svc.Verify(r.Context(), req.Address, req.Signature, httputil.ClientIP(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"userId":   u.DisplayID,
		"wallet":   u.Address,
		"balances": u.Balances,
	})
}

func (h *Handler) GuestLogin(w http.ResponseWriter, r *http.Request) {
	token, u, err := h.svc.GuestLogin(r.Context(), httputil.ClientIP(r))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"userId":   u.DisplayID,
		"wallet":   u.Address,
		"balances": u.Balances,
	})
}
