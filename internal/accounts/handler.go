package accounts

import (
	"net/http"

	"optrade/internal/httputil"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance serves the wallet widget. Unauthenticated callers get a zeroed
// guest payload instead of a 401 so the front page renders before login.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request, userKey string) {
	if userKey == "" {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"userId":   "0",
			"wallet":   "guest",
			"balances": map[string]decimal.Decimal{"USDT": decimal.Zero},
		})
		return
	}
	u, err := h.svc.Get(r.Context(), userKey)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":   u.DisplayID,
		"wallet":   u.Address,
		"balances": u.Balances,
	})
}

func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request, userKey string) {
	u, err := h.svc.Get(r.Context(), userKey)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":      u.DisplayID,
		"wallet":      u.Address,
		"balances":    u.Balances,
		"login_count": u.LoginCount,
		"last_login":  u.LastLogin,
		"created_at":  u.CreatedAt,
	})
}

func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request, userKey string) {
	var req struct {
		Language string `json:"language"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	if err := h.svc.SetLanguage(r.Context(), userKey, req.Language); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "language": req.Language})
}

func (h *Handler) BindBankCard(w http.ResponseWriter, r *http.Request, userKey string) {
	var req struct {
		Name       string `json:"name"`
		CardNumber string `json:"card_number"`
		BankName   string `json:"bank_name"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	card, err := h.svc.BindBankCard(r.Context(), userKey, req.Name, req.CardNumber, req.BankName)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "bank_card": card})
}

// History returns the newest balance-change entries for the caller.
func (h *Handler) History(w http.ResponseWriter, r *http.Request, userKey string) {
	changes, err := h.svc.History(r.Context(), userKey, 100)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, changes)
}
