package withdraws

import (
	"net/http"

	"optrade/internal/httputil"
	"optrade/internal/model"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, userKey string) {
	var req struct {
		Symbol          string `json:"symbol"`
		Amount          string `json:"amount"`
		WithdrawAddress string `json:"withdraw_address"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteDomainError(w, model.Validationf("amount must be a decimal string"))
		return
	}
	wd, balances, err := h.svc.Create(r.Context(), userKey, req.Symbol, req.WithdrawAddress, amount)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"withdraw": wd,
		"balances": balances,
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userKey string) {
	list, err := h.svc.ListByUser(r.Context(), userKey)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if list == nil {
		list = []model.Withdraw{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
