package orders

import (
	"net/http"

	"optrade/internal/httputil"
	"optrade/internal/model"
	"optrade/internal/types"

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
		Symbol    string `json:"symbol"`
		Amount    string `json:"amount"`
		Direction string `json:"direction"`
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
	o, balances, err := h.svc.Open(r.Context(), userKey, req.Symbol, amount, types.OrderDirection(req.Direction))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"order":    o,
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
		list = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}
