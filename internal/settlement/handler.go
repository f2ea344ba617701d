package settlement

import (
	"net/http"

	"optrade/internal/httputil"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Settle closes the caller's own order with the outcome and payout percent
// the client reports. The payout percent arrives as a raw string so malformed
// values can settle at zero instead of being rejected.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request, userKey string) {
	var req struct {
		OrderID       string `json:"order_id"`
		IsWin         bool   `json:"is_win"`
		PayoutPercent string `json:"payout_percent"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	res, err := h.engine.Settle(r.Context(), Request{
		OrderID:       req.OrderID,
		CallerKey:     userKey,
		IsWin:         req.IsWin,
		PayoutPercent: req.PayoutPercent,
	})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"order":    res.Order,
		"balances": res.Balances,
		"is_win":   res.IsWin,
	})
}
