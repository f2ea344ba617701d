package marketdata

import (
	"errors"
	"net/http"
	"strconv"

	"optrade/internal/httputil"
	"optrade/internal/model"
)

type Handler struct {
	coins  *CoinService
	klines *KlineService
}

func NewHandler(coins *CoinService, klines *KlineService) *Handler {
	return &Handler{coins: coins, klines: klines}
}

func (h *Handler) Coins(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.coins.Coins(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Kind: "upstream_error", Error: "market data unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tickers)
}

func (h *Handler) Klines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	payload, err := h.klines.Klines(r.Context(), q.Get("symbol"), q.Get("interval"), limit)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			httputil.WriteDomainError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{Kind: "upstream_error", Error: "market data unavailable"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
