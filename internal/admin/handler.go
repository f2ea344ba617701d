package admin

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"optrade/internal/accounts"
	"optrade/internal/auth"
	"optrade/internal/events"
	"optrade/internal/geoip"
	"optrade/internal/httputil"
	"optrade/internal/model"
	"optrade/internal/orders"
	"optrade/internal/settlement"
	"optrade/internal/types"
	"optrade/internal/withdraws"

	"github.com/shopspring/decimal"
)

// Handler exposes the operator surface: user listing with risk controls,
// balance adjustment, withdraw review and forced settlement.
type Handler struct {
	auth         *auth.Service
	accounts     *accounts.Service
	orders       *orders.Service
	withdraws    *withdraws.Service
	engine       *settlement.Engine
	geo          *geoip.Resolver
	emitter      *events.Emitter
	passwordHash []byte
}

func NewHandler(
	authSvc *auth.Service,
	accts *accounts.Service,
	ords *orders.Service,
	wds *withdraws.Service,
	engine *settlement.Engine,
	geo *geoip.Resolver,
	emitter *events.Emitter,
	passwordHash string,
) *Handler {
	return &Handler{
		auth:         authSvc,
		accounts:     accts,
		orders:       ords,
		withdraws:    wds,
		engine:       engine,
		geo:          geo,
		emitter:      emitter,
		passwordHash: []byte(passwordHash),
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "invalid credentials"})
		return
	}
	token, err := h.auth.SignAdminToken()
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

type userView struct {
	model.User
	Location string `json:"location"`
}

// Users lists every account, newest first, with a resolved login location.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.List(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		ip := u.LastLoginIP
		if ip == "" {
			ip = u.RegisterIP
		}
		out = append(out, userView{User: u, Location: h.geo.Resolve(r.Context(), ip)})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListAll(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if list == nil {
		list = []model.Order{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Withdraws(w http.ResponseWriter, r *http.Request) {
	list, err := h.withdraws.ListAll(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if list == nil {
		list = []model.Withdraw{}
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// AdjustBalance credits or debits any symbol for any user. The adjustment is
// unguarded: operators may take a balance negative.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string `json:"wallet"`
		Symbol string `json:"symbol"`
		Delta  string `json:"delta"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	delta, err := decimal.NewFromString(req.Delta)
	if err != nil {
		httputil.WriteDomainError(w, model.Validationf("delta must be a decimal string"))
		return
	}
	balance, err := h.accounts.Adjust(r.Context(), req.Wallet, req.Symbol, delta, false, types.ChangeReasonAdminAdjust, "admin")
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	h.emitter.Emit(types.EventNewNotice, events.NoticePayload{Message: "balance adjusted for " + accounts.NormalizeKey(req.Wallet)})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// Settle closes any order regardless of owner. The already-settled guard
// still applies.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       string `json:"order_id"`
		IsWin         bool   `json:"is_win"`
		PayoutPercent string `json:"payout_percent"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	res, err := h.engine.Settle(r.Context(), settlement.Request{
		OrderID:       req.OrderID,
		AdminOverride: true,
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

func (h *Handler) ApproveWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	wd, err := h.withdraws.Approve(r.Context(), req.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wd)
}

func (h *Handler) RejectWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	wd, err := h.withdraws.Reject(r.Context(), req.ID, req.Reason)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wd)
}

// SetControlMode pins future settlements for a user to always win or always
// lose, or back to honoring the reported outcome.
func (h *Handler) SetControlMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string `json:"wallet"`
		Mode   string `json:"mode"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	if err := h.accounts.SetControlMode(r.Context(), req.Wallet, types.ControlMode(req.Mode)); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SetRemark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string `json:"wallet"`
		Remark string `json:"remark"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Kind: "validation_error", Error: "invalid json body"})
		return
	}
	if err := h.accounts.SetRemark(r.Context(), req.Wallet, req.Remark); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
