package httpserver

import (
	"net/http"

	"optrade/internal/accounts"
	"optrade/internal/admin"
	"optrade/internal/auth"
	"optrade/internal/health"
	"optrade/internal/httputil"
	"optrade/internal/marketdata"
	"optrade/internal/orders"
	"optrade/internal/settlement"
	"optrade/internal/withdraws"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	AuthHandler       *auth.Handler
	AccountsHandler   *accounts.Handler
	OrderHandler      *orders.Handler
	SettlementHandler *settlement.Handler
	WithdrawHandler   *withdraws.Handler
	MarketHandler     *marketdata.Handler
	AdminHandler      *admin.Handler
	HealthHandler     *health.Handler
	AuthService       *auth.Service
	AdminWSHandler    http.Handler
	AllowedOrigin     string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// same allow-list as the websocket handshake; disallowed origins
			// get no CORS headers at all
			origin := r.Header.Get("Origin")
			if origin != "" && allowOrigin(r, d.AllowedOrigin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(SecurityHeaders)
	r.Use(RateLimit)

	r.Get("/health", d.HealthHandler.Health)
	r.Get("/metrics", d.HealthHandler.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/nonce", d.AuthHandler.Nonce)
		r.Post("/auth/verify", d.AuthHandler.Verify)
		r.Post("/guest-login", d.AuthHandler.GuestLogin)

		r.Get("/coins", d.MarketHandler.Coins)
		r.Get("/kline", d.MarketHandler.Klines)

		// token optional: anonymous visitors get a guest payload
		r.With(WithOptionalAuth(d.AuthService)).Get("/user/balance", func(w http.ResponseWriter, r *http.Request) {
			userKey, _ := UserKey(r)
			d.AccountsHandler.Balance(w, r, userKey)
		})

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/userinfo", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.AccountsHandler.UserInfo(w, r, userKey)
			})
			r.Get("/user/history", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.AccountsHandler.History(w, r, userKey)
			})
			r.Post("/language", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.AccountsHandler.SetLanguage(w, r, userKey)
			})
			r.Post("/bankcard", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.AccountsHandler.BindBankCard(w, r, userKey)
			})
			r.Post("/order/create", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.OrderHandler.Create(w, r, userKey)
			})
			r.Get("/order/list", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.OrderHandler.List(w, r, userKey)
			})
			r.Post("/order/settle", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.SettlementHandler.Settle(w, r, userKey)
			})
			r.Post("/withdraw/create", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.WithdrawHandler.Create(w, r, userKey)
			})
			r.Get("/withdraw/list", func(w http.ResponseWriter, r *http.Request) {
				userKey, ok := UserKey(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Kind: "unauthenticated", Error: "unauthorized"})
					return
				}
				d.WithdrawHandler.List(w, r, userKey)
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", d.AdminHandler.Login)
		r.Get("/ws", d.AdminWSHandler.ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(admin.AuthMiddleware(d.AuthService))
			r.Get("/users", d.AdminHandler.Users)
			r.Get("/orders", d.AdminHandler.Orders)
			r.Get("/withdraws", d.AdminHandler.Withdraws)
			r.Post("/balance/add", d.AdminHandler.AdjustBalance)
			r.Post("/order/settle", d.AdminHandler.Settle)
			r.Post("/withdraw/approve", d.AdminHandler.ApproveWithdraw)
			r.Post("/withdraw/reject", d.AdminHandler.RejectWithdraw)
			r.Post("/control-mode", d.AdminHandler.SetControlMode)
			r.Post("/remark", d.AdminHandler.SetRemark)
		})
	})

	return r
}
