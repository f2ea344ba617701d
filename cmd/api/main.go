package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"optrade/internal/accounts"
	"optrade/internal/admin"
	"optrade/internal/auth"
	"optrade/internal/config"
	"optrade/internal/db"
	"optrade/internal/events"
	"optrade/internal/geoip"
	"optrade/internal/health"
	"optrade/internal/httpserver"
	"optrade/internal/marketdata"
	"optrade/internal/orders"
	"optrade/internal/settlement"
	"optrade/internal/store"
	"optrade/internal/withdraws"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	startedAt := time.Now()

	var st store.Store
	var pool *pgxpool.Pool
	if cfg.DBDSN != "" {
		pool, err = db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		st = store.NewPostgres(pool)
		log.Printf("using postgres store")
	} else {
		st = store.NewMemory()
		log.Printf("DB_DSN not set, using in-memory store")
	}

	bus := events.NewBus()
	emitter := events.NewEmitter(bus)

	accountSvc := accounts.NewService(st)
	orderSvc := orders.NewService(st, emitter)
	withdrawSvc := withdraws.NewService(st, emitter)
	engine := settlement.NewEngine(st, emitter, settlement.OperatorControl{})
	authSvc := auth.NewService(accountSvc, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	geo := geoip.NewResolver(cfg.GeoIPBaseURL)

	coinSvc := marketdata.NewCoinService(cfg.OKXBaseURL)
	klineSvc := marketdata.NewKlineService(cfg.BinanceBaseURL)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:       auth.NewHandler(authSvc),
		AccountsHandler:   accounts.NewHandler(accountSvc),
		OrderHandler:      orders.NewHandler(orderSvc),
		SettlementHandler: settlement.NewHandler(engine),
		WithdrawHandler:   withdraws.NewHandler(withdrawSvc),
		MarketHandler:     marketdata.NewHandler(coinSvc, klineSvc),
		AdminHandler:      admin.NewHandler(authSvc, accountSvc, orderSvc, withdrawSvc, engine, geo, emitter, cfg.AdminPasswordHash),
		HealthHandler:     health.NewHandler(pool, startedAt),
		AuthService:       authSvc,
		AdminWSHandler:    httpserver.NewAdminWSHandler(bus, authSvc, cfg.WebSocketOrigin),
		AllowedOrigin:     cfg.WebSocketOrigin,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("server listening on %s", cfg.HTTPAddr)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
