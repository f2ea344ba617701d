package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"optrade/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler serves readiness and a small Prometheus-format metrics page. With
// the in-memory store the pool is nil and the service reports healthy without
// a database check.
type Handler struct {
	pool      *pgxpool.Pool
	startedAt time.Time
}

func NewHandler(pool *pgxpool.Pool, startedAt time.Time) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{pool: pool, startedAt: start}
}

type healthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	UptimeSec int64   `json:"uptime_sec"`
	Database  dbState `json:"database"`
}

type dbState struct {
	Configured bool   `json:"configured"`
	Reachable  bool   `json:"reachable"`
	PingMs     int64  `json:"ping_ms"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) pingDB(ctx context.Context) dbState {
	if h.pool == nil {
		return dbState{Configured: false, Reachable: true}
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	start := time.Now()
	err := h.pool.Ping(pingCtx)
	state := dbState{Configured: true, PingMs: time.Since(start).Milliseconds()}
	if err != nil {
		state.Error = err.Error()
		return state
	}
	state.Reachable = true
	return state
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	db := h.pingDB(r.Context())
	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, httpStatus, healthResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(h.uptime(now).Seconds()),
		Database:  db,
	})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	db := h.pingDB(r.Context())
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	dbUp := 0
	if db.Reachable {
		dbUp = 1
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "# HELP optrade_up Service process is running.\n")
	_, _ = fmt.Fprintf(w, "# TYPE optrade_up gauge\n")
	_, _ = fmt.Fprintf(w, "optrade_up 1\n")

	_, _ = fmt.Fprintf(w, "# HELP optrade_uptime_seconds Service uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE optrade_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "optrade_uptime_seconds %d\n", int64(h.uptime(now).Seconds()))

	_, _ = fmt.Fprintf(w, "# HELP optrade_db_up Database ping status (1=ok,0=down).\n")
	_, _ = fmt.Fprintf(w, "# TYPE optrade_db_up gauge\n")
	_, _ = fmt.Fprintf(w, "optrade_db_up %d\n", dbUp)
	_, _ = fmt.Fprintf(w, "optrade_db_ping_milliseconds %d\n", db.PingMs)

	_, _ = fmt.Fprintf(w, "# HELP optrade_go_goroutines Number of goroutines.\n")
	_, _ = fmt.Fprintf(w, "# TYPE optrade_go_goroutines gauge\n")
	_, _ = fmt.Fprintf(w, "optrade_go_goroutines %d\n", runtime.NumGoroutine())
	_, _ = fmt.Fprintf(w, "optrade_go_mem_alloc_bytes %d\n", mem.Alloc)
	_, _ = fmt.Fprintf(w, "optrade_go_mem_sys_bytes %d\n", mem.Sys)
	_, _ = fmt.Fprintf(w, "optrade_go_gc_count %d\n", mem.NumGC)

	if h.pool != nil {
		stat := h.pool.Stat()
		_, _ = fmt.Fprintf(w, "# HELP optrade_db_pool_total_conns Current total DB pool connections.\n")
		_, _ = fmt.Fprintf(w, "# TYPE optrade_db_pool_total_conns gauge\n")
		_, _ = fmt.Fprintf(w, "optrade_db_pool_total_conns %d\n", stat.TotalConns())
		_, _ = fmt.Fprintf(w, "optrade_db_pool_idle_conns %d\n", stat.IdleConns())
		_, _ = fmt.Fprintf(w, "optrade_db_pool_acquired_conns %d\n", stat.AcquiredConns())
		_, _ = fmt.Fprintf(w, "optrade_db_pool_max_conns %d\n", stat.MaxConns())
	}
}
