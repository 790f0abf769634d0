package adminhttp

import (
	"net/http"
	"net/http/pprof"

	"arbengine/internal/orchestrator"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies bundles what the admin router needs: the risk gate's
// kill-switch, the orchestrator's shard registry for read-only
// introspection, and the Basic Auth credentials gating mutating routes.
type Dependencies struct {
	Gate          KillSwitch
	Registry      *orchestrator.Registry
	AdminUsername string
	AdminPassword string
	Log           *zap.Logger
}

// NewRouter builds the admin HTTP surface: health, Prometheus metrics,
// pprof, kill-switch control, and shard registry introspection. None of
// these routes touch the trading hot path (price ingestion, evaluation,
// risk validation, publish) — they exist purely for an operator or a
// monitoring system.
func NewRouter(deps Dependencies) *mux.Router {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(recovery(log))
	router.Use(requestLogging(log))

	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if deps.Gate != nil {
		admin := router.PathPrefix("/admin").Subrouter()
		admin.HandleFunc("/status", statusHandler(deps.Gate)).Methods(http.MethodGet)

		guarded := admin.NewRoute().Subrouter()
		guarded.Use(basicAuth(deps.AdminUsername, deps.AdminPassword))
		guarded.HandleFunc("/halt", haltHandler(deps.Gate)).Methods(http.MethodPost)
		guarded.HandleFunc("/resume", resumeHandler(deps.Gate)).Methods(http.MethodPost)
	}

	if deps.Registry != nil {
		router.HandleFunc("/admin/shards", shardsHandler(deps.Registry)).Methods(http.MethodGet)
		router.HandleFunc("/admin/shards/healthy", healthyShardsHandler(deps.Registry)).Methods(http.MethodGet)
	}

	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(basicAuth(deps.AdminUsername, deps.AdminPassword))
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.Handle("/heap", pprof.Handler("heap"))
	debug.Handle("/goroutine", pprof.Handler("goroutine"))
	debug.Handle("/block", pprof.Handler("block"))
	debug.Handle("/threadcreate", pprof.Handler("threadcreate"))
	debug.Handle("/mutex", pprof.Handler("mutex"))
	debug.Handle("/allocs", pprof.Handler("allocs"))

	return router
}
