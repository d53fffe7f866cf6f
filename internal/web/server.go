package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rangelock/rvm/internal/catalog"
	"github.com/rangelock/rvm/internal/factory"
	"github.com/rangelock/rvm/internal/logger"
	"github.com/rangelock/rvm/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes the read-only observable state of deployed vaults.
// There is no mutating endpoint; operations go through the controller API,
// never through HTTP.
type WebServer struct {
	router  *mux.Router
	port    string
	factory *factory.Factory
	catalog *catalog.Catalog
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, f *factory.Factory, c *catalog.Catalog) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		factory: f,
		catalog: c,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	api.HandleFunc("/vaults", ws.handleGetVaults).Methods("GET")
	api.HandleFunc("/vaults/{addr}", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/vaults/{addr}/events", ws.handleGetVaultEvents).Methods("GET")
	api.HandleFunc("/events", ws.handleGetEvents).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{"status": "ok"})
}

func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	type strategyView struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Denom0 string `json:"denom0"`
		Denom1 string `json:"denom1"`
		Router string `json:"router"`
	}
	strategies := ws.catalog.List()
	views := make([]strategyView, 0, len(strategies))
	for _, s := range strategies {
		views = append(views, strategyView{
			ID:     s.ID,
			Name:   s.Name,
			Denom0: s.Pair.Denom0,
			Denom1: s.Pair.Denom1,
			Router: s.Router.Address(),
		})
	}
	ws.writeJSON(w, views)
}

func (ws *WebServer) handleGetVaults(w http.ResponseWriter, r *http.Request) {
	controllers := ws.factory.All()
	views := make([]any, 0, len(controllers))
	for _, c := range controllers {
		views = append(views, c.Observe())
	}
	ws.writeJSON(w, views)
}

func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	controller, err := ws.factory.Vault(addr)
	if err != nil {
		http.Error(w, "vault not found", http.StatusNotFound)
		return
	}
	ws.writeJSON(w, controller.Observe())
}

func (ws *WebServer) handleGetVaultEvents(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	if _, err := ws.factory.Vault(addr); err != nil {
		http.Error(w, "vault not found", http.StatusNotFound)
		return
	}
	events, err := state.EventsByVault(addr, parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to query vault events")
		http.Error(w, "failed to query events", http.StatusInternalServerError)
		return
	}
	ws.writeJSON(w, events)
}

func (ws *WebServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := state.RecentEvents(parseLimit(r))
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to query recent events")
		http.Error(w, "failed to query events", http.StatusInternalServerError)
		return
	}
	ws.writeJSON(w, events)
}

func parseLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 50
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}
