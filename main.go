package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/mchen/ripple/internal/config"
	"github.com/mchen/ripple/internal/docstore"
	"github.com/mchen/ripple/internal/docstore/badgerstore"
	"github.com/mchen/ripple/internal/docstore/sqlitestore"
	"github.com/mchen/ripple/internal/friendgraph"
	"github.com/mchen/ripple/internal/handlers"
	"github.com/mchen/ripple/internal/inbox"
	"github.com/mchen/ripple/internal/presence"
	"github.com/mchen/ripple/internal/profile"
	"github.com/mchen/ripple/internal/registry"
	"github.com/mchen/ripple/internal/stream"
	"github.com/mchen/ripple/internal/ws"
	"github.com/mchen/ripple/pkg/logging"
)

var addr = flag.String("addr", "", "http service address (overrides SERVER_ADDRESS)")

func main() {
	flag.Parse()

	cfg := config.Load()
	if *addr != "" {
		cfg.ServerAddress = *addr
	}

	logger := logging.New(logging.Config{
		JSON:    cfg.JSONLogs,
		Service: "ripple",
	})

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("store initialization failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	profiles := profile.New(store, logger)
	reg := registry.New(store, logger)
	msgs := stream.New(store, logger)
	graph := friendgraph.New(store, reg, logger)
	agg := inbox.New(store, profiles, presence.New(cfg.PresenceWindow), logger)

	userHandler := &handlers.UserHandler{Profiles: profiles, Graph: graph}
	chatHandler := &handlers.ChatHandler{Registry: reg, Stream: msgs, Inbox: agg}
	wsHandler := &ws.Handler{Stream: msgs, Inbox: agg, Logger: logger}

	r := mux.NewRouter()
	r.Use(loggingMiddleware(logger))

	// API Endpoints
	r.HandleFunc("/users", userHandler.CreateUser).Methods("POST")
	r.HandleFunc("/users/search", userHandler.SearchUsers).Methods("GET")
	r.HandleFunc("/users/{id}", userHandler.GetUser).Methods("GET")
	r.HandleFunc("/users/{id}", userHandler.UpdateProfile).Methods("PATCH")
	r.HandleFunc("/users/{id}/heartbeat", userHandler.Heartbeat).Methods("POST")
	r.HandleFunc("/users/{id}/requests", userHandler.PendingRequests).Methods("GET")
	r.HandleFunc("/requests", userHandler.SendRequest).Methods("POST")
	r.HandleFunc("/requests/{id}/resolve", userHandler.ResolveRequest).Methods("POST")
	r.HandleFunc("/conversations", chatHandler.OpenConversation).Methods("POST")
	r.HandleFunc("/conversations", chatHandler.GetInbox).Methods("GET")
	r.HandleFunc("/conversations/{id}/messages", chatHandler.SendMessage).Methods("POST")
	r.HandleFunc("/conversations/{id}/messages", chatHandler.GetMessages).Methods("GET")

	// Live streams
	r.HandleFunc("/ws/inbox", wsHandler.ServeInbox)
	r.HandleFunc("/ws/conversations/{id}", wsHandler.ServeConversation)

	logger.Info("starting server", "addr", cfg.ServerAddress, "backend", cfg.StoreBackend)
	if err := http.ListenAndServe(cfg.ServerAddress, r); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case "badger":
		return badgerstore.Open(badgerstore.DefaultConfig(cfg.BadgerDir, logger))
	default:
		return sqlitestore.New(cfg.SQLitePath, logger)
	}
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}
