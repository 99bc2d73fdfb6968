package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cryptonova/tradesim/internal/api"
	"github.com/cryptonova/tradesim/internal/auth"
	"github.com/cryptonova/tradesim/internal/config"
	"github.com/cryptonova/tradesim/internal/market"
	"github.com/cryptonova/tradesim/internal/metrics"
	"github.com/cryptonova/tradesim/internal/models"
	"github.com/cryptonova/tradesim/internal/store"
	"github.com/cryptonova/tradesim/internal/wallet"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type priceHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	log     *zap.SugaredLogger
}

func newPriceHub(log *zap.SugaredLogger) *priceHub {
	return &priceHub{clients: make(map[*wsClient]bool), log: log}
}

// broadcast pushes the refreshed price list to every connected client.
func (h *priceHub) broadcast(coins []models.Coin) {
	data, err := json.Marshal(coins)
	if err != nil {
		h.log.Errorw("failed to marshal price list", "error", err)
		return
	}

	h.mu.RLock()
	stale := make([]*wsClient, 0)
	for client := range h.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			delete(h.clients, client)
			metrics.WebSocketClients.Dec()
		}
		h.mu.Unlock()
	}
}

func (h *priceHub) handle(feed *market.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warnw("failed to upgrade connection", "error", err)
			return
		}

		client := &wsClient{conn: conn}
		h.mu.Lock()
		h.clients[client] = true
		h.mu.Unlock()
		metrics.WebSocketClients.Inc()

		// Send the current prices immediately.
		h.broadcast(feed.List())

		// Keep connection alive and handle disconnection.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				if h.clients[client] {
					delete(h.clients, client)
					metrics.WebSocketClients.Dec()
				}
				h.mu.Unlock()
				break
			}
		}
	}
}

// openStore picks the persistence backend from configuration: PostgreSQL,
// then Redis, then the file store.
func openStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (store.KV, func(), error) {
	switch {
	case cfg.DatabaseURI != "":
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("using postgres store")
		return pg, pg.Close, nil
	case cfg.RedisAddress != "":
		rs := store.NewRedisStore(cfg.RedisAddress)
		log.Infow("using redis store", "addr", cfg.RedisAddress)
		return rs, func() { rs.Close() }, nil
	default:
		fs, err := store.NewFileStore(cfg.DataFile)
		if err != nil {
			return nil, nil, err
		}
		log.Infow("using file store", "path", cfg.DataFile)
		return fs, func() {}, nil
	}
}

// Main entry point: wires the store, auth service, wallet ledger, mock
// price feed and HTTP server.
func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to open store", "error", err)
	}
	defer closeStore()

	authService := auth.NewService(kv, sugar, cfg.TokenSecret)

	// Restore any persisted session before serving.
	ledger := wallet.NewLedger(authService)
	ledger.Reconcile(ctx)

	feed := market.NewFeed(cfg.PriceRefresh)
	hub := newPriceHub(sugar)
	feed.Start(ctx, func(coins []models.Coin) {
		metrics.PriceRefreshes.Inc()
		hub.broadcast(coins)
	})

	handler := api.NewHandler(authService, ledger, feed, sugar)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware)

	r.Mount("/api", handler.Routes())
	r.Get("/ws", hub.handle(feed))
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/*", http.FileServer(http.Dir(cfg.FrontendDir)))

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		sugar.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			sugar.Errorw("server shutdown error", "error", err)
		}
	}()

	sugar.Infow("starting server", "addr", cfg.RunAddress)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("server failed", "error", err)
	}
}
