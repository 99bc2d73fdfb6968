// Package api exposes the wallet and auth core over HTTP for the site
// frontend. Domain failures come back as result objects with a
// human-readable message, never as bare status text.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cryptonova/tradesim/internal/auth"
	"github.com/cryptonova/tradesim/internal/market"
	"github.com/cryptonova/tradesim/internal/metrics"
	"github.com/cryptonova/tradesim/internal/models"
	"github.com/cryptonova/tradesim/internal/wallet"
)

type contextKey string

const emailKey contextKey = "email"

// Handler contains dependencies for HTTP handlers.
type Handler struct {
	Auth   *auth.Service
	Ledger *wallet.Ledger
	Feed   *market.Feed
	Log    *zap.SugaredLogger
}

// NewHandler creates a new handler.
func NewHandler(authService *auth.Service, ledger *wallet.Ledger, feed *market.Feed, log *zap.SugaredLogger) *Handler {
	return &Handler{Auth: authService, Ledger: ledger, Feed: feed, Log: log}
}

// Routes builds the API router. Trading and wallet routes require a valid
// token matching the active session.
func (h *Handler) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Post("/auth/signup", h.SignUp)
	r.Post("/auth/login", h.Login)
	r.Get("/auth/session", h.Session)
	r.Get("/coins", h.Coins)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/auth/logout", h.Logout)
		r.Post("/orders/buy", h.PlaceBuyOrder)
		r.Post("/orders/sell", h.PlaceSellOrder)
		r.Get("/wallet", h.Wallet)
	})

	return r
}

// SignUp handles account creation.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "Invalid request body",
		})
		return
	}

	session, err := h.Auth.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Ledger.Reconcile(r.Context())

	token, err := h.Auth.IssueToken(session.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    session,
	})
}

// Login handles authentication.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "Invalid request body",
		})
		return
	}

	session, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Ledger.Reconcile(r.Context())

	token, err := h.Auth.IssueToken(session.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user":    session,
	})
}

// Logout clears the session and resets the ledger to the default wallet.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.Ledger.Reconcile(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Session reports the restored session, if any.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	session := h.Auth.CurrentSession(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    session,
	})
}

// Coins returns the current mock price list.
func (h *Handler) Coins(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Feed.List())
}

// JWTAuthMiddleware verifies the bearer token and checks it still matches
// the active session.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			h.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"success": false, "error": "Authorization header required",
			})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		email, err := h.Auth.ParseToken(tokenString)
		if err != nil {
			h.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"success": false, "error": "Invalid or expired token",
			})
			return
		}

		session := h.Auth.CurrentSession(r.Context())
		if session == nil || session.Email != email {
			h.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"success": false, "error": "Session expired. Please log in again.",
			})
			return
		}

		ctx := context.WithValue(r.Context(), emailKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// orderRequest accepts the amount as either a JSON string or number; the
// ledger owns parsing and validation.
type orderRequest struct {
	Symbol string          `json:"symbol"`
	Amount json.RawMessage `json:"amount"`
}

func (req *orderRequest) amount() string {
	return strings.Trim(strings.TrimSpace(string(req.Amount)), `"`)
}

// PlaceBuyOrder executes a buy against the current feed price.
func (h *Handler) PlaceBuyOrder(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, models.OrderTypeBuy, h.Ledger.PlaceBuyOrder)
}

// PlaceSellOrder executes a sell against the current feed price.
func (h *Handler) PlaceSellOrder(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, models.OrderTypeSell, h.Ledger.PlaceSellOrder)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, side string, place func(context.Context, models.Coin, string) (decimal.Decimal, error)) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "Invalid request body",
		})
		return
	}

	coin, ok := h.Feed.Get(req.Symbol)
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "Unknown asset.",
		})
		return
	}

	assetAmount, err := place(r.Context(), coin, req.amount())
	if err != nil {
		var userErr *models.UserError
		if errors.As(err, &userErr) {
			metrics.OrderRejections.WithLabelValues(userErr.Code).Inc()
		}
		h.writeError(w, err)
		return
	}

	metrics.OrdersTotal.WithLabelValues(side).Inc()
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":     true,
		"assetAmount": assetAmount,
	})
}

// Wallet returns the ledger snapshot for rendering.
func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	snap := h.Ledger.Snapshot()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"usdBalance":       snap.USDBalance,
		"formattedBalance": wallet.FormatBalance(snap.USDBalance),
		"holdings":         snap.Holdings,
		"orders":           snap.Orders,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Errorw("failed to encode response", "error", err)
	}
}

// writeError maps a domain failure to a result object with its message,
// and anything unexpected to a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var userErr *models.UserError
	if errors.As(err, &userErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": userErr.Message,
		})
		return
	}
	h.Log.Errorw("request failed", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"success": false, "error": "Something went wrong. Please try again.",
	})
}
