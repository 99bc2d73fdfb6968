package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cryptonova/tradesim/internal/auth"
	"github.com/cryptonova/tradesim/internal/market"
	"github.com/cryptonova/tradesim/internal/store"
	"github.com/cryptonova/tradesim/internal/wallet"
)

type testEnv struct {
	router *chi.Mux
	auth   *auth.Service
	ledger *wallet.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	kv := store.NewMemoryStore()
	log := zap.NewNop().Sugar()
	authService := auth.NewService(kv, log, "test-secret")
	ledger := wallet.NewLedger(authService)
	feed := market.NewFeed(0)

	h := NewHandler(authService, ledger, feed, log)
	return &testEnv{router: h.Routes(), auth: authService, ledger: ledger}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if len(w.Body.Bytes()) > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func (e *testEnv) signUp(t *testing.T, name, email, password string) string {
	t.Helper()
	w, resp := e.do(t, "POST", "/auth/signup", "", map[string]interface{}{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHandler_SignUp(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name: "Success",
			body: map[string]interface{}{
				"name": "Alice", "email": "alice@example.com", "password": "password123",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "MissingFields",
			body: map[string]interface{}{
				"email": "alice@example.com", "password": "password123",
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "All fields are required.",
		},
		{
			name: "ShortPassword",
			body: map[string]interface{}{
				"name": "Alice", "email": "alice@example.com", "password": "abc",
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Password must be at least 6 characters.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w, resp := env.do(t, "POST", "/auth/signup", "", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, false, resp["success"])
				assert.Equal(t, tt.expectedError, resp["error"])
				return
			}
			assert.Equal(t, true, resp["success"])
			assert.NotEmpty(t, resp["token"])
			user, ok := resp["user"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "alice@example.com", user["email"])
		})
	}
}

func TestHandler_SignUp_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "Alice", "alice@example.com", "password123")

	w, resp := env.do(t, "POST", "/auth/signup", "", map[string]interface{}{
		"name": "Alice Again", "email": "alice@example.com", "password": "different456",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "An account with this email already exists.", resp["error"])
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "Alice", "alice@example.com", "password123")

	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "Success",
			body:           map[string]interface{}{"email": "alice@example.com", "password": "password123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "WrongPassword",
			body:           map[string]interface{}{"email": "alice@example.com", "password": "wrongpass"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Incorrect password.",
		},
		{
			name:           "UnknownEmail",
			body:           map[string]interface{}{"email": "bob@example.com", "password": "password123"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "No account found with this email.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, "POST", "/auth/login", "", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, resp["error"])
				return
			}
			assert.Equal(t, true, resp["success"])
			assert.NotEmpty(t, resp["token"])
		})
	}
}

func TestHandler_Session(t *testing.T) {
	env := newTestEnv(t)

	// Anonymous: no user.
	w, resp := env.do(t, "GET", "/auth/session", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, resp["user"])

	env.signUp(t, "Alice", "alice@example.com", "password123")

	w, resp = env.do(t, "GET", "/auth/session", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	user, ok := resp["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", user["email"])
}

func TestHandler_Coins(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/coins", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var coins []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &coins))
	assert.NotEmpty(t, coins)
	assert.Equal(t, "BTC", coins[0]["symbol"])
}

func TestHandler_PlaceBuyOrder(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "Alice", "alice@example.com", "password123")

	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "SuccessStringAmount",
			body:           map[string]interface{}{"symbol": "BTC", "amount": "100"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "SuccessNumericAmount",
			body:           map[string]interface{}{"symbol": "ETH", "amount": 250},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "InvalidAmount",
			body:           map[string]interface{}{"symbol": "BTC", "amount": "abc"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Enter a valid amount.",
		},
		{
			name:           "UnknownAsset",
			body:           map[string]interface{}{"symbol": "NOPE", "amount": "100"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Unknown asset.",
		},
		{
			name:           "InsufficientFunds",
			body:           map[string]interface{}{"symbol": "BTC", "amount": "999999"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, "POST", "/orders/buy", token, tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code, "body: %s", w.Body.String())
			if tt.expectedStatus != http.StatusCreated {
				assert.Equal(t, false, resp["success"])
				if tt.expectedError != "" {
					assert.Equal(t, tt.expectedError, resp["error"])
				}
				return
			}
			assert.Equal(t, true, resp["success"])
			assert.NotEmpty(t, resp["assetAmount"])
		})
	}
}

func TestHandler_SellWithoutHoldings(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "Alice", "alice@example.com", "password123")

	w, resp := env.do(t, "POST", "/orders/sell", token, map[string]interface{}{
		"symbol": "SOL", "amount": "50",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You don't own any SOL.", resp["error"])
}

func TestHandler_Wallet(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "Alice", "alice@example.com", "password123")

	btc := map[string]interface{}{"symbol": "BTC", "amount": "100"}
	w, _ := env.do(t, "POST", "/orders/buy", token, btc)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := env.do(t, "GET", "/wallet", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "24900", resp["usdBalance"])
	assert.Equal(t, "24,900.00", resp["formattedBalance"])

	holdings, ok := resp["holdings"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, holdings, "BTC")

	orders, ok := resp["orders"].([]interface{})
	require.True(t, ok)
	assert.Len(t, orders, 1)
}

func TestHandler_AuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "Buy", method: "POST", path: "/orders/buy"},
		{name: "Sell", method: "POST", path: "/orders/sell"},
		{name: "Wallet", method: "GET", path: "/wallet"},
		{name: "Logout", method: "POST", path: "/auth/logout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := env.do(t, tt.method, tt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestHandler_LogoutInvalidatesToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "Alice", "alice@example.com", "password123")

	w, resp := env.do(t, "POST", "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])

	// The token no longer matches an active session.
	w, resp = env.do(t, "POST", "/orders/buy", token, map[string]interface{}{
		"symbol": "BTC", "amount": "100",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Session expired. Please log in again.", resp["error"])
}

func TestHandler_LogoutThenLoginRestoresWallet(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "Alice", "alice@example.com", "password123")

	w, _ := env.do(t, "POST", "/orders/buy", token, map[string]interface{}{
		"symbol": "BTC", "amount": "100",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = env.do(t, "POST", "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, "POST", "/auth/login", "", map[string]interface{}{
		"email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	newToken := resp["token"].(string)

	w, resp = env.do(t, "GET", "/wallet", newToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "24900", resp["usdBalance"])
}
