package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StartingBalance is the demo balance every new wallet begins with.
var StartingBalance = decimal.NewFromInt(25000)

// Order types
const (
	OrderTypeBuy  = "BUY"
	OrderTypeSell = "SELL"
)

// Account is a registered demo user together with their wallet snapshot.
// Accounts are persisted as a single collection keyed by email.
type Account struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	Wallet       Wallet    `json:"wallet"`
}

// Wallet is the per-account balance, holdings and order history.
type Wallet struct {
	USDBalance decimal.Decimal            `json:"usdBalance"`
	Holdings   map[string]decimal.Decimal `json:"holdings"`
	Orders     []Order                    `json:"orders"`
}

// NewWallet returns a fresh wallet with the starting demo balance.
func NewWallet() Wallet {
	return Wallet{
		USDBalance: StartingBalance,
		Holdings:   map[string]decimal.Decimal{},
		Orders:     []Order{},
	}
}

// Clone returns a deep copy so callers can hand the wallet out without
// sharing the holdings map or order slice.
func (w Wallet) Clone() Wallet {
	c := w
	c.Holdings = make(map[string]decimal.Decimal, len(w.Holdings))
	for sym, qty := range w.Holdings {
		c.Holdings[sym] = qty
	}
	c.Orders = append([]Order(nil), w.Orders...)
	return c
}

// Order is an immutable record of one executed buy or sell. The ID is
// derived from the creation time.
type Order struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"` // "BUY" or "SELL"
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	USDAmount   decimal.Decimal `json:"usdAmount"`
	AssetAmount decimal.Decimal `json:"assetAmount"`
	Price       decimal.Decimal `json:"price"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Session is the authenticated identity, cached independently of the
// account record. It never carries credentials.
type Session struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Coin is one entry of the mock market feed. Price is a display string
// with thousands separators; consumers strip them before parsing.
type Coin struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Change string `json:"change"`
	Up     bool   `json:"up"`
}

// UserError is a recoverable domain failure whose message is shown to the
// user verbatim. Two UserErrors match under errors.Is when their codes are
// equal, so callers can test the category while messages stay dynamic.
type UserError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *UserError) Error() string { return e.Message }

// Is matches on the error code, ignoring the message.
func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	return ok && t.Code == e.Code
}
