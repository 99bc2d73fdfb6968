// Package wallet implements the in-memory ledger that tracks the active
// session's demo balance, holdings and order history.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cryptonova/tradesim/internal/auth"
	"github.com/cryptonova/tradesim/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Error categories surfaced to users. Rejected orders carry dynamic
// messages; match with errors.Is.
var (
	ErrInvalidAmount        = &models.UserError{Code: "invalid_amount", Message: "Enter a valid amount."}
	ErrInsufficientFunds    = &models.UserError{Code: "insufficient_funds", Message: "Insufficient balance."}
	ErrInsufficientHoldings = &models.UserError{Code: "insufficient_holdings", Message: "Insufficient holdings."}
)

// USD balances round to 2 decimal places, asset quantities to 8.
const (
	usdScale   = 2
	assetScale = 8
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatBalance renders an amount with two decimal places and en-US
// thousands separators. Pure, no side effects.
func FormatBalance(amount decimal.Decimal) string {
	return printer.Sprintf("%.2f", amount.InexactFloat64())
}

// Ledger is the authoritative working copy of the active session's wallet.
// It is reconciled with the account store on session transitions and
// flushed back after every mutation. A mutex guards it because HTTP
// handlers run concurrently, even though each store is logically a
// single-reader/single-writer domain.
type Ledger struct {
	mu     sync.Mutex
	auth   *auth.Service
	wallet models.Wallet
}

// NewLedger creates a ledger starting from the default wallet snapshot.
func NewLedger(authService *auth.Service) *Ledger {
	return &Ledger{
		auth:   authService,
		wallet: models.NewWallet(),
	}
}

// Reconcile aligns the ledger with the current session. Without a session
// the ledger resets to the default snapshot and nothing is persisted (a
// previous user's stored wallet must survive the reset). With a session it
// loads the stored wallet if present, else keeps the default.
func (l *Ledger) Reconcile(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.auth.CurrentSession(ctx) == nil {
		l.wallet = models.NewWallet()
		return
	}
	if saved := l.auth.LoadWallet(ctx); saved != nil {
		l.wallet = saved.Clone()
	}
}

// Snapshot returns a copy of the current wallet for rendering.
func (l *Ledger) Snapshot() models.Wallet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallet.Clone()
}

// PlaceBuyOrder exchanges usdAmount of balance for coin at the price the
// caller's coin snapshot carries. The ledger does not re-fetch the price;
// the order records whatever it was given. Returns the asset quantity
// bought.
func (l *Ledger) PlaceBuyOrder(ctx context.Context, coin models.Coin, usdAmount string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	usd, err := parseAmount(usdAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if usd.GreaterThan(l.wallet.USDBalance) {
		return decimal.Zero, &models.UserError{
			Code:    ErrInsufficientFunds.Code,
			Message: fmt.Sprintf("Insufficient balance. You have $%s available.", FormatBalance(l.wallet.USDBalance)),
		}
	}
	price, err := parsePrice(coin.Price)
	if err != nil {
		return decimal.Zero, err
	}
	assetAmount := usd.Div(price)

	l.wallet.USDBalance = l.wallet.USDBalance.Sub(usd).Round(usdScale)
	l.wallet.Holdings[coin.Symbol] = l.wallet.Holdings[coin.Symbol].Add(assetAmount).Round(assetScale)
	l.appendOrder(models.OrderTypeBuy, coin, usd, assetAmount, price)

	if err := l.auth.SaveWallet(ctx, l.wallet.Clone()); err != nil {
		return decimal.Zero, err
	}
	return assetAmount, nil
}

// PlaceSellOrder exchanges holdings of coin for usdAmount of balance.
// Returns the asset quantity sold.
func (l *Ledger) PlaceSellOrder(ctx context.Context, coin models.Coin, usdAmount string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	usd, err := parseAmount(usdAmount)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := parsePrice(coin.Price)
	if err != nil {
		return decimal.Zero, err
	}
	assetAmount := usd.Div(price)

	held := l.wallet.Holdings[coin.Symbol]
	if assetAmount.GreaterThan(held) {
		if held.IsZero() {
			return decimal.Zero, &models.UserError{
				Code:    ErrInsufficientHoldings.Code,
				Message: fmt.Sprintf("You don't own any %s.", coin.Symbol),
			}
		}
		return decimal.Zero, &models.UserError{
			Code:    ErrInsufficientHoldings.Code,
			Message: fmt.Sprintf("Insufficient %s. You can sell up to $%s.", coin.Symbol, FormatBalance(held.Mul(price))),
		}
	}

	l.wallet.USDBalance = l.wallet.USDBalance.Add(usd).Round(usdScale)
	l.wallet.Holdings[coin.Symbol] = held.Sub(assetAmount).Round(assetScale)
	l.appendOrder(models.OrderTypeSell, coin, usd, assetAmount, price)

	if err := l.auth.SaveWallet(ctx, l.wallet.Clone()); err != nil {
		return decimal.Zero, err
	}
	return assetAmount, nil
}

// appendOrder prepends an order record; the history is newest first.
// Callers hold l.mu.
func (l *Ledger) appendOrder(orderType string, coin models.Coin, usd, assetAmount, price decimal.Decimal) {
	now := time.Now().UTC()
	order := models.Order{
		ID:          now.UnixMilli(),
		Type:        orderType,
		Symbol:      coin.Symbol,
		Name:        coin.Name,
		USDAmount:   usd,
		AssetAmount: assetAmount,
		Price:       price,
		Timestamp:   now,
	}
	l.wallet.Orders = append([]models.Order{order}, l.wallet.Orders...)
}

// parseAmount parses raw user input. Thousands separators are stripped;
// anything that is not a positive number is rejected.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// parsePrice parses a feed price string such as "48,231.50". A price that
// is not a positive number would make the exchanged quantity meaningless,
// so it is rejected the same way as a bad amount.
func parsePrice(raw string) (decimal.Decimal, error) {
	return parseAmount(raw)
}
