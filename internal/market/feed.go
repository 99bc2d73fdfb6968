// Package market provides the mock price feed. Prices start from a fixed
// list and take a bounded random walk on a timer; nothing here is real
// market data.
package market

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cryptonova/tradesim/internal/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultRefreshInterval matches the original site's price rotation.
const DefaultRefreshInterval = 3 * time.Second

var printer = message.NewPrinter(language.AmericanEnglish)

// defaultCoins seeds the feed with the assets the site displays.
func defaultCoins() []models.Coin {
	return []models.Coin{
		{Name: "Bitcoin", Symbol: "BTC", Price: "48,231.50", Change: "+2.45%", Up: true},
		{Name: "Ethereum", Symbol: "ETH", Price: "2,842.12", Change: "+1.12%", Up: true},
		{Name: "Solana", Symbol: "SOL", Price: "112.45", Change: "-3.21%", Up: false},
		{Name: "Cardano", Symbol: "ADA", Price: "0.582", Change: "+0.85%", Up: true},
		{Name: "Pepe", Symbol: "PEPE", Price: "0.0000012", Change: "+15.4%", Up: true},
		{Name: "Render", Symbol: "RNDR", Price: "7.82", Change: "+12.1%", Up: true},
		{Name: "Fetch.ai", Symbol: "FET", Price: "2.45", Change: "+9.8%", Up: true},
		{Name: "Near", Symbol: "NEAR", Price: "6.50", Change: "+8.2%", Up: true},
		{Name: "Arweave", Symbol: "AR", Price: "34.20", Change: "+7.5%", Up: true},
		{Name: "Worldcoin", Symbol: "WLD", Price: "7.20", Change: "-8.5%", Up: false},
		{Name: "Starknet", Symbol: "STRK", Price: "1.95", Change: "-6.2%", Up: false},
		{Name: "Celestia", Symbol: "TIA", Price: "14.50", Change: "-5.8%", Up: false},
		{Name: "Dogewifhat", Symbol: "WIF", Price: "2.45", Change: "+18.5%", Up: true},
		{Name: "Jupiter", Symbol: "JUP", Price: "1.20", Change: "-2.1%", Up: false},
	}
}

// Feed is the mock market price oracle. The wallet ledger treats whatever
// coin snapshot it is handed as current; the feed never validates
// freshness on its behalf.
type Feed struct {
	mu       sync.RWMutex
	coins    []models.Coin
	interval time.Duration
	rng      *rand.Rand
}

// NewFeed creates a feed seeded with the default coin list.
func NewFeed(interval time.Duration) *Feed {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Feed{
		coins:    defaultCoins(),
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// List returns a copy of the current price list.
func (f *Feed) List() []models.Coin {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]models.Coin(nil), f.coins...)
}

// Get returns the current snapshot for a symbol.
func (f *Feed) Get(symbol string) (models.Coin, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, c := range f.coins {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return models.Coin{}, false
}

// Start refreshes prices on a ticker until ctx is canceled. onRefresh, if
// non-nil, receives a copy of the list after every refresh.
func (f *Feed) Start(ctx context.Context, onRefresh func([]models.Coin)) {
	go func() {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.Refresh()
				if onRefresh != nil {
					onRefresh(f.List())
				}
			}
		}
	}()
}

// Refresh applies one random-walk step to every coin: up to ±3% per tick,
// never crossing zero.
func (f *Feed) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.coins {
		current, err := parsePrice(f.coins[i].Price)
		if err != nil {
			continue
		}
		pct := (f.rng.Float64() * 6) - 3
		next := current * (1 + pct/100)
		if next <= 0 {
			next = current
		}

		f.coins[i].Price = formatPrice(next)
		f.coins[i].Up = pct >= 0
		f.coins[i].Change = printer.Sprintf("%+.2f%%", pct)
	}
}

func parsePrice(raw string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
}

// formatPrice renders the display string: grouped two-decimal form for
// prices of a dollar and up, trimmed high precision below that (sub-cent
// coins like PEPE need the extra digits).
func formatPrice(v float64) string {
	if v >= 1 {
		return printer.Sprintf("%.2f", v)
	}
	s := strconv.FormatFloat(v, 'f', 7, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
