package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/cryptonova/tradesim/internal/auth"
	"github.com/cryptonova/tradesim/internal/models"
	"github.com/cryptonova/tradesim/internal/store"
	"github.com/cryptonova/tradesim/internal/wallet"

	"go.uber.org/zap"
)

const (
	demoName     = "Demo Trader"
	demoEmail    = "trader@cryptonova.io"
	demoPassword = "cryptodemo"
)

// Seed the store with a demo account that already holds a few assets, so
// the site has content to show on first load.
func main() {
	dataFile := flag.String("f", "cryptonova.json", "path of the file-backed store")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	kv, err := store.NewFileStore(*dataFile)
	if err != nil {
		sugar.Fatalw("failed to open store", "error", err)
	}

	authService := auth.NewService(kv, sugar, "cryptonova-secret")

	if _, err := authService.SignUp(ctx, demoName, demoEmail, demoPassword); err != nil {
		if errors.Is(err, auth.ErrDuplicateAccount) {
			fmt.Println("Demo account already exists. No need to seed.")
			os.Exit(0)
		}
		sugar.Fatalw("failed to create demo account", "error", err)
	}

	// Run a few demo orders through the ledger so the account has holdings
	// and history. Prices match the feed's starting list.
	ledger := wallet.NewLedger(authService)
	ledger.Reconcile(ctx)

	trades := []struct {
		coin   models.Coin
		amount string
		sell   bool
	}{
		{coin: models.Coin{Name: "Bitcoin", Symbol: "BTC", Price: "48,231.50"}, amount: "5000"},
		{coin: models.Coin{Name: "Ethereum", Symbol: "ETH", Price: "2,842.12"}, amount: "2500"},
		{coin: models.Coin{Name: "Solana", Symbol: "SOL", Price: "112.45"}, amount: "1000"},
		{coin: models.Coin{Name: "Ethereum", Symbol: "ETH", Price: "2,842.12"}, amount: "500", sell: true},
	}
	for _, tr := range trades {
		place := ledger.PlaceBuyOrder
		if tr.sell {
			place = ledger.PlaceSellOrder
		}
		if _, err := place(ctx, tr.coin, tr.amount); err != nil {
			sugar.Fatalw("failed to place demo order", "symbol", tr.coin.Symbol, "error", err)
		}
	}

	// Leave the store without an active session; the demo user logs in
	// through the site.
	if err := authService.Logout(ctx); err != nil {
		sugar.Fatalw("failed to clear session", "error", err)
	}

	fmt.Printf("Seeded demo account %s (password %q) into %s\n", demoEmail, demoPassword, *dataFile)
}
