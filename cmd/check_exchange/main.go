package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/config"
	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange/bitget"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange/mexc"
)

// Usage: check_exchange [exchange] [symbol]
// Defaults to the first configured exchange and BTCUSDT.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Exchanges) == 0 {
		fmt.Println("No exchanges configured")
		os.Exit(1)
	}

	name := cfg.Exchanges[0].Name
	if len(os.Args) > 1 {
		name = os.Args[1]
	}
	symbol := "BTCUSDT"
	if len(os.Args) > 2 {
		symbol = os.Args[2]
	}

	ec, err := cfg.Exchange(name)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing %s interaction...\n", name)

	var adapter domain.Adapter
	switch name {
	case "bitget":
		adapter = bitget.New(bitget.Config{
			APIKey:       ec.APIKey,
			APISecret:    ec.APISecret,
			Passphrase:   ec.Passphrase,
			BaseURL:      ec.RESTEndpoint,
			WSPublicURL:  ec.WSPublic,
			WSPrivateURL: ec.WSPrivate,
			ProductType:  ec.ProductType,
			MarginCoin:   ec.MarginCoin,
		}, zap.NewNop())
	case "mexc":
		adapter = mexc.New(mexc.Config{
			APIKey:     ec.APIKey,
			APISecret:  ec.APISecret,
			BaseURL:    ec.RESTEndpoint,
			WSURL:      ec.WSPublic,
			MarginCoin: ec.MarginCoin,
		}, zap.NewNop())
	case "xt":
		adapter = mexc.NewXT(mexc.Config{APIKey: ec.APIKey, APISecret: ec.APISecret, MarginCoin: ec.MarginCoin}, zap.NewNop())
	case "coinstore":
		adapter = mexc.NewCoinstore(mexc.Config{APIKey: ec.APIKey, APISecret: ec.APISecret, MarginCoin: ec.MarginCoin}, zap.NewNop())
	default:
		fmt.Printf("Unknown exchange %q\n", name)
		os.Exit(1)
	}

	ctx := context.Background()

	contracts, err := adapter.Contracts(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to load contracts: %v\n", err)
	} else {
		fmt.Printf("✅ Contracts loaded: %d\n", len(contracts))
	}

	info, err := adapter.ContractByCanonical(ctx, symbol)
	if err != nil {
		fmt.Printf("❌ Failed to resolve %s: %v\n", symbol, err)
	} else {
		fmt.Printf("✅ Contract %s: native=%s tick=%g step=%g minQty=%g maxLev=%d apiAllowed=%v\n",
			info.Symbol, info.ExchangeSymbol, info.TickSize, info.StepSize,
			info.MinQty, info.MaxLeverage, info.APIAllowed)
	}

	if ec.APIKey == "" {
		fmt.Println("No API key configured, skipping private checks")
		return
	}

	acct, err := adapter.AccountState(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get account state: %v\n", err)
	} else {
		fmt.Printf("✅ Account (%s): equity=%v available=%v\n",
			acct.MarginCoin, fmtPtr(acct.Equity), fmtPtr(acct.Available))
	}

	positions, err := adapter.Positions(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get positions: %v\n", err)
	} else {
		fmt.Printf("✅ Open positions: %d\n", len(positions))
	}
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%g", *v)
}
