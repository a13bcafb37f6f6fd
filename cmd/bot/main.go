package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avetra/crypto_trade_exec/internal/config"
	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/contracts"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange/bitget"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange/mexc"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/logger"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/storage"
	"github.com/avetra/crypto_trade_exec/internal/usecase"
)

type adapterHandle struct {
	adapter domain.Adapter
	cache   *contracts.Cache
	close   func()
}

func buildAdapter(ec *config.ExchangeConfig, log *zap.Logger) (*adapterHandle, error) {
	log = logger.ForExchange(log, ec.Name)

	switch ec.Name {
	case "bitget":
		a := bitget.New(bitget.Config{
			APIKey:        ec.APIKey,
			APISecret:     ec.APISecret,
			Passphrase:    ec.Passphrase,
			BaseURL:       ec.RESTEndpoint,
			WSPublicURL:   ec.WSPublic,
			WSPrivateURL:  ec.WSPrivate,
			ProductType:   ec.ProductType,
			MarginCoin:    ec.MarginCoin,
			Timeout:       ec.Timeout.Std(),
			MaxAttempts:   ec.MaxAttempts,
			MinRequestGap: ec.MinRequestGap.Std(),
			CacheTTL:      ec.CacheTTL.Std(),
		}, log)
		return &adapterHandle{adapter: a, cache: a.Cache(), close: a.Close}, nil
	case "mexc", "xt", "coinstore":
		cfg := mexc.Config{
			APIKey:        ec.APIKey,
			APISecret:     ec.APISecret,
			BaseURL:       ec.RESTEndpoint,
			WSURL:         ec.WSPublic,
			MarginCoin:    ec.MarginCoin,
			Timeout:       ec.Timeout.Std(),
			MaxAttempts:   ec.MaxAttempts,
			MinRequestGap: ec.MinRequestGap.Std(),
			CacheTTL:      ec.CacheTTL.Std(),
		}
		var a *mexc.Adapter
		switch ec.Name {
		case "xt":
			a = mexc.NewXT(cfg, log)
		case "coinstore":
			a = mexc.NewCoinstore(cfg, log)
		default:
			a = mexc.New(cfg, log)
		}
		return &adapterHandle{adapter: a, cache: a.Cache(), close: a.Close}, nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", ec.Name)
	}
}

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

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Risk events go to the console and, when a journal path is set, to
	// sqlite as well.
	sinks := usecase.MultiRiskSink{usecase.NewZapRiskSink(log)}
	if cfg.Journal.Path != "" {
		journal, err := storage.NewRiskJournal(cfg.Journal.Path, log)
		if err != nil {
			log.Fatal("Failed to open risk journal", zap.Error(err))
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	handles := make(map[string]*adapterHandle, len(cfg.Exchanges))
	for i := range cfg.Exchanges {
		h, err := buildAdapter(&cfg.Exchanges[i], log)
		if err != nil {
			log.Fatal("Failed to build adapter", zap.Error(err))
		}
		defer h.close()
		handles[cfg.Exchanges[i].Name] = h
	}

	// Warm every contract cache concurrently; a cold exchange logs and
	// heals later instead of failing startup.
	warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	g, gctx := errgroup.WithContext(warmCtx)
	for name, h := range handles {
		name, h := name, h
		g.Go(func() error {
			if err := h.cache.Refresh(gctx, true); err != nil {
				log.Warn("contract warmup failed", zap.String("exchange", name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	cancel()

	breakerCfg := usecase.DefaultBreakerConfig()
	if cfg.Breaker.MaxErrors > 0 {
		breakerCfg.MaxErrors = cfg.Breaker.MaxErrors
	}
	if cfg.Breaker.Window > 0 {
		breakerCfg.Window = cfg.Breaker.Window.Std()
	}
	if cfg.Breaker.Cooldown > 0 {
		breakerCfg.Cooldown = cfg.Breaker.Cooldown.Std()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runners []*usecase.Runner
	for _, bot := range cfg.Bots {
		h, ok := handles[bot.Exchange]
		if !ok {
			log.Fatal("Bot references unknown exchange",
				zap.String("botId", bot.ID), zap.String("exchange", bot.Exchange))
		}

		engine := usecase.NewExecutionEngine(h.adapter, usecase.EngineOptions{
			Sink:   sinks,
			Logger: log.With(zap.String("botId", bot.ID)),
		})

		interval := bot.Interval.Std()
		if interval <= 0 {
			interval = time.Second
		}

		// Strategy code gets only the read-only view. The tick keeps the
		// contract cache and account snapshot fresh, so breaker trips
		// reflect real exchange trouble.
		decision := engine.Decision()
		tick := func(tctx context.Context) error {
			if err := h.cache.Refresh(tctx, false); err != nil {
				return err
			}
			_, err := decision.AccountState(tctx)
			return err
		}

		r := usecase.NewRunner(bot.ID, interval, tick, usecase.NewCircuitBreaker(breakerCfg), log)
		r.Start(ctx)
		runners = append(runners, r)
		log.Info("bot started", zap.String("botId", bot.ID), zap.String("exchange", bot.Exchange))
	}

	<-ctx.Done()
	log.Info("Shutting down...")
	for _, r := range runners {
		r.Stop()
	}
}
