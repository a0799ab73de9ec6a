// Command trading-core runs the futures trading bot: it wires the bus,
// circuit breaker, exchange gateway, order manager, portfolio manager,
// strategy engine, and risk manager into a supervisor, then serves the
// admin HTTP API alongside it until signaled to stop.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"

	"trading-core/internal/adminapi"
	"trading-core/internal/breaker"
	"trading-core/internal/bus"
	"trading-core/internal/data"
	"trading-core/internal/gateway"
	"trading-core/internal/ordermanager"
	"trading-core/internal/portfolio"
	"trading-core/internal/risk"
	"trading-core/internal/strategy"
	"trading-core/internal/supervisor"
	"trading-core/pkg/config"
	"trading-core/pkg/db"
	"trading-core/pkg/exchange/binance"
	"trading-core/pkg/exchange/mock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := newBus(cfg)
	sup := supervisor.New(b)

	brk := newBreaker(cfg, sup)

	ex := newExchange(cfg)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db: open %s: %v", cfg.DBPath, err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db: migrate: %v", err)
	}
	orderStore := db.NewOrderStore(database)

	gw := gateway.NewGateway(b, brk, ex, cfg.Symbols, cfg.Interval)
	sup.Register("gateway", gw)

	om := ordermanager.NewManager(b, orderStore, cfg.Symbols)
	sup.Register("ordermanager", om)

	pm := portfolio.NewManager(b, cfg.Symbols, cfg.InitialCashBalance)
	sup.Register("portfolio", pm)

	fetcher := data.NewHistoricalFetcher(cfg.BinanceTestnet)
	sm := strategy.NewManager(b, cfg.Symbols, cfg.Interval, fetcher)
	sup.Register("strategy", sm)

	riskCfg := risk.Config{
		MaxRiskPerTradePct:    cfg.MaxRiskPerTradePct,
		MaxExposurePct:        cfg.MaxExposurePct,
		MaxRelativeDD:         cfg.MaxRelativeDD,
		MaxAbsoluteDD:         cfg.MaxAbsoluteDD,
		ATRPeriod:             cfg.ATRPeriod,
		ATRMultiplier:         cfg.ATRMultiplier,
		DrawdownCheckInterval: cfg.DrawdownInterval,
	}
	rm := risk.NewManager(b, brk, cfg.Symbols, riskCfg)
	sup.Register("risk", rm)

	admin := adminapi.NewServer(b, orderStore, cfg.Symbols, cfg.JWTSecret)
	go func() {
		log.Printf("adminapi: listening on :%s", cfg.Port)
		if err := admin.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Printf("adminapi: stopped: %v", err)
			sup.EmergencyShutdown("adminapi server exited: " + err.Error())
		}
	}()

	if err := sup.Run(ctx); err != nil {
		log.Fatalf("supervisor: %v", err)
	}
}

func newBus(cfg *config.Config) bus.Bus {
	if !cfg.UseRedisBus {
		return bus.NewLocalBus()
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.BusHost + ":" + strconv.Itoa(cfg.BusPort),
		DB:   cfg.BusDB,
	})
	return bus.NewRedisBus(client, "trading-core")
}

func newBreaker(cfg *config.Config, sup *supervisor.Supervisor) breaker.Breaker {
	bcfg := breaker.DefaultConfig()
	onOpen := func(reason string) {
		sup.EmergencyShutdown(reason)
	}
	if !cfg.UseRedisBus {
		return breaker.NewLocalBreaker(bcfg, onOpen)
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.BusHost + ":" + strconv.Itoa(cfg.BusPort),
		DB:   cfg.BusDB,
	})
	return breaker.NewRedisBreaker(client, "trading-core:breaker", bcfg, onOpen)
}

func newExchange(cfg *config.Config) gateway.Exchange {
	if cfg.UseMockExchange {
		return mock.New(mock.DefaultConfig())
	}
	return binance.New(binance.Config{
		APIKey:     cfg.BinanceAPIKey,
		APISecret:  cfg.BinanceAPISecret,
		Testnet:    cfg.BinanceTestnet,
		RecvWindow: 5000,
	})
}
