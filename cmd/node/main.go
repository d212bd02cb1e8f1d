package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/smemoshui/seaport-core/params"
	"github.com/smemoshui/seaport-core/pkg/api"
	"github.com/smemoshui/seaport-core/pkg/conduit"
	"github.com/smemoshui/seaport-core/pkg/crypto"
	"github.com/smemoshui/seaport-core/pkg/engine"
	"github.com/smemoshui/seaport-core/pkg/ledger"
	"github.com/smemoshui/seaport-core/pkg/metrics"
	"github.com/smemoshui/seaport-core/pkg/order"
	"github.com/smemoshui/seaport-core/pkg/p2p"
	"github.com/smemoshui/seaport-core/pkg/status"
	"github.com/smemoshui/seaport-core/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (console, teed to a file when configured)
	zlog, err := newLogger(cfg.API.LogPath)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()
	sugar := zlog.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Persistent state ----
	book, err := ledger.NewBook(cfg.Storage.LedgerPath)
	if err != nil {
		sugar.Fatalw("ledger_open_failed", "path", cfg.Storage.LedgerPath, "err", err)
	}
	defer book.Close()

	store, err := status.NewStore(cfg.Storage.StatusPath)
	if err != nil {
		sugar.Fatalw("status_open_failed", "path", cfg.Storage.StatusPath, "err", err)
	}
	defer store.Close()

	// ---- Order resolution ----
	domain := crypto.DefaultDomain()
	domain.ChainID = cfg.Settlement.ChainID
	typed := crypto.NewTypedSigner(domain)

	resolver, err := status.NewResolver(status.Config{
		Store:  store,
		Signer: typed,
		Zones:  status.NewZoneRegistry(),
		Logger: zlog,
	})
	if err != nil {
		sugar.Fatalw("resolver_init_failed", "err", err)
	}

	// ---- Transfer channels ----
	if !common.IsHexAddress(cfg.Settlement.Account) {
		sugar.Fatalw("bad_engine_account", "account", cfg.Settlement.Account)
	}
	var channelKey order.ConduitKey
	keyBytes := common.FromHex(cfg.Settlement.ConduitKey)
	if len(keyBytes) != len(channelKey) {
		sugar.Fatalw("bad_conduit_key", "key", cfg.Settlement.ConduitKey)
	}
	copy(channelKey[:], keyBytes)

	conduits := conduit.NewRegistry()
	if err := conduits.Register(channelKey, conduit.NewLocalConduit(book)); err != nil {
		sugar.Fatalw("conduit_register_failed", "err", err)
	}

	// ---- Randomness beacon (optional) ----
	// Without a beacon key the probabilistic settlement path stays disabled.
	var beacon engine.BeaconVerifier
	if cfg.Beacon.PubKeyHex != "" {
		v, err := crypto.NewBeaconVerifier(common.FromHex(cfg.Beacon.PubKeyHex))
		if err != nil {
			sugar.Fatalw("beacon_key_invalid", "err", err)
		}
		beacon = v
	}

	// ---- Event sinks ----
	hub := api.NewHub(zlog)
	sinks := engine.MultiSink{engine.NewLogSink(zlog), api.NewHubSink(hub)}

	if cfg.Feed.Enabled {
		feed, err := p2p.NewFeed(ctx, p2p.FeedConfig{
			ListenAddr: cfg.Feed.ListenAddr,
			Bootstrap:  cfg.Feed.Bootstrap,
			Logger:     zlog,
		})
		if err != nil {
			sugar.Fatalw("feed_init_failed", "err", err)
		}
		defer feed.Close()
		sinks = append(sinks, feed)
	}

	// ---- Settlement engine ----
	registry := prometheus.NewRegistry()
	eng, err := engine.New(engine.Config{
		Resolver:   resolver,
		Book:       book,
		Conduits:   conduits,
		Pending:    status.NewPendingStore(store),
		Beacon:     beacon,
		Sink:       sinks,
		Metrics:    metrics.New(registry),
		Logger:     zlog,
		Account:    common.HexToAddress(cfg.Settlement.Account),
		PendingTTL: cfg.Settlement.PendingTTL,
	})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	// ---- Expiry sweeper (optional) ----
	// Reclaims parked settlements whose beacon round never resolved.
	if cfg.Settlement.SweepEvery > 0 && beacon != nil {
		go func() {
			ticker := time.NewTicker(cfg.Settlement.SweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n, err := eng.SweepPending(ctx); err != nil {
						sugar.Warnw("pending_sweep_failed", "err", err)
					} else if n > 0 {
						sugar.Infow("pending_swept", "reclaimed", n)
					}
				}
			}
		}()
	}

	// ---- API server ----
	srv, err := api.NewServer(api.Config{
		Engine:   eng,
		Resolver: resolver,
		Book:     book,
		Gatherer: registry,
		Hub:      hub,
		Logger:   zlog,
	})
	if err != nil {
		sugar.Fatalw("api_init_failed", "err", err)
	}

	go func() {
		if err := srv.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started",
		"api", cfg.API.ListenAddr,
		"escrow", cfg.Settlement.Account,
		"chain_id", cfg.Settlement.ChainID,
		"lucky_enabled", beacon != nil,
		"feed_enabled", cfg.Feed.Enabled,
	)

	<-ctx.Done()
	sugar.Info("shutting down")
}

func newLogger(logPath string) (*zap.Logger, error) {
	if logPath != "" {
		return util.NewLoggerWithFile(logPath)
	}
	return util.NewLogger()
}
