package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"foodtrace/internal/bootstrap"
	"foodtrace/internal/identity"
	"foodtrace/internal/market"
	"foodtrace/internal/platform/config"
	"foodtrace/internal/platform/httpserver"
	"foodtrace/internal/platform/logger"
	"foodtrace/internal/platform/metrics"
	"foodtrace/internal/platform/middleware"
	"foodtrace/internal/platform/postgres"
	"foodtrace/internal/platform/redis"
	"foodtrace/internal/product"
	"foodtrace/internal/shipment"
	httptransport "foodtrace/internal/transport/http"
	audit "foodtrace/pkg/platform/audit"
	auditrelay "foodtrace/pkg/platform/audit/relay"
	auditmemory "foodtrace/pkg/platform/audit/store/memory"
	auditpostgres "foodtrace/pkg/platform/audit/store/postgres"
)

// main wires stores, the market feed, and the notification pipeline around
// one provisioned system, then runs the HTTP server and the optional Kafka
// relay until a signal arrives. Every backend is optional; with nothing
// configured the process runs fully in memory.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()
	ctx := context.Background()

	var (
		identityStore identity.Store    = identity.NewMemoryStore()
		productStore  product.Store     = product.NewMemoryStore()
		shipmentStore shipment.Store    = shipment.NewMemoryStore()
		auditStore    audit.Store       = auditmemory.NewStore()
		relaySource   auditrelay.Source = nil
	)

	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		pgIdentity := identity.NewPostgresStore(db)
		pgProduct := product.NewPostgresStore(db)
		pgShipment := shipment.NewPostgresStore(db)
		pgAudit := auditpostgres.New(db)
		for _, migrate := range []func(context.Context) error{
			pgIdentity.Migrate, pgProduct.Migrate, pgShipment.Migrate, pgAudit.Migrate,
		} {
			if err := migrate(ctx); err != nil {
				log.Error("migration failed", "error", err)
				os.Exit(1)
			}
		}
		identityStore, productStore, shipmentStore, auditStore = pgIdentity, pgProduct, pgShipment, pgAudit
		relaySource = pgAudit
		log.Info("postgres stores enabled")
	}

	var feed market.Feed = &market.StaticFeed{Reading: market.DefaultReading(time.Now())}
	if cfg.MarketFeedURL != "" {
		feed = market.NewHTTPFeed(cfg.MarketFeedURL, cfg.MarketFeedTimeout)
	}
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		feed = market.NewCachedFeed(feed, redisClient.Client, cfg.MarketCacheTTL, log)
		log.Info("market reading cache enabled")
	}

	sys := bootstrap.Provision(bootstrap.Deps{
		AdminIdentity: cfg.AdminIdentity,
		IdentityStore: identityStore,
		ProductStore:  productStore,
		ShipmentStore: shipmentStore,
		AuditStore:    auditStore,
		Feed:          feed,
		Metrics:       m,
		Logger:        log,
	})

	directory := bootstrap.NewDirectory()
	if err := directory.Register("default", sys); err != nil {
		log.Error("system registration failed", "error", err)
		os.Exit(1)
	}

	admin := middleware.NewJWTAdminValidator(cfg.JWTSigningKey)
	router := httptransport.NewRouter(sys, admin, m, log)
	srv := httpserver.New(cfg.Addr, router)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		log.Info("starting foodtrace server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if relaySource != nil && len(cfg.KafkaBrokers) > 0 {
		producer, err := auditrelay.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		relay := auditrelay.New(relaySource, producer, cfg.KafkaTopic, log)
		group.Go(func() error {
			log.Info("starting notification relay", "topic", cfg.KafkaTopic)
			return relay.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
