package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	carthandler "regdesk/internal/cart/handler"
	cartmetrics "regdesk/internal/cart/metrics"
	cartservice "regdesk/internal/cart/service"
	cataloghandler "regdesk/internal/catalog/handler"
	catalogstore "regdesk/internal/catalog/store"
	checkouthandler "regdesk/internal/checkout/handler"
	checkoutmetrics "regdesk/internal/checkout/metrics"
	checkoutservice "regdesk/internal/checkout/service"
	jwttoken "regdesk/internal/jwt_token"
	"regdesk/internal/notify"
	"regdesk/internal/platform/config"
	"regdesk/internal/platform/httpserver"
	"regdesk/internal/platform/kafka"
	"regdesk/internal/platform/logger"
	"regdesk/internal/platform/metrics"
	profilehandler "regdesk/internal/profile/handler"
	profileservice "regdesk/internal/profile/service"
	"regdesk/internal/proof"
	reconcilehandler "regdesk/internal/reconcile/handler"
	reconcilemetrics "regdesk/internal/reconcile/metrics"
	reconcileservice "regdesk/internal/reconcile/service"
	teamhandler "regdesk/internal/team/handler"
	teammetrics "regdesk/internal/team/metrics"
	teamservice "regdesk/internal/team/service"
	httptransport "regdesk/internal/transport/http"
	"regdesk/pkg/platform/circuit"
)

const shutdownTimeout = 10 * time.Second

// main loads configuration, wires the services and serves until SIGINT or
// SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Server, log *slog.Logger) error {
	cartMetrics := cartmetrics.New()
	store, err := openStorage(ctx, cfg, log, cartMetrics)
	if err != nil {
		return err
	}
	defer store.close(context.Background(), log)

	if cfg.CatalogSeed != "" {
		n, err := catalogstore.LoadSeed(ctx, cfg.CatalogSeed, store.catalog)
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "catalog seeded", "events", n)
	}

	publisher, kafkaClient, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := publisher.Close(drainCtx); err != nil {
			log.Warn("notifications dropped on shutdown", "error", err)
		}
	}()

	linker, err := proof.New(ctx, cfg.Proof)
	if err != nil {
		return err
	}

	profiles := profileservice.New(store.profiles,
		profileservice.WithLogger(log),
		profileservice.WithMemberships(store.teams),
		profileservice.WithBootstrapAdmins(cfg.BootstrapAdmins...),
	)
	teams := teamservice.New(store.teams, profiles,
		teamservice.WithLogger(log),
		teamservice.WithMetrics(teammetrics.New()),
		teamservice.WithSizeLimits(cfg.Team.MaxStandard, cfg.Team.MaxOpen),
	)
	carts := cartservice.New(store.carts, store.catalog, teams, store.registrations,
		cartservice.WithLogger(log),
		cartservice.WithMetrics(cartMetrics),
		cartservice.WithTTL(cfg.Cart.TTL),
	)
	checkout := checkoutservice.New(store.carts, store.catalog, store.submissions, store.registrations, profiles, store.runner,
		checkoutservice.WithLogger(log),
		checkoutservice.WithMetrics(checkoutmetrics.New()),
		checkoutservice.WithPaymentTarget(cfg.Payment),
	)
	reconcileOpts := []reconcileservice.Option{
		reconcileservice.WithLogger(log),
		reconcileservice.WithMetrics(reconcilemetrics.New()),
		reconcileservice.WithNotifier(publisher),
	}
	if linker != nil {
		reconcileOpts = append(reconcileOpts, reconcileservice.WithProofLinker(linker))
	}
	reconcile := reconcileservice.New(store.submissions, store.registrations, store.catalog, profiles, store.runner, reconcileOpts...)

	checks := map[string]httptransport.HealthCheck{}
	if store.db != nil {
		checks["postgres"] = store.db.PingContext
	}
	if store.redis != nil {
		checks["redis"] = store.redis.Health
	}

	router := httptransport.NewRouter(httptransport.Handlers{
		Public:      []httptransport.Registrar{cataloghandler.New(store.catalog, log)},
		Identified:  []httptransport.Registrar{profilehandler.New(profiles, log)},
		Participant: []httptransport.Registrar{teamhandler.New(teams, log), carthandler.New(carts, log), checkouthandler.New(checkout, log)},
		Admin:       []httptransport.Registrar{reconcilehandler.New(reconcile, log)},
	}, httptransport.Identity{
		Verifier:     jwttoken.NewJWTService(cfg.IdentityJWTKey, cfg.IdentityIssuer),
		Participants: profiles,
		Roles:        profiles,
	}, metrics.New(), checks, log)

	srv := httpserver.New(cfg.Addr, cfg.HTTP, router)
	serveErr := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "starting regdesk", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newPublisher delivers notifications to Kafka when brokers are configured,
// falling back to the log while the broker is failing. Without brokers every
// notification goes to the log.
func newPublisher(ctx context.Context, cfg *config.Server, log *slog.Logger) (*notify.AsyncPublisher, *kgo.Client, error) {
	m := notify.NewMetrics()
	logDeliverer := notify.NewLogDeliverer(log)

	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	var deliverer notify.Deliverer = logDeliverer
	if client != nil {
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.NotifyTopic); err != nil {
			client.Close()
			return nil, nil, err
		}
		deliverer = notify.NewFailover(
			notify.NewKafkaSink(client, cfg.Kafka.NotifyTopic),
			logDeliverer,
			circuit.New("notify-kafka"),
			log, m,
		)
		log.InfoContext(ctx, "publishing notifications to kafka", "topic", cfg.Kafka.NotifyTopic)
	}
	return notify.NewAsyncPublisher(deliverer, notify.WithLogger(log), notify.WithMetrics(m)), client, nil
}
