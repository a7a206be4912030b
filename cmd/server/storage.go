package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	cartmetrics "regdesk/internal/cart/metrics"
	cartservice "regdesk/internal/cart/service"
	cartstore "regdesk/internal/cart/store"
	"regdesk/internal/cart/sweeper"
	cataloghandler "regdesk/internal/catalog/handler"
	catalogstore "regdesk/internal/catalog/store"
	checkoutservice "regdesk/internal/checkout/service"
	paymentstore "regdesk/internal/payment/store"
	"regdesk/internal/platform/config"
	"regdesk/internal/platform/postgres"
	redisclient "regdesk/internal/platform/redis"
	profileservice "regdesk/internal/profile/service"
	profilestore "regdesk/internal/profile/store"
	reconcileservice "regdesk/internal/reconcile/service"
	teamservice "regdesk/internal/team/service"
	teamstore "regdesk/internal/team/store"
	"regdesk/pkg/platform/tx"
)

type catalogStore interface {
	cataloghandler.Reader
	catalogstore.Putter
	checkoutservice.Catalog
}

type submissionStore interface {
	checkoutservice.Submissions
	reconcileservice.Submissions
}

type registrationStore interface {
	cartservice.Registrations
	checkoutservice.Registrations
	reconcileservice.Registrations
}

type cartStore interface {
	cartservice.Store
	checkoutservice.Carts
}

// storage holds the backend chosen by configuration: Postgres when a
// database URL is set, in-memory otherwise. Carts live in Redis when it is
// configured.
type storage struct {
	catalog       catalogStore
	profiles      profileservice.Store
	teams         teamservice.Store
	submissions   submissionStore
	registrations registrationStore
	carts         cartStore
	runner        tx.Runner

	db      *sql.DB
	redis   *redisclient.Client
	sweeper *sweeper.Sweeper
}

func openStorage(ctx context.Context, cfg *config.Server, log *slog.Logger, cm *cartmetrics.Metrics) (*storage, error) {
	s := &storage{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.db = db
		s.catalog = catalogstore.NewPostgres(db)
		s.profiles = profilestore.NewPostgres(db)
		s.teams = teamstore.NewPostgres(db)
		s.submissions = paymentstore.NewPostgresSubmissions(db)
		s.registrations = paymentstore.NewPostgresRegistrations(db)
		s.runner = tx.NewPostgresRunner(db, cfg.Database.TxTimeout)
		log.InfoContext(ctx, "using postgres storage")
	} else {
		s.catalog = catalogstore.NewInMemory()
		s.profiles = profilestore.NewInMemory()
		s.teams = teamstore.NewInMemory()
		s.submissions = paymentstore.NewInMemorySubmissions()
		s.registrations = paymentstore.NewInMemoryRegistrations()
		s.runner = tx.NewShardedRunner(cfg.Database.TxTimeout)
		log.WarnContext(ctx, "DATABASE_URL not set, using in-memory storage")
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		s.close(ctx, log)
		return nil, err
	}
	if rc != nil {
		s.redis = rc
		s.carts = cartstore.NewRedis(rc.Client)
		log.InfoContext(ctx, "using redis cart store")
		return s, nil
	}

	mem := cartstore.NewInMemory()
	s.carts = mem
	s.sweeper, err = sweeper.Start(mem, cfg.Cart.SweepInterval, log, cm)
	if err != nil {
		s.close(ctx, log)
		return nil, fmt.Errorf("start cart sweeper: %w", err)
	}
	return s, nil
}

func (s *storage) close(ctx context.Context, log *slog.Logger) {
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			log.WarnContext(ctx, "cart sweeper stop failed", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.WarnContext(ctx, "redis close failed", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.WarnContext(ctx, "postgres close failed", "error", err)
		}
	}
}
