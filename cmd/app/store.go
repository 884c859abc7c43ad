package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/ports/repository"
	pg "mediaflow/internal/infra/db/postgres"
	"mediaflow/internal/infra/db/sqlite"
	"mediaflow/internal/infra/metrics"
	red "mediaflow/internal/infra/redis"
)

// stores is every repository the use cases need, from one backend.
type stores struct {
	tx         repository.TransactionManager
	pjobs      repository.PipelineJobRepository
	jobs       repository.JobRepository
	batches    repository.BatchRepository
	recipients repository.RecipientRepository
	posts      repository.PostRepository
	idem       repository.IdempotencyRepository
	locks      repository.LockRepository

	ping  func(ctx context.Context) error
	stats func()
	close func()
}

func openStores(ctx context.Context, cfg *config.Config, cache red.RedisClient, log *zerolog.Logger) (*stores, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info().Str("path", cfg.Database.SQLitePath).Msg("using sqlite store")
		return sqliteStores(db), nil
	default:
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		log.Info().Int32("max_conns", cfg.Database.MaxConns).Msg("using postgres store")
		return pgStores(pool, cache, cfg.Redis.TTL, log), nil
	}
}

func pgStores(pool *pgxpool.Pool, cache red.RedisClient, ttl time.Duration, log *zerolog.Logger) *stores {
	var recipients repository.RecipientRepository = pg.NewRecipientRepo(pool)
	if cache != nil {
		recipients = pg.NewRecipientRepoCacheDecorator(recipients, cache, ttl, log)
	}
	return &stores{
		tx:         pg.NewTxManager(pool),
		pjobs:      pg.NewPipelineJobRepo(pool),
		jobs:       pg.NewJobRepo(pool),
		batches:    pg.NewBatchRepo(pool),
		recipients: recipients,
		posts:      pg.NewPostRepo(pool),
		idem:       pg.NewIdempotencyRepo(pool),
		locks:      pg.NewLockRepo(pool),
		ping:       pool.Ping,
		stats: func() {
			s := pool.Stat()
			metrics.SetDBPoolStats("postgres", int(s.TotalConns()), int(s.IdleConns()), int(s.AcquiredConns()))
		},
		close: pool.Close,
	}
}

func sqliteStores(db *sql.DB) *stores {
	return &stores{
		tx:         sqlite.NewTxManager(db),
		pjobs:      sqlite.NewPipelineJobRepo(db),
		jobs:       sqlite.NewJobRepo(db),
		batches:    sqlite.NewBatchRepo(db),
		recipients: sqlite.NewRecipientRepo(db),
		posts:      sqlite.NewPostRepo(db),
		idem:       sqlite.NewIdempotencyRepo(db),
		locks:      sqlite.NewLockRepo(db),
		ping:       db.PingContext,
		stats: func() {
			s := db.Stats()
			metrics.SetDBPoolStats("sqlite", s.OpenConnections, s.Idle, s.InUse)
		},
		close: func() { _ = db.Close() },
	}
}
