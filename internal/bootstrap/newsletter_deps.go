// Package bootstrap wires configuration, infrastructure, adapters, and
// services into runnable API and worker processes.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"newsletter_server/adapter/out/mongodb"
	"newsletter_server/adapter/out/persistence"
	"newsletter_server/adapter/out/provider/gmail"
	"newsletter_server/config"
	"newsletter_server/core/port/out"
	"newsletter_server/core/service/auth"
	"newsletter_server/core/service/catalog"
	"newsletter_server/core/service/ingest"
	"newsletter_server/core/service/report"
	"newsletter_server/infra/database"
	"newsletter_server/internal/stream"
	"newsletter_server/pkg/crypto"
	"newsletter_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies is the assembled object graph shared by the API and the
// worker.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	ConnRepo       out.ConnectionRepository
	NewsletterRepo out.NewsletterRepository
	SubRepo        out.SubscriptionRepository
	EmailRepo      out.EmailRepository
	StatsRepo      out.StatsRepository
	BodyStore      out.BodyStore
	StateStore     *persistence.OAuthStateStore

	// Provider
	GmailFactory out.MailboxFactory

	// Messaging
	Producer out.MessageProducer
	Stream   *stream.RedisStream

	// Services
	OAuthService   *auth.OAuthService
	SyncService    *ingest.SyncService
	CatalogService *catalog.CatalogService
	StatsService   *report.StatsService
}

// NewDependencies builds the graph and returns a cleanup that closes every
// opened resource in reverse order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Token encryption is mandatory: stored credentials are never plaintext
	if err := crypto.Init(); err != nil {
		return nil, nil, fmt.Errorf("token encryption init: %w", err)
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis is optional: without it there is no stats cache, no OAuth state
	// validation, and syncs run in-process instead of via the stream.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, running without cache and job stream")
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// MongoDB body archive is optional; ingestion degrades gracefully
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(context.Background(), cfg.MongoDBURL)
		if err != nil {
			logger.WithError(err).Warn("mongodb unavailable, body archiving disabled")
		} else {
			deps.MongoDB = mongoClient
			deps.BodyStore = mongodb.NewBodyStore(mongoClient, cfg.MongoDBName)
			cleanups = append(cleanups, func() {
				_ = mongoClient.Disconnect(context.Background())
			})
		}
	}

	// Repositories
	deps.ConnRepo = persistence.NewConnectionRepository(sqlDB)
	deps.NewsletterRepo = persistence.NewNewsletterRepository(sqlDB)
	deps.SubRepo = persistence.NewSubscriptionRepository(sqlDB)
	deps.EmailRepo = persistence.NewEmailRepository(sqlDB)
	deps.StatsRepo = persistence.NewStatsRepository(sqlDB)
	if deps.Redis != nil {
		deps.StateStore = persistence.NewOAuthStateStore(deps.Redis)
	}

	// Services
	deps.OAuthService = auth.NewOAuthService(
		cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL,
		deps.ConnRepo,
	)
	deps.GmailFactory = gmail.NewFactory(deps.OAuthService.Config())

	if deps.Redis != nil {
		block := time.Duration(cfg.ConsumerBlockMS) * time.Millisecond
		deps.Stream = stream.NewRedisStream(deps.Redis, "newsletter-workers", cfg.ConsumerBatchSize, block)
		deps.Producer = stream.NewProducer(deps.Stream)
	}

	deps.SyncService = ingest.NewSyncService(
		deps.ConnRepo, deps.NewsletterRepo, deps.SubRepo, deps.EmailRepo,
		deps.BodyStore, deps.GmailFactory, deps.OAuthService, deps.Producer,
		cfg.SyncStaleAfter,
	)
	deps.CatalogService = catalog.NewCatalogService(deps.NewsletterRepo, deps.SubRepo, deps.EmailRepo)
	deps.StatsService = report.NewStatsService(deps.StatsRepo, deps.Redis, cfg.StatsCacheTTL)

	logger.Info("dependencies initialized (redis=%t mongodb=%t)", deps.Redis != nil, deps.MongoDB != nil)
	return deps, cleanup, nil
}
