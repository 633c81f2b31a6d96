package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"supercv-backend/internal/aiengine"
	"supercv-backend/internal/analyses"
	googleauth "supercv-backend/internal/auth"
	"supercv-backend/internal/claims"
	"supercv-backend/internal/credits"
	"supercv-backend/internal/payments"
	"supercv-backend/internal/queue"
	"supercv-backend/internal/shared/auth"
	"supercv-backend/internal/shared/config"
	"supercv-backend/internal/shared/server"
	"supercv-backend/internal/shared/storage/db"
	"supercv-backend/internal/shared/storage/object"
	localstore "supercv-backend/internal/shared/storage/object/local"
	s3store "supercv-backend/internal/shared/storage/object/s3"
	"supercv-backend/internal/shared/telemetry"
	"supercv-backend/internal/suggestions"
	"supercv-backend/internal/users"
	"supercv-backend/internal/worker"
)

const memoryQueueSize = 256

// Role selects which process the dependencies are built for.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine

	DB          *sql.DB
	Redis       *redis.Client
	Store       object.ObjectStore
	Queue       queue.Client
	MemoryQueue *queue.MemoryQueue
	SQS         *sqs.Client

	Tokens      *auth.Manager
	Ledger      *credits.Ledger
	Records     analyses.Repo
	Analyses    *analyses.Service
	Claims      *claims.Service
	Users       *users.Service
	Payments    *payments.Service
	Engine      aiengine.Client
	Processor   *worker.Processor
	PollLimiter analyses.PollLimiter
}

// Build wires every dependency for role. Dev-like environments fall back to
// in-memory stores when Postgres or Redis are unreachable.
func Build(ctx context.Context, cfg config.Config, role Role) (*App, error) {
	loc, err := time.LoadLocation(cfg.CreditsTimezone)
	if err != nil {
		return nil, fmt.Errorf("credits timezone: %w", err)
	}

	app := &App{Config: cfg}

	if app.DB, err = buildDB(ctx, cfg, role); err != nil {
		return nil, err
	}
	if app.Store, err = buildStore(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	if err := buildQueue(ctx, app); err != nil {
		app.Close()
		return nil, err
	}

	app.Tokens = auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	var txRunner analyses.TxRunner
	if app.DB != nil {
		app.Ledger = credits.NewLedger(credits.NewPGStore(app.DB), credits.SystemClock{}, loc)
		pgRepo := analyses.NewPGRepo(app.DB)
		app.Records = pgRepo
		txRunner = pgRepo.Tx
	} else {
		app.Ledger = credits.NewMemoryLedger(credits.SystemClock{}, loc)
		app.Records = analyses.NewMemoryRepo()
	}

	app.Analyses = analyses.NewService(app.Records, app.Ledger, app.Queue)
	app.Analyses.Tx = txRunner
	app.Claims = claims.NewService(app.Records, app.Ledger)
	app.Users = users.NewService(app.Ledger, app.Tokens)
	app.Payments = payments.NewService(app.Ledger)

	engine, err := aiengine.NewHTTPClient(cfg.AIEngineURL, cfg.AIEngineTimeout)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Engine = engine
	app.Processor = worker.NewProcessor(app.Analyses, app.Store, app.Engine)

	if role == RoleAPI {
		app.PollLimiter = buildPollLimiter(ctx, app)
		app.Router = server.NewRouter(server.RouterDeps{
			Config:      cfg,
			Tokens:      app.Tokens,
			Analyses:    analyses.NewHandler(app.Analyses, app.Store, app.PollLimiter),
			Claims:      claims.NewHandler(app.Claims),
			Suggestions: suggestions.NewHandler(app.Analyses),
			Credits:     credits.NewHandler(app.Ledger),
			Users:       users.NewHandler(app.Users, cfg.AuthSyncSecret),
			Payments:    payments.NewHandler(app.Payments, cfg.PaymentWebhookSecret),
			GoogleAuth: googleauth.NewGoogleService(
				cfg.GoogleClientID,
				cfg.GoogleClientSecret,
				cfg.GoogleRedirectURL,
				cfg.UIRedirectURL,
				app.Users,
			),
			DB:    app.DB,
			Redis: app.Redis,
		})
	}
	return app, nil
}

// Close releases pooled connections.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config, role Role) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, errors.New("DATABASE_URL is required")
	}

	opts := db.DefaultServerOptions()
	if role == RoleWorker {
		opts = db.DefaultWorkerOptions(cfg.WorkerConcurrency)
	}
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(opts))
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.db_connect_failed", map[string]any{"fallback": "memory", "error": err})
			return nil, nil
		}
		return nil, err
	}
	if cfg.IsDevLike() {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, app *App) error {
	cfg := app.Config
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		if !cfg.IsDevLike() {
			return errors.New("SQS_QUEUE_URL is required")
		}
		telemetry.Warn("bootstrap.queue_missing", map[string]any{"fallback": "memory"})
		app.MemoryQueue = queue.NewMemoryQueue(memoryQueueSize)
		app.Queue = app.MemoryQueue
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	client, err := queue.NewSQSClient(awsCfg, cfg.SQSQueueURL)
	if err != nil {
		return err
	}
	app.Queue = client
	app.SQS = sqs.NewFromConfig(awsCfg)
	return nil
}

func buildPollLimiter(ctx context.Context, app *App) analyses.PollLimiter {
	cfg := app.Config
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return analyses.NewMemoryPollLimiter(cfg.PollWindow, nil)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		telemetry.Warn("bootstrap.redis_unreachable", map[string]any{"fallback": "memory", "error": err})
		_ = client.Close()
		return analyses.NewMemoryPollLimiter(cfg.PollWindow, nil)
	}
	app.Redis = client
	return analyses.NewRedisPollLimiter(client, cfg.PollWindow)
}
