package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/app/repository/mongorepo"
	"github.com/ManuelReschke/CertFox/internal/pkg/billing"
	"github.com/ManuelReschke/CertFox/internal/pkg/cache"
	"github.com/ManuelReschke/CertFox/internal/pkg/database"
	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/CertFox/internal/pkg/env"
	"github.com/ManuelReschke/CertFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CertFox/internal/pkg/mail"
	"github.com/ManuelReschke/CertFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CertFox/internal/pkg/router"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app, manager := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("HTTP shutdown: %v", err)
	}
	manager.Stop(ctx)
}

// NewApplication wires storage, the billing services and the HTTP surface and
// starts the background jobs.
func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	ctx := context.Background()

	repos, dbCheck := setupRepositories(ctx)
	repository.InitializeFactory(repository.NewFactoryFor(repos))

	cache.SetupCache()
	m := metrics.Default()

	if _, err := billing.SeedDefaultPlans(ctx, repos.Plan); err != nil {
		log.Errorf("[Billing] Could not seed default plans: %v", err)
	}

	queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvInt("JOB_WORKERS", 3)).WithMetrics(m)
	jobqueue.NewMailProcessor(repos, mail.NewSMTPMailer()).Register(queue)
	manager := jobqueue.NewManager(queue, repos.Organization, m)

	gateway := billing.NewPaystackClientFromEnv()
	gateway.Metrics = m
	service := billing.NewService(repos, gateway,
		billing.WithNotifier(manager.Notifier()),
		billing.WithMetrics(m),
		billing.WithCatalog(billing.NewCatalog(repos.Plan, cache.GetClient())),
	)
	oracle := entitlements.NewOracle(repos.Organization, repos.Plan, m)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Dependencies{
		Billing:        service,
		Oracle:         oracle,
		Metrics:        m,
		LimiterStorage: cache.NewLimiterStorage(),
		Checks: map[string]func(context.Context) error{
			"database": dbCheck,
			"cache":    cache.Ping,
		},
	})

	if err := manager.Start(); err != nil {
		log.Fatalf("[Scheduler] %v", err)
	}
	return app, manager
}

// setupRepositories opens the store selected by DB_DRIVER and returns the
// repositories together with a health check for it.
func setupRepositories(ctx context.Context) (*repository.Repositories, func(context.Context) error) {
	if env.GetEnv("DB_DRIVER", "mysql") == "mongo" {
		db, err := database.SetupMongo(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if err := mongorepo.EnsureIndexes(ctx, db); err != nil {
			log.Fatalf("[Mongo] Could not create indexes: %v", err)
		}
		transactions := env.GetEnv("MONGO_TRANSACTIONS", "false") == "true"
		return mongorepo.NewRepositories(db, transactions), func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		}
	}

	database.SetupDatabase()
	db := database.GetDB()
	return repository.NewRepositories(db), func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
