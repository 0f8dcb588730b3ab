package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/automergerun"
	"github.com/Ramsey-B/clover/internal/repositories/company"
	"github.com/Ramsey-B/clover/internal/repositories/companydomain"
	"github.com/Ramsey-B/clover/internal/repositories/duplicatecandidate"
	"github.com/Ramsey-B/clover/internal/repositories/mergeaudit"
	"github.com/Ramsey-B/clover/internal/repositories/person"
	"github.com/Ramsey-B/clover/internal/repositories/scanrun"
	"github.com/Ramsey-B/clover/internal/repositories/tenant"
	"github.com/Ramsey-B/clover/pkg/automerge"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes/duplicate"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/match"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/scheduler"
	"github.com/Ramsey-B/clover/pkg/server"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, flush, err := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.PrettyLogs,
	})
	if err != nil {
		panic(err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
		Exporter:    cfg.TraceExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.TraceOTLPEndpoint,
			Protocol: cfg.TraceOTLPProtocol,
			Insecure: cfg.TraceOTLPInsecure,
		},
	})
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	db, err := database.ConnectPostgres(database.PostgresConfig{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		Username:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             cfg.DatabaseMigrationVersion,
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.MigratePostgres(db.Unwrap(), cfg.DatabaseName); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	// Optional backends: redis (scheduler locks), kafka (events), graph.
	var redisClient *redis.Client
	var locker *redis.Locker
	if cfg.SchedulerEnabled {
		redisClient, err = redis.NewClient(redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to redis")
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient, "clover:lock:")
	}

	var emitter *events.Emitter
	if cfg.KafkaProducerEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	var projector *graph.Projector
	if cfg.GraphEnabled {
		graphClient, err := graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to graph database")
			os.Exit(1)
		}
		defer graphClient.Close(context.Background())
		projector = graph.NewProjector(graphClient, logger)
	}

	// Repositories
	companies := company.NewRepository(db, logger)
	people := person.NewRepository(db, logger)
	domains := companydomain.NewRepository(db, logger)
	candidates := duplicatecandidate.NewRepository(db, logger)
	audits := mergeaudit.NewRepository(db, logger)
	scanRuns := scanrun.NewRepository(db, logger)
	autoMergeRuns := automergerun.NewRepository(db, logger)
	tenants := tenant.NewRepository(db, logger)

	// Core services
	matchConfig := matching.DefaultMatchConfig()
	matchConfig.AutoLinkThreshold = cfg.AutoLinkThreshold
	matchConfig.SuggestThreshold = cfg.SuggestThreshold
	matchConfig.ProvisionalThreshold = cfg.ProvisionalThreshold

	matchService := matching.NewService(logger,
		matching.NewCompanyMatcher(logger, companies),
		matching.NewPersonMatcher(logger, people, companies),
		matchConfig,
	)

	var mergeEmitter merging.MergeEmitter
	var mergeProjector merging.MergeProjector
	var scanEmitter dedupe.ScanEmitter
	var runEmitter automerge.RunEmitter
	if emitter != nil {
		mergeEmitter = emitter
		scanEmitter = emitter
		runEmitter = emitter
	}
	if projector != nil {
		mergeProjector = projector
	}

	engine := merging.NewEngine(db, logger, companies, people, audits, candidates, mergeEmitter, mergeProjector)

	scanConfig := dedupe.DefaultConfig()
	scanConfig.ScoreFloor = cfg.ScanScoreFloor
	scanConfig.StaleCandidateMaxAge = cfg.StaleCandidateMaxAge
	scanner := dedupe.NewScanner(logger, companies, domains, people, candidates, scanRuns, scanEmitter, scanConfig)

	policyConfig := automerge.Config{
		MinConfidence: cfg.AutoMergeMinConfidence,
		MaxPerRun:     cfg.AutoMergeMaxPerRun,
		DryRun:        cfg.AutoMergeDryRun,
	}
	policy := automerge.NewPolicy(logger, candidates, companies, people, engine, autoMergeRuns, runEmitter)

	// HTTP server. The redis pinger stays nil when redis is not configured.
	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	healthChecker := health.NewChecker(db.Unwrap(), redisPinger, version)

	srv := server.New(server.Config{
		AppName:      cfg.AppName,
		Port:         cfg.Port,
		ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}, logger, server.Handlers{
		Match:     match.NewHandler(matchService),
		Merge:     merge.NewHandler(engine, audits),
		Duplicate: duplicate.NewHandler(scanner, policy, candidates, engine, policyConfig),
		Health:    healthChecker,
	})

	// Background jobs
	var jobs *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		jobs = scheduler.NewScheduler(tenants, scanner, &autoMergeJob{policy: policy, cfg: policyConfig}, locker, scheduler.Config{
			ScanInterval:      cfg.ScanInterval,
			AutoMergeInterval: cfg.AutoMergeInterval,
			LockTTL:           cfg.SchedulerLockTTL,
			AutoMergeEnabled:  cfg.AutoMergeEnabled,
		}, logger)
		if err := jobs.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start scheduler")
			os.Exit(1)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	healthChecker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
		}
	}

	healthChecker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if jobs != nil {
		if err := jobs.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Scheduler did not stop cleanly")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server did not stop cleanly")
	}

	logger.Info("Shutdown complete")
}

// autoMergeJob binds the configured policy to the scheduler's job interface.
type autoMergeJob struct {
	policy *automerge.Policy
	cfg    automerge.Config
}

func (j *autoMergeJob) Run(ctx context.Context, tenantID string, actor string) (*models.AutoMergeRun, error) {
	return j.policy.Run(ctx, tenantID, actor, j.cfg)
}
