package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/matcha-bridge/api/internal/handlers"
	"github.com/matcha-bridge/api/internal/platform/auth"
	"github.com/matcha-bridge/api/internal/platform/config"
	pfirestore "github.com/matcha-bridge/api/internal/platform/firestore"
	"github.com/matcha-bridge/api/internal/platform/jobs"
	"github.com/matcha-bridge/api/internal/platform/metrics"
	"github.com/matcha-bridge/api/internal/platform/observability"
	platformpg "github.com/matcha-bridge/api/internal/platform/postgres"
	"github.com/matcha-bridge/api/internal/platform/secrets"
	"github.com/matcha-bridge/api/internal/repositories"
	firestoreRepo "github.com/matcha-bridge/api/internal/repositories/firestore"
	"github.com/matcha-bridge/api/internal/repositories/memory"
	postgresRepo "github.com/matcha-bridge/api/internal/repositories/postgres"
	"github.com/matcha-bridge/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"], zap.String("service", "matcha-bridge-api"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger = logger.With(zap.String("environment", cfg.Security.Environment))

	registry, err := openRegistry(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	eventLogger := observability.EventLogger(logger.Named("events"))

	publisher, topic, stopPublisher, err := newEvaluationPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise evaluation publisher", zap.Error(err))
	}
	defer stopPublisher()

	complianceService, err := services.NewComplianceService(services.ComplianceServiceDeps{
		Rules:             registry.ComplianceRules(),
		Evaluations:       registry.ComplianceEvaluations(),
		Publisher:         publisher,
		Metrics:           m,
		DefaultDisclaimer: cfg.Compliance.DefaultDisclaimer,
		Logger:            eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise compliance service", zap.Error(err))
	}

	shippingService, err := services.NewShippingService(services.ShippingServiceDeps{
		RFQs:    registry.RFQs(),
		Metrics: m,
		Logger:  eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping service", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	systemService, err := newSystemService(registry, topic, fetcher, cfg, buildInfo)
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	authenticator := buildAuthenticator(ctx, logger.Named("auth"), cfg)
	limiter := handlers.NewRateLimiter(cfg.RateLimits.DefaultPerMinute, cfg.RateLimits.AuthenticatedPerMinute, cfg.RateLimits.Burst)

	complianceHandlers := handlers.NewComplianceHandlers(authenticator, complianceService, handlers.WithRateLimiter(limiter))
	adminHandlers := handlers.NewAdminComplianceHandlers(authenticator, complianceService)
	shippingHandlers := handlers.NewShippingHandlers(authenticator, shippingService, handlers.WithRateLimiter(limiter))
	rfqHandlers := handlers.NewRFQHandlers(authenticator, shippingService, handlers.WithRateLimiter(limiter))
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(systemService),
		handlers.WithHealthBuildInfo(buildInfo),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(m),
			observability.RecoveryMiddleware(logger.Named("http")),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithComplianceRoutes(complianceHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithShippingRoutes(shippingHandlers.Routes),
		handlers.WithRFQRoutes(rfqHandlers.Routes),
	}
	if m != nil {
		opts = append(opts, handlers.WithMetricsHandler(cfg.Metrics.Path, m.Handler()))
	}
	router := handlers.NewRouter(opts...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("storage", cfg.Storage.Driver))
	go func() {
		serverLogger.Info("matcha-bridge api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openRegistry selects the repository backend named by API_STORAGE_DRIVER.
func openRegistry(ctx context.Context, logger *zap.Logger, cfg config.Config) (repositories.Registry, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("storage: using in-memory repositories; data is lost on restart")
		return memory.NewRegistry(), nil
	case config.StorageDriverPostgres:
		db, err := platformpg.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := postgresRepo.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("postgres: migrate: %w", err)
			}
			logger.Info("storage: postgres schema applied")
		}
		registry, err := postgresRepo.NewRegistry(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return registry, nil
	default:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, err
		}
		return firestoreRepo.NewRegistry(provider)
	}
}

// newEvaluationPublisher returns a nil publisher when no topic is configured.
func newEvaluationPublisher(ctx context.Context, cfg config.Config) (services.EvaluationPublisher, *pubsub.Topic, func(), error) {
	topicName := strings.TrimSpace(cfg.PubSub.EvaluationsTopic)
	if topicName == "" {
		return nil, nil, func() {}, nil
	}

	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID, clientOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	topic := client.Topic(topicName)
	publisher, err := jobs.NewPubSubEvaluationPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	stop := func() {
		publisher.Stop()
		_ = client.Close()
	}
	return publisher, topic, stop, nil
}

func newSystemService(registry repositories.Registry, topic *pubsub.Topic, fetcher *secrets.Fetcher, cfg config.Config, build services.BuildInfo) (services.SystemService, error) {
	checks := []repositories.DependencyCheck{{
		Name:     cfg.Storage.Driver,
		Timeout:  1500 * time.Millisecond,
		Critical: true,
		Check:    registry.Ping,
	}}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}
	if fetcher != nil && strings.TrimSpace(cfg.Secrets.ProjectID) != "" {
		const secretHealthReference = "secret://system-healthz"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrSecretNotFound) || status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}

	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return services.NewSystemService(services.SystemServiceDeps{
		Health: repo,
		Clock:  time.Now,
		Build:  build,
	})
}

// buildAuthenticator returns nil when no Firebase project is configured, which leaves the API
// unauthenticated. That is only accepted outside production.
func buildAuthenticator(ctx context.Context, logger *zap.Logger, cfg config.Config) *auth.Authenticator {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		if cfg.Security.Environment == "prod" || cfg.Security.Environment == "production" {
			logger.Fatal("firebase project id is required in production")
		}
		logger.Warn("auth: firebase project not configured; routes are unauthenticated")
		return nil
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	return auth.NewAuthenticator(verifier, auth.WithAdminEmails(cfg.Security.AdminEmails...))
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

// newSecretFetcher reads its settings from the raw environment because secrets must be
// resolvable before config.Load runs.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithMeter(otel.GetMeterProvider().Meter("github.com/matcha-bridge/api/secrets")),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("API_SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if raw := lookup("API_SECRETS_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid API_SECRETS_CACHE_TTL: %w", err)
		}
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the config fields that must resolve for the selected driver.
func requiredSecretNames(env map[string]string) []string {
	driver := strings.ToLower(strings.TrimSpace(env["API_STORAGE_DRIVER"]))
	if driver == config.StorageDriverPostgres {
		return []string{"Postgres.DSN"}
	}
	return nil
}
