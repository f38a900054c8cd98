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
	"go.uber.org/zap"

	"github.com/bazaarhq/marketplace-api/internal/handlers"
	"github.com/bazaarhq/marketplace-api/internal/platform/config"
	pfirestore "github.com/bazaarhq/marketplace-api/internal/platform/firestore"
	"github.com/bazaarhq/marketplace-api/internal/platform/idempotency"
	"github.com/bazaarhq/marketplace-api/internal/platform/jobs"
	"github.com/bazaarhq/marketplace-api/internal/platform/observability"
	"github.com/bazaarhq/marketplace-api/internal/platform/secrets"
	firestoreRepo "github.com/bazaarhq/marketplace-api/internal/repositories/firestore"
	"github.com/bazaarhq/marketplace-api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := loadConfig(ctx, logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(pfirestore.Settings{
		ProjectID:    cfg.Firestore.ProjectID,
		EmulatorHost: cfg.Firestore.EmulatorHost,
	})
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	eventRepo, err := firestoreRepo.NewProcessedEventRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise processed event repository", zap.Error(err))
	}
	auditRepo, err := firestoreRepo.NewAuditRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise audit repository", zap.Error(err))
	}
	counterRepo, err := firestoreRepo.NewTenantCounterRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise tenant counter repository", zap.Error(err))
	}
	listingRepo, err := firestoreRepo.NewListingRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise listing repository", zap.Error(err))
	}

	auditSink, pubsubClient := buildAuditSink(ctx, logger, cfg)
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	auditor := services.NewOverrideAuditor(services.OverrideAuditorDeps{
		Logger: logger.Named("audit"),
		Audits: auditRepo,
		Sink:   auditSink,
		Clock:  time.Now,
	})

	shippingResolver := services.NewShippingResolver(services.ShippingResolverDeps{
		QuoteTimeout: cfg.Shipping.QuoteTimeout,
		Logger:       eventLog(logger.Named("shipping")),
	})

	amountResolver, err := services.NewAmountResolver(services.AmountResolverDeps{
		Shipping:        shippingResolver,
		Auditor:         auditor,
		PlatformFeeRate: cfg.Fees.PlatformFeeRate,
		Logger:          eventLog(logger.Named("resolver")),
	})
	if err != nil {
		logger.Fatal("failed to initialise amount resolver", zap.Error(err))
	}

	counterService, err := services.NewTenantCounterService(services.TenantCounterDeps{
		Counters: counterRepo,
		Listings: listingRepo,
		Logger:   eventLog(logger.Named("counters")),
	})
	if err != nil {
		logger.Fatal("failed to initialise tenant counter service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orderRepo,
		Resolver: amountResolver,
		Counters: counterService,
		Keys:     idempotency.NewBuilder(logger.Named("idempotency")),
		Clock:    time.Now,
		Logger:   eventLog(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	ledger, err := services.NewEventLedger(services.EventLedgerDeps{
		Events: eventRepo,
		Clock:  time.Now,
		Logger: eventLog(logger.Named("ledger")),
	})
	if err != nil {
		logger.Fatal("failed to initialise event ledger", zap.Error(err))
	}

	webhookService, err := services.NewPaymentWebhookService(services.PaymentWebhookDeps{
		Ledger: ledger,
		Orders: orderService,
		Clock:  time.Now,
		Logger: eventLog(logger.Named("webhooks")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment webhook service", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck(func(ctx context.Context) error {
			_, err := firestoreProvider.Client(ctx)
			return err
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(loggerMiddleware(logger.Named("http"))),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(orderService).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(webhookService, cfg.Stripe.WebhookSecret).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("marketplace api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// loadConfig wires the Secret Manager fetcher into config loading when a
// project is available, so secret:// references in the Stripe settings resolve.
func loadConfig(ctx context.Context, logger *zap.Logger) (config.Config, error) {
	projectID := strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID"))
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	}
	if projectID == "" {
		return config.Load(ctx)
	}

	fetcher, err := secrets.NewFetcher(ctx, projectID, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Warn("secret fetcher unavailable; secret references will not resolve", zap.Error(err))
		return config.Load(ctx)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()
	return config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
}

// buildAuditSink connects the Pub/Sub audit publisher when a topic is
// configured. The sink is optional; without one the zap warning and the
// Firestore append remain the audit trail.
func buildAuditSink(ctx context.Context, logger *zap.Logger, cfg config.Config) (services.AuditSink, *pubsub.Client) {
	topicID := strings.TrimSpace(cfg.Audit.TopicID)
	if topicID == "" {
		return nil, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.Audit.ProjectID)
	if err != nil {
		logger.Warn("pubsub client unavailable; audit events stay local", zap.Error(err))
		return nil, nil
	}
	publisher, err := jobs.NewPubSubAuditPublisher(client.Topic(topicID))
	if err != nil {
		logger.Warn("audit publisher unavailable", zap.Error(err))
		_ = client.Close()
		return nil, nil
	}
	return publisher, client
}

func eventLog(logger *zap.Logger) services.Logger {
	return services.Logger(observability.EventLogger(logger))
}

func loggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), logger)))
			logger.Info("request handled",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
