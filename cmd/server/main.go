package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zakariya2002/autisme-connect-sub000/internal/app"
	"github.com/zakariya2002/autisme-connect-sub000/internal/config"
	"github.com/zakariya2002/autisme-connect-sub000/internal/controller"
	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/httpapi"
	"github.com/zakariya2002/autisme-connect-sub000/internal/invoice"
	"github.com/zakariya2002/autisme-connect-sub000/internal/migrations"
	"github.com/zakariya2002/autisme-connect-sub000/internal/notify"
	"github.com/zakariya2002/autisme-connect-sub000/internal/payment"
	"github.com/zakariya2002/autisme-connect-sub000/internal/pinattempt"
	"github.com/zakariya2002/autisme-connect-sub000/internal/policy"
	"github.com/zakariya2002/autisme-connect-sub000/internal/repository"
	"github.com/zakariya2002/autisme-connect-sub000/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting appointment engine",
		zap.String("environment", cfg.Environment),
		zap.String("timezone", cfg.Timezone),
	)

	shutdownTracing := app.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.OTLPInsecure, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		_ = migrator.Close()
		return err
	}
	_ = migrator.Close()

	appointments := repository.NewAppointmentRepository(pool)
	parties := repository.NewPartyRepository(pool)

	attempts, closeRedis, err := pinAttemptStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	var telegram *bot.Bot
	if cfg.TelegramToken != "" {
		telegram, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, bot and chat notifications disabled")
	}

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if telegram != nil {
		notifiers = append(notifiers, notify.NewTelegramNotifier(telegram, parties, cfg.LanguageTag()))
	}
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()
		publisher, err := notify.NewRabbitPublisher(conn, cfg.RabbitMQExchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	events := notify.NewDispatcher(logger, notifiers...)
	defer events.Wait()

	invoices, err := invoiceGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var processor payment.Processor
	if cfg.PaymentBaseURL != "" {
		processor = payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentAPIKey, logger)
	} else {
		logger.Warn("PAYMENT_BASE_URL not set, payments are only logged")
		processor = payment.NewLogProcessor(logger)
	}

	schedule, err := cfg.FeeSchedule()
	if err != nil {
		return fmt.Errorf("fee schedule: %w", err)
	}
	evaluator := policy.NewEvaluator(cfg.PolicyConfig())
	calculator := finance.NewCalculator(schedule)
	hasher := pinattempt.NewHasher(bcrypt.DefaultCost)

	settler := service.NewSettler(appointments, processor, invoices, events, time.Now, logger)
	appointmentService := service.NewAppointmentService(appointments, parties, evaluator, calculator, hasher, settler, events, time.Now, logger)
	gate := service.NewSessionGate(appointments, attempts, hasher, evaluator, calculator, settler, events, cfg.MaxPinAttempts, time.Now, logger)

	scheduler := app.NewScheduler(settler, cfg.SettlementRetryInterval, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if telegram != nil {
		botController := controller.NewBotController(telegram, appointmentService, gate, cfg.Location(), cfg.LanguageTag(), logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Bot commands menu not set", zap.Error(err))
		}
		go botController.Start(ctx)
	}

	handler := httpapi.NewHandler(appointmentService, gate, httpapi.Options{
		SupportAPIKey: cfg.SupportAPIKey,
		Health:        pool,
	}, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
	return nil
}

// pinAttemptStore uses Redis when configured. The in-memory counter is only
// correct with a single instance.
func pinAttemptStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pinattempt.Store, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, PIN attempts are counted in memory")
		return pinattempt.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return pinattempt.NewRedisStore(client), func() { _ = client.Close() }, nil
}

// invoiceGenerator archives invoices in MinIO. Without MinIO no invoice is
// produced.
func invoiceGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.InvoiceGenerator, error) {
	if cfg.MinioEndpoint == "" {
		logger.Warn("MINIO_ENDPOINT not set, invoices are not archived")
		return nil, nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	store := invoice.NewMinioStore(client, cfg.MinioBucket)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return invoice.NewGenerator(store, cfg.LanguageTag(), logger), nil
}
