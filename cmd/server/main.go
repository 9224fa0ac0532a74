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

	"grocery-orders/config"
	"grocery-orders/internal/api"
	"grocery-orders/internal/broker"
	"grocery-orders/internal/gateway"
	"grocery-orders/internal/redisclient"
	"grocery-orders/internal/service"
	"grocery-orders/internal/store"
	"grocery-orders/internal/util"
	"grocery-orders/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting grocery order service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("grocery-orders", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	repo := openStore(cfg, logger)
	defer repo.Close()

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	gw, err := openGateway(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize payment gateway", zap.Error(err))
	}

	var events service.EventPublisher
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrder))
	}

	paymentService := service.NewPaymentService(repo, gw, redisClient, events, service.PaymentConfig{
		Rates: service.Rates{
			TaxRate:        cfg.Business.TaxRate,
			DeliveryCharge: cfg.Business.DeliveryCharge,
		},
		Currency:           cfg.Business.Currency,
		CheckoutLockTTL:    cfg.Business.CheckoutLockTTL,
		IdempotencyTTL:     cfg.Business.IdempotencyTTL,
		ShopperIDMaxLength: cfg.Business.ShopperIDMaxLength,
	})
	orderService := service.NewOrderService(repo, events)
	reconciler := service.NewPaymentReconciler(repo, paymentService)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	// Without Kafka the webhook settles payments inside the request.
	sink := api.DirectSink(reconciler)
	var paymentWorker *worker.PaymentWorker
	if cfg.Kafka.Enabled {
		gatewayProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment)
		defer gatewayProducer.Close()
		sink = broker.NewGatewayEventPublisher(gatewayProducer)

		deadLetterProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicDeadLetter)
		defer deadLetterProducer.Close()

		paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup).
			WithDeadLetter(deadLetterProducer)
		paymentWorker = worker.NewPaymentWorker(paymentConsumer, reconciler)
		go func() {
			if err := paymentWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Payment worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, paymentService, gw, sink, cfg.Auth)
	handler.AddReadinessCheck("database", repo)
	handler.AddReadinessCheck("redis", redisClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if paymentWorker != nil {
		if err := paymentWorker.Stop(); err != nil {
			logger.Warn("Error stopping payment worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func openStore(cfg *config.Config, logger *zap.Logger) store.Repository {
	if cfg.Database.Driver == "memory" {
		if cfg.Server.IsProduction() {
			logger.Fatal("The memory store is not allowed in production")
		}
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemory()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}
	return db
}

// openGateway falls back to the offline sandbox outside production when no key is set.
func openGateway(cfg *config.Config) (gateway.Gateway, error) {
	if cfg.Stripe.SecretKey == "" && !cfg.Server.IsProduction() {
		util.GetLogger().Warn("STRIPE_SECRET not set; using the sandbox payment gateway")
		return gateway.NewSandbox(), nil
	}
	return gateway.NewStripe(cfg.Stripe)
}
