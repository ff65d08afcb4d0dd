package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	commondb "github.com/AliakbarMohammadi/catring-313-sub001/services/common/database"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
	apperrors "github.com/AliakbarMohammadi/catring-313-sub001/services/common/errors"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/logger"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/middleware"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/controllers"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/database"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/kafka"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/routes"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "order-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		panic("config load failed: " + err.Error())
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		panic("aws config load failed: " + err.Error())
	}

	cwLogs, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, serviceName)
	var sink *awspkg.CloudWatchLogsClient
	if err == nil && cwLogs.IsEnabled() {
		sink = cwLogs
	}
	log, lerr := newLogger(cfg.Env, sink)
	if lerr != nil {
		panic("failed to initialize logger: " + lerr.Error())
	}
	defer log.Sync()
	if err != nil {
		log.Warn("CloudWatch logs client init failed (non-fatal)", zap.Error(err))
	}

	clock, err := dates.LoadClock(cfg.Timezone)
	if err != nil {
		log.Fatal("invalid timezone", zap.Error(err))
	}

	db, err := database.Connect(cfg.Postgres, log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer commondb.Close(db)

	metrics := awspkg.NewMetricsClient(awsCfg)
	compRepo := repositories.NewGormCompensationRepository(db)
	coordinator := reservation.NewCoordinator(services.NewMenuClient(cfg.MenuServiceURL), compRepo, log)

	deps := services.Dependencies{
		Orders:      repositories.NewGormOrderRepository(db),
		Coordinator: coordinator,
		Clock:       clock,
		Metrics:     metrics,
		Logger:      log,
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable at startup, idempotency keys degrade until it recovers", zap.Error(err))
		}
		cancel()
		deps.Idempotency = repositories.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL, cfg.IdempotencyLease)
	} else {
		log.Warn("REDIS_URL not set, Idempotency-Key headers are ignored")
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer producer.Close()
		deps.Events = producer
	}

	if cfg.SNSTopicArn != "" {
		deps.Notifier = awspkg.NewSNSClient(awsCfg)
		deps.NotifyTopicArn = cfg.SNSTopicArn
	}

	orderService := services.NewOrderService(deps)

	if cfg.PaymentQueue != "" {
		consumer := services.NewSQSPaymentConsumer(awspkg.NewSQSConsumer(awsCfg, cfg.PaymentQueue, log), orderService, log)
		go consumer.Start(ctx)
	}

	worker := services.NewCompensationWorker(compRepo, coordinator, cfg.CompensationInterval, cfg.CompensationMaxAttempts, metrics, log)
	go worker.Start(ctx)

	createLimit := middleware.NewRateLimiter(rate.Limit(cfg.CreateRatePerSecond), cfg.CreateBurst, 10*time.Minute)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				createLimit.Sweep()
			}
		}
	}()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.MetricsMiddleware(metrics, serviceName))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(apperrors.ErrorMiddleware())
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterOrderRoutes(r,
		controllers.NewOrderController(orderService),
		controllers.NewCompensationController(worker),
		createLimit,
	)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Order Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Order Service...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Order Service stopped gracefully")
}

func newLogger(env string, sink *awspkg.CloudWatchLogsClient) (*zap.Logger, error) {
	if sink == nil {
		return logger.New(env, nil)
	}
	return logger.New(env, sink)
}
