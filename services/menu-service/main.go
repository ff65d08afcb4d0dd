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
	ddb "github.com/AliakbarMohammadi/catring-313-sub001/pkg/dynamodb"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/dates"
	commondb "github.com/AliakbarMohammadi/catring-313-sub001/services/common/database"
	apperrors "github.com/AliakbarMohammadi/catring-313-sub001/services/common/errors"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/logger"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/middleware"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/controllers"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/database"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/repository"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/routes"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "menu-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		panic("config load failed: " + err.Error())
	}

	ctx := context.Background()
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

	var ledgerRepo repository.LedgerRepository
	switch cfg.LedgerBackend {
	case BackendDynamoDB:
		ledgerRepo = repository.NewDynamoLedgerRepository(ddb.NewClientFromConfig(awsCfg), cfg.DDBTable)
	default:
		ledgerRepo = repository.NewGormLedgerRepository(db)
	}
	log.Info("ledger backend selected", zap.String("backend", cfg.LedgerBackend))

	metrics := awspkg.NewMetricsClient(awsCfg)
	pubRepo := repository.NewGormPublicationRepository(db)
	ledgerSvc := services.NewLedgerService(ledgerRepo, pubRepo, metrics, log)
	oracle := services.NewAvailabilityOracle(ledgerRepo, pubRepo, clock)
	reservationSvc := services.NewReservationService(oracle, ledgerSvc, log)
	ctrl := controllers.NewLedgerController(ledgerSvc, oracle, reservationSvc)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.MetricsMiddleware(metrics, serviceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(apperrors.ErrorMiddleware())
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterRoutes(r, ctrl)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ledger_backend": cfg.LedgerBackend})
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info("Menu Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Menu Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Menu Service stopped gracefully")
}

func newLogger(env string, sink *awspkg.CloudWatchLogsClient) (*zap.Logger, error) {
	if sink == nil {
		return logger.New(env, nil)
	}
	return logger.New(env, sink)
}
