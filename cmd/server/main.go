package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gtpesantren22/wasender/internal/config"
	"github.com/gtpesantren22/wasender/internal/database"
	"github.com/gtpesantren22/wasender/internal/dispatch"
	"github.com/gtpesantren22/wasender/internal/handlers"
	"github.com/gtpesantren22/wasender/internal/logger"
	"github.com/gtpesantren22/wasender/internal/repository"
	"github.com/gtpesantren22/wasender/internal/router"
	"github.com/gtpesantren22/wasender/internal/services"
	"github.com/gtpesantren22/wasender/internal/wa"
	"github.com/gtpesantren22/wasender/internal/websocket"
)

func main() {
	cfg := config.Load()

	zapLogger, err := logger.New(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}, logger.DefaultServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		zapLogger.Fatal("invalid TIMEZONE", zap.String("tz", cfg.Timezone), zap.Error(err))
	}

	// Postgres (attendance)
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()
	zapLogger.Info("postgres connected")

	if err := database.RunMigrations(pool, "migrations"); err != nil {
		zapLogger.Fatal("database migration failed", zap.Error(err))
	}
	zapLogger.Info("database migrations applied")

	// Redis (dispatch queue + session event pub/sub)
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClients.Close()
	zapLogger.Info("redis connected")

	// Session manager publishing state events over redis pub/sub
	publisher := websocket.NewPublisher(redisClients.Queue, websocket.EventsChannel, zapLogger)
	session, err := wa.NewManager(cfg.WAStoreURL, cfg.BotName, publisher.Publish, zapLogger)
	if err != nil {
		zapLogger.Fatal("whatsapp store init failed", zap.Error(err))
	}

	// Dispatcher
	var queue dispatch.Queue
	if cfg.QueueBackend == "memory" {
		queue = dispatch.NewInMemory(64)
	} else {
		queue = dispatch.NewRedisQueue(redisClients.Queue, "wasender:dispatch")
	}
	dispatcher := dispatch.New(queue, session, cfg.DispatchWorkers, zapLogger)
	if err := dispatcher.Start(); err != nil {
		zapLogger.Fatal("dispatcher start failed", zap.Error(err))
	}

	// Attendance
	attendanceRepo := repository.NewAttendanceRepo(pool)
	attendanceService := services.NewAttendance(
		services.PgStore(attendanceRepo), dispatcher, cfg.APIKey, cfg.BotName, loc, zapLogger)

	// Handlers + realtime hub
	waHandler := handlers.NewWhatsAppHandler(session, dispatcher, cfg.APIKey, zapLogger)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceService, zapLogger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	wsHub := websocket.NewHub(redisClients.PubSub, websocket.EventsChannel, session.Snapshot, zapLogger)
	go wsHub.Run(hubCtx)

	// Connect to WhatsApp; an unpaired device publishes its QR to observers.
	go func() {
		if err := session.Start(context.Background()); err != nil {
			zapLogger.Error("whatsapp session start failed", zap.Error(err))
		}
	}()

	r := router.New(waHandler, attendanceHandler, wsHub, "web")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		zapLogger.Info("shutting down")
		dispatcher.Stop()
		hubCancel()
		session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	zapLogger.Info("wasender ready", zap.String("addr", "http://localhost:"+cfg.Port))

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		zapLogger.Fatal("server error", zap.Error(err))
	}
}
