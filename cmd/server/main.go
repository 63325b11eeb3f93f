/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Harvest Engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env file, environment, flags)
  2. Initialize logger and SQLite store
  3. Choose a locker: Redis when REDIS_ADDR is set, in-process otherwise
  4. Build the service, API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -env     .env file to read (default: .env, missing is fine)
  -addr    Listen address, overrides HTTP_ADDR
  -db      SQLite database path, overrides DB_PATH
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go for every variable and its default.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (HTTP_SHUTDOWN_TIMEOUT)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/harvest.db"

  # Several replicas sharing one database and Redis
  REDIS_ADDR=localhost:6379 ./server -addr=:3000

SEE ALSO:
  - api/server.go: Router configuration
  - service/service.go: Command execution
  - config/config.go: Settings
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/api"
	"github.com/warp/harvest-engine/config"
	"github.com/warp/harvest-engine/lock"
	"github.com/warp/harvest-engine/metrics"
	"github.com/warp/harvest-engine/service"
	"github.com/warp/harvest-engine/store/sqlite"
)

func main() {
	// Flags
	envFile := flag.String("env", ".env", "dotenv file")
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	log := cfg.NewLogger(os.Stderr)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	locker, closeLocker := newLocker(cfg, log)
	defer closeLocker()

	m := metrics.New()
	svc := service.New(store, locker,
		service.WithMetrics(m),
		service.WithLogger(log),
		service.WithLockTimeout(cfg.LockTimeout),
	)

	// Create router
	router := api.NewRouter(api.NewHandler(svc, log), api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        m,
		Logger:         log,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Addr, "db": cfg.DBPath, "env": cfg.AppEnv}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		return
	}

	log.Info("server stopped")
}

// newLocker returns a Redis locker when REDIS_ADDR is set so replicas
// serialize commands on the same business, and a process-local one otherwise.
func newLocker(cfg *config.Config, log logrus.FieldLogger) (lock.Locker, func()) {
	if cfg.RedisAddr == "" {
		log.Info("using in-process business locks")
		return lock.NewMemory(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).WithField("redis", cfg.RedisAddr).Fatal("redis unreachable")
	}
	log.WithField("redis", cfg.RedisAddr).Info("using redis business locks")
	return lock.NewRedis(rdb, cfg.LockTTL, 0), func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("closing redis")
		}
	}
}
