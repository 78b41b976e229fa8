package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oonrumail/emailguard/audit"
	"github.com/oonrumail/emailguard/config"
	"github.com/oonrumail/emailguard/httpapi"
	"github.com/oonrumail/emailguard/objectstore"
	"github.com/oonrumail/emailguard/orchestrator"
	"github.com/oonrumail/emailguard/repository"
	"github.com/oonrumail/emailguard/resolver"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	logger.Info("Starting emailguard",
		zap.String("version", orchestrator.Version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := initRedis(cfg.Redis)
	defer redisClient.Close()

	catalog := repository.New(dbPool, logger.Named("catalog"))
	if err := catalog.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate catalog schema", zap.Error(err))
	}

	objects, err := objectstore.New(ctx, cfg.S3, logger.Named("objectstore"))
	if err != nil {
		logger.Fatal("Failed to initialize object store", zap.Error(err))
	}

	dnsResolver := resolver.New(cfg.Resolver.DoHBaseURL, cfg.Resolver.Timeout, logger.Named("resolver")).
		WithRedisCache(redisClient)

	orch := orchestrator.New(dnsResolver, cfg.Factors.PerFactorTimeout, cfg.Factors.TotalTimeout, logger.Named("orchestrator"))

	auditSvc := audit.New(catalog, objects, cfg.Audit.HMACSecret,
		objectstore.RecordKey, objectstore.ExportKey, logger.Named("audit"))

	handler := httpapi.New(orch, dnsResolver, auditSvc, httpapi.AdminCredentials{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}, logger.Named("httpapi"))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Periodic TTL sweep: purge expired audit records and their objects.
	go runExpirySweep(ctx, catalog, objects, logger.Named("expiry"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

func runExpirySweep(ctx context.Context, catalog *repository.Catalog, objects *objectstore.ObjectStore, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := catalog.DeleteExpired(ctx)
			if err != nil {
				logger.Error("Expiry sweep failed", zap.Error(err))
				continue
			}
			for _, id := range ids {
				if err := objects.Delete(ctx, objectstore.RecordKey(id)); err != nil {
					logger.Warn("Failed to delete expired object", zap.String("id", id), zap.Error(err))
				}
			}
			if len(ids) > 0 {
				logger.Info("Purged expired records", zap.Int("count", len(ids)))
			}
		}
	}
}

func initLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoding := "json"
	if format == "console" {
		encoding = "console"
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}
