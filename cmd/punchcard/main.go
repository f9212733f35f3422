package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/punchcardhq/punchcard/internal/backup"
	"github.com/punchcardhq/punchcard/internal/database"
	"github.com/punchcardhq/punchcard/internal/logging"
	"github.com/punchcardhq/punchcard/internal/server"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("PUNCHCARD_LOG_LEVEL"), os.Getenv("PUNCHCARD_LOG_FORMAT"))

	port := envDefault("PUNCHCARD_PORT", "8080")
	dbPath := envDefault("PUNCHCARD_DB_PATH", "punchcard.db")

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database failed", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		WalletWebhookURL: os.Getenv("PUNCHCARD_WALLET_WEBHOOK_URL"),
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("PUNCHCARD_S3_ENDPOINT"),
				Bucket:    os.Getenv("PUNCHCARD_S3_BUCKET"),
				Region:    envDefault("PUNCHCARD_S3_REGION", "auto"),
				AccessKey: os.Getenv("PUNCHCARD_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("PUNCHCARD_S3_SECRET_KEY"),
			},
			DBPath:        dbPath,
			Passphrase:    os.Getenv("PUNCHCARD_BACKUP_PASSPHRASE"),
			Interval:      envDuration("PUNCHCARD_BACKUP_INTERVAL_HOURS", 24) * time.Hour,
			RetentionDays: envInt("PUNCHCARD_BACKUP_RETENTION_DAYS", 30),
		},
	}

	srv := server.New(db, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.WalletQueue().Start(ctx)
	defer srv.WalletQueue().Stop()

	if srv.BackupManager().Enabled() {
		srv.BackupManager().Start(ctx)
		defer srv.BackupManager().Stop()
	}

	// Housekeeping: expired sessions and stale rate-limit windows.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Warn("session cleanup failed", "error", err)
				} else if n > 0 {
					logger.Debug("expired sessions removed", "count", n)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("punchcard listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback))
}
