package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dukerupert/ondo/internal/backup"
	"github.com/dukerupert/ondo/internal/config"
	"github.com/dukerupert/ondo/internal/database"
	"github.com/dukerupert/ondo/internal/handler"
	"github.com/dukerupert/ondo/internal/logging"
	"github.com/dukerupert/ondo/internal/push"
	"github.com/dukerupert/ondo/internal/server"
	"github.com/dukerupert/ondo/internal/store"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "vapid-keys" {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("ONDO_VAPID_PUBLIC_KEY=%s\nONDO_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.CSRFKeyRandom {
		slog.Warn("ONDO_CSRF_KEY not set, using a random key; open pages need a reload after restart")
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(os.Args) > 1 && os.Args[1] == "restore" {
		if err := restore(db, cfg.Backup, logger, os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := server.New(db, server.Config{
		FeeEpoch:       cfg.FeeEpoch,
		CSRFKey:        cfg.CSRFKey,
		SecureCookies:  cfg.SecureCookies,
		ViewerTTL:      cfg.ViewerTTL,
		MaxViewers:     cfg.MaxViewers,
		OriginPatterns: cfg.OriginPatterns,
		Backup:         cfg.Backup,
		Push:           cfg.Push,
	}, logger)

	if cfg.AdminEmail != "" {
		if err := ensureAdmin(srv.UserStore(), cfg.AdminEmail, cfg.AdminPassword); err != nil {
			slog.Error("bootstrap admin", "error", err)
			os.Exit(1)
		}
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: /ws connections stay open.
		IdleTimeout: 120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					slog.Debug("dropped rate limit windows", "count", n)
				}
				if n := srv.Viewers().Sweep(); n > 0 {
					slog.Debug("evicted idle viewers", "count", n)
				}
				if sched := srv.Scheduler(); sched != nil {
					if _, err := sched.PruneSent(90 * 24 * time.Hour); err != nil {
						slog.Error("prune sent notifications", "error", err)
					}
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	if srv.Backups().Enabled() {
		srv.Backups().Start(cleanupCtx)
		slog.Info("backups enabled", "interval", cfg.Backup.Interval, "retention", cfg.Backup.Retention)
	}

	if sched := srv.Scheduler(); sched != nil {
		sched.Start(cleanupCtx)
		slog.Info("push reminders enabled", "reminder_hour", cfg.Push.Schedule.ReminderHour, "fee_reminder_day", cfg.Push.Schedule.FeeReminderDay)
	}

	go func() {
		slog.Info("ondo starting", "addr", ":"+cfg.Port, "fee_epoch", cfg.FeeEpoch.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	srv.Backups().Stop()
	if sched := srv.Scheduler(); sched != nil {
		sched.Stop()
	}
	srv.Hub().Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// restore handles "ondo restore <object-key> <output-path>". The restored file
// is written next to, never over, the live database.
func restore(db *sql.DB, cfg backup.Config, logger *slog.Logger, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: ondo restore <object-key> <output-path>")
	}
	m := backup.NewManager(cfg, db, store.NewBackupStore(db), logger.With("component", "backup"))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := m.RestoreObject(ctx, args[0], args[1]); err != nil {
		return err
	}
	slog.Info("backup restored; stop the server and replace the database file to use it", "key", args[0], "path", args[1])
	return nil
}

// ensureAdmin creates the bootstrap admin, or promotes an existing user with
// that email. An existing password is left alone.
func ensureAdmin(users *store.UserStore, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := users.GetByEmail(email)
	if err != nil {
		return fmt.Errorf("look up admin: %w", err)
	}
	if u != nil {
		if u.Role != "admin" {
			if err := users.SetRole(u.ID, "admin"); err != nil {
				return fmt.Errorf("promote admin: %w", err)
			}
			slog.Info("promoted user to admin", "user_id", u.ID)
		}
		return nil
	}

	hash, err := handler.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	u, err = users.Create(email, hash, "admin")
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	slog.Info("created admin user", "user_id", u.ID, "email", email)
	return nil
}
