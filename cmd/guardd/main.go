// Command guardd serves the goGuard JSON API.
//
// It is configured entirely through GUARD_* environment variables; see
// internal/config. Backends left unset fall back to in-process stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/config"
	"github.com/MrEthical07/goGuard/internal/logger"
	"github.com/MrEthical07/goGuard/internal/server"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/replay"
	"github.com/MrEthical07/goGuard/secrets"
	"github.com/MrEthical07/goGuard/session"
	"github.com/MrEthical07/goGuard/store/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := goGuard.New().
		WithConfig(cfg.EngineConfig()).
		WithLogger(log).
		WithRenderer(replay.NewImageRenderer()).
		WithAuditSink(goGuard.NewJSONWriterSink(os.Stdout))

	var checks []func(context.Context) error

	// -------- REDIS --------
	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:        []string{cfg.Redis.Addr},
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.Timeout,
			ReadTimeout:  cfg.Redis.Timeout,
			WriteTimeout: cfg.Redis.Timeout,
		})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		b.WithRedis(client)
		checks = append(checks, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		log.Info("sessions and rate limits on redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		mem := session.NewMemory()
		b.WithSessionStore(mem)
		go sweep(ctx, mem, log)
		log.Warn("sessions held in memory; they do not survive a restart")
	}

	// -------- POSTGRES --------
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.StatementTimeout)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		b.WithCredentialStore(postgres.NewAccountStore(db))
		if cfg.Redis.Addr == "" {
			b.WithRateLedger(postgres.NewLedger(db))
		}
		checks = append(checks, db.Ping)
		log.Info("accounts on postgres")
	} else {
		log.Warn("accounts held in memory; they do not survive a restart")
	}

	// -------- VAULT --------
	if cfg.Vault.Address != "" {
		vault, err := secrets.DialVault(secrets.VaultConfig{
			Address: cfg.Vault.Address,
			Token:   cfg.Vault.Token,
			Mount:   cfg.Vault.Mount,
			Timeout: cfg.Vault.Timeout,
		})
		if err != nil {
			return err
		}
		b.WithSecretStore(vault)
		log.Info("totp secrets on vault", zap.String("addr", cfg.Vault.Address), zap.String("mount", cfg.Vault.Mount))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()
	logSecurityReport(log, engine.SecurityReport())

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Engine.SessionTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.Cookie.SigningKey),
		Issuer:        "guardd",
	})
	if err != nil {
		return fmt.Errorf("session token manager: %w", err)
	}

	srv, err := server.New(server.Config{
		Engine: engine,
		Tokens: tokens,
		Cookie: middleware.CookieOptions{
			Name:              cfg.Cookie.Name,
			Domain:            cfg.Cookie.Domain,
			Secure:            cfg.Cookie.Secure,
			TrustForwardedFor: cfg.HTTP.TrustForwardedFor,
		},
		Logger:            log.Named("http"),
		CaptchaOnRegister: cfg.HTTP.CaptchaOnRegister,
		BotCheck:          cfg.HTTP.BotCheck,
		Health: func(ctx context.Context) error {
			for _, check := range checks {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if dropped := engine.AuditDropped(); dropped > 0 {
		log.Warn("audit events dropped", zap.Uint64("count", dropped))
	}
	return nil
}

func sweep(ctx context.Context, mem *session.Memory, log *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mem.Sweep(); n > 0 {
				log.Debug("swept expired sessions", zap.Int("count", n))
			}
		}
	}
}

func logSecurityReport(log *zap.Logger, r goGuard.SecurityReport) {
	log.Info("security report",
		zap.Bool("lockout", r.LockoutEnabled),
		zap.Int("lockout_threshold", r.LockoutThreshold),
		zap.Duration("lockout_duration", r.LockoutDuration),
		zap.Uint("totp_skew_steps", r.TOTPSkewSteps),
		zap.Int("backup_codes", r.BackupCodeCount),
		zap.Bool("strict_nonce_binding", r.StrictNonceBind),
		zap.Duration("min_form_time", r.MinFormTime),
		zap.Duration("max_form_time", r.MaxFormTime),
		zap.Bool("dedup_requires_id", r.DedupRequiresID),
		zap.Bool("register_limited", r.RegisterLimited),
		zap.Bool("login_limited", r.LoginLimited),
		zap.Bool("totp_limited", r.TOTPLimited),
		zap.Duration("session_ttl", r.SessionTTL),
		zap.Uint32("argon2_memory_kb", r.Argon2.Memory),
		zap.Uint32("argon2_time", r.Argon2.Time),
		zap.Bool("audit", r.AuditEnabled),
		zap.Bool("metrics", r.MetricsEnabled),
	)
	for _, code := range r.HighLintFindings {
		log.Warn("high severity config finding", zap.String("code", code))
	}
}
