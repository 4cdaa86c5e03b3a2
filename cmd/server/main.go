package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/liondadev/quick-file-share/audit"
	"github.com/liondadev/quick-file-share/blob"
	"github.com/liondadev/quick-file-share/config"
	"github.com/liondadev/quick-file-share/credential"
	"github.com/liondadev/quick-file-share/server"
	"github.com/liondadev/quick-file-share/share"
	"github.com/liondadev/quick-file-share/store"
	"github.com/liondadev/quick-file-share/token"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "config.json", "path to a json config file, skipped if it doesn't exist")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.LookupEnv)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Production)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(production bool) *slog.Logger {
	if production {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func signingKey(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SigningKey != "" {
		return []byte(cfg.SigningKey), nil
	}

	// Validate already refused this in production
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate ephemeral signing key: %w", err)
	}
	logger.Warn("no SECRET_KEY configured, using an ephemeral key; tokens won't survive a restart")
	return key, nil
}

func openBlobs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blob.Store, error) {
	if cfg.S3.Bucket != "" {
		logger.Info("storing blobs in s3", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		return blob.NewS3FromOptions(ctx, blob.S3Options{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		})
	}

	logger.Info("storing blobs on disk", "path", cfg.FSPath)
	return blob.NewFS(cfg.FSPath)
}

func newRevoker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (token.Revoker, func() error, error) {
	noop := func() error { return nil }
	if cfg.RedisAddr == "" {
		logger.Info("download token revocation enabled (in memory)")
		return token.NewMemoryRevoker(nil), noop, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, noop, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("download token revocation enabled (redis)", "addr", cfg.RedisAddr)
	return token.NewRedisRevoker(rdb), rdb.Close, nil
}

// sweepPolicy maps the validated sweep_blob_errors setting.
func sweepPolicy(setting string) share.SweepPolicy {
	if setting == config.SweepPurge {
		return share.PurgeOnBlobError
	}
	return share.RetainOnBlobError
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := openBlobs(ctx, cfg, logger)
	if err != nil {
		return err
	}

	auditLog, err := audit.Open(cfg.AuditDir, logger)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	key, err := signingKey(cfg, logger)
	if err != nil {
		return err
	}
	signerOpts := []token.Option{token.WithAccessTTL(time.Duration(cfg.AccessTokenMinutes) * time.Minute)}
	if cfg.RevokeOnChange {
		revoker, closeRevoker, err := newRevoker(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeRevoker()
		signerOpts = append(signerOpts, token.WithRevoker(revoker))
	}
	signer, err := token.NewSigner(key, signerOpts...)
	if err != nil {
		return err
	}

	hasher := credential.Bcrypt{}
	manager, err := share.NewManager(st, blobs, hasher, signer, auditLog, share.Options{
		BaseURL:        cfg.BaseURL,
		RevokeOnChange: cfg.RevokeOnChange,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	sweeper := share.NewSweeper(manager, time.Duration(cfg.SweepInterval), sweepPolicy(cfg.SweepBlobErrors))

	svr := server.New(cfg, st, hasher, signer, manager)
	if err := svr.SetupHTTP(); err != nil {
		return fmt.Errorf("setup http: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen, "base_url", cfg.BaseURL)
		return svr.Run(ctx, cfg.Listen)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
