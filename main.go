package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-login/internal/auth"
	"github.com/example/face-login/internal/config"
	"github.com/example/face-login/internal/faceverifier"
	"github.com/example/face-login/internal/grpcclient"
	"github.com/example/face-login/internal/handlers"
	"github.com/example/face-login/internal/imagestore"
	"github.com/example/face-login/internal/logging"
	"github.com/example/face-login/internal/matcher"
	"github.com/example/face-login/internal/repository"
	"github.com/example/face-login/internal/usecase"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:           "face-login",
		Short:         "Face recognition login service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host (overrides HOST)")
	cmd.Flags().IntVar(&port, "port", 5000, "listen port (overrides PORT)")
	return cmd
}

func run(cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	logger.Info("reference images folder", zap.String("path", cfg.ReferenceDir))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	verifier, closeVerifier, err := initVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeVerifier()

	store, err := imagestore.NewStore(cfg.UploadDir)
	if err != nil {
		return err
	}
	faceMatcher := matcher.New(cfg.ReferenceDir, verifier, logger, matcher.WithTimeout(cfg.Verifier.Timeout))

	var opts []usecase.Option
	if cfg.DatabaseDSN != "" {
		repo, err := initRepository(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return err
		}
		opts = append(opts, usecase.WithRepository(repo))
	}
	if cfg.RedisAddr != "" {
		redisClient, err := initRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		opts = append(opts, usecase.WithCache(usecase.NewRedisCache(redisClient)))
	}
	uc := usecase.NewLoginUseCase(store, faceMatcher, logger, opts...)

	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Audience, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))
	handlers.RegisterRoutes(r, uc, handlers.RouteOptions{
		AllowedOrigin: cfg.AllowedOrigin,
		Tokens:        issuer,
		Auth:          auth.JWTMiddleware(cfg.Auth.Secret, cfg.Auth.Audience),
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face login API listening", zap.String("addr", cfg.Addr()))
	return serveHTTPServer(server, cfg.ShutdownTimeout, logger)
}

func initVerifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (faceverifier.Verifier, func(), error) {
	if cfg.Verifier.Mode == config.VerifierModeHTTP {
		logger.Info("using HTTP face verifier", zap.String("url", cfg.Verifier.URL))
		return faceverifier.NewHTTPClient(cfg.Verifier.URL, cfg.Verifier.Model, logger), func() {}, nil
	}

	verifier, conn, err := grpcclient.DialFaceVerifier(ctx, cfg.Verifier.Addr, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to face verifier: %w", err)
	}
	logger.Info("using gRPC face verifier", zap.String("addr", cfg.Verifier.Addr))
	return verifier, func() { conn.Close() }, nil
}

func initRepository(ctx context.Context, dsn string, logger *zap.Logger) (*repository.AttemptRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	repo := repository.NewAttemptRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return repo, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a shutdown
// signal arrives, then drains in-flight logins. listener and signalCh may be
// nil to use ListenAndServe and SIGINT/SIGTERM.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
