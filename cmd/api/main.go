package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-equity-auth/internal/application/auth"
	"github.com/go-equity-auth/internal/application/twofactor"
	"github.com/go-equity-auth/internal/config"
	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/infrastructure/awscfg"
	"github.com/go-equity-auth/internal/infrastructure/backend"
	"github.com/go-equity-auth/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-equity-auth/internal/infrastructure/jwt"
	"github.com/go-equity-auth/internal/infrastructure/memory"
	redisinfra "github.com/go-equity-auth/internal/infrastructure/redis"
	s3infra "github.com/go-equity-auth/internal/infrastructure/s3"
	"github.com/go-equity-auth/internal/infrastructure/smtp"
	"github.com/go-equity-auth/internal/infrastructure/sns"
	"github.com/go-equity-auth/internal/infrastructure/vault"
	"github.com/go-equity-auth/internal/logger"
	transporthttp "github.com/go-equity-auth/internal/transport/http"
	"github.com/go-equity-auth/internal/transport/http/cookies"
	"github.com/go-equity-auth/internal/transport/http/handler"
	appmiddleware "github.com/go-equity-auth/internal/transport/http/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	secretCacheTTL  = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogDir, cfg.LogTee, logger.LevelFor(cfg.AppEnv))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	if cfg.NeedsSecrets() {
		vc, err := vault.New(ctx, secretCacheTTL, zl)
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		if err := cfg.ResolveSecrets(ctx, vc); err != nil {
			return err
		}
	}
	if cfg.JWTSecret == "" {
		zl.Warn("JWT_SECRET is not set; logins will fail until it is configured")
	}

	checks := map[string]handler.Check{}
	store, err := newCodeStore(ctx, cfg, zl, checks)
	if err != nil {
		return err
	}

	mailer := smtp.NewMailer(smtp.SettingsFrom(cfg))
	if !mailer.Configured() {
		zl.Warn("SMTP relay is not fully configured; code emails will fail")
	}

	renderer, err := newRenderer(ctx, cfg, zl)
	if err != nil {
		return err
	}

	var smsSender twofactor.SMSSender
	if cfg.SMSEnabled {
		awsCfg, err := awscfg.Load(ctx, cfg, cfg.SNSRegion)
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		smsSender = sns.NewSender(sns.NewClient(awsCfg, cfg.AWSEndpointURL))
	}

	creds, err := newBackend(cfg, zl)
	if err != nil {
		return err
	}

	policy := domain.NewTwoFactorPolicy(cfg.TwoFactorRoles)
	tokens := jwtinfra.NewProvider(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	cm := cookies.NewManager(tokens, cfg.JWTSecret, cookies.Options{
		MaxAge: cfg.CookieMaxAge,
		Secure: cfg.CookieSecure,
	})

	trusted, err := appmiddleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	deps := &transporthttp.Deps{
		Auth: auth.NewService(auth.ServiceDeps{
			Backend: creds,
			Tokens:  tokens,
			Policy:  policy,
			Logger:  zl.Named("auth"),
		}),
		TwoFactor: twofactor.NewService(twofactor.ServiceDeps{
			Store:    store,
			Mailer:   mailer,
			Renderer: renderer,
			SMS:      smsSender,
			Settings: twofactor.Settings{
				TTL:            cfg.CodeTTL,
				MaxAttempts:    cfg.CodeMaxAttempts,
				ResendCooldown: cfg.CodeResendCooldown,
				SenderName:     cfg.SMTPFromName,
				SMSEnabled:     cfg.SMSEnabled,
			},
			Logger: zl.Named("twofactor"),
		}),
		Cookies: cm,
		Policy:  policy,
		Logger:  zl.Named("http"),
		Checks:  checks,

		TrustedProxies: trusted,
	}
	if cfg.BackendURL != "" {
		u, err := url.Parse(cfg.BackendURL)
		if err != nil {
			return fmt.Errorf("backend url: %w", err)
		}
		deps.Backend = u
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting",
			zap.String("port", cfg.AppPort),
			zap.String("env", cfg.AppEnv),
			zap.String("code_store", cfg.CodeStore),
			zap.String("backend", cfg.BackendMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	zl.Info("server stopped")
	return nil
}

// newCodeStore builds the configured store and registers its readiness check.
func newCodeStore(ctx context.Context, cfg *config.Config, zl *zap.Logger, checks map[string]handler.Check) (twofactor.CodeStore, error) {
	switch cfg.CodeStore {
	case "redis":
		rdb := redisinfra.NewClient(cfg)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return redisinfra.NewCodeStore(rdb, cfg.CodeRetention), nil

	case "dynamo":
		awsCfg, err := awscfg.Load(ctx, cfg, "")
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		client := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
		if cfg.DynamoBootstrap {
			dynamo.Bootstrap(ctx, client, cfg.DynamoCodeTable, zl)
		}
		checks["dynamodb"] = func(ctx context.Context) error {
			_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(cfg.DynamoCodeTable)})
			return err
		}
		return dynamo.NewCodeStore(client, cfg.DynamoCodeTable, cfg.CodeRetention), nil

	default:
		store := memory.NewCodeStore(cfg.CodeRetention, cfg.CodeStoreCapacity, zl.Named("codes"))
		go store.Run(ctx, cfg.CodeSweepInterval)
		return store, nil
	}
}

// newRenderer reads template overrides from S3 when a bucket is configured.
func newRenderer(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*smtp.Renderer, error) {
	if cfg.TemplateBucket == "" {
		return smtp.NewRenderer(nil, zl.Named("templates")), nil
	}
	awsCfg, err := awscfg.Load(ctx, cfg, "")
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	src := s3infra.NewTemplateSource(s3infra.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.TemplateBucket, cfg.TemplatePrefix)
	return smtp.NewRenderer(src, zl.Named("templates")), nil
}

func newBackend(cfg *config.Config, zl *zap.Logger) (auth.Backend, error) {
	if cfg.BackendMode == "rest" {
		return backend.NewClient(cfg.BackendURL, cfg.BackendTimeout), nil
	}
	m, err := backend.NewMock(cfg.MockUsers, bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("mock users: %w", err)
	}
	if m.Len() == 0 {
		zl.Warn("mock backend has no users; set MOCK_USERS")
	}
	return m, nil
}
