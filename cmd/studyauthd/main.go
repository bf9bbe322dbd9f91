// Command studyauthd serves the studyauth HTTP API.
//
//	studyauthd -config /etc/studyauth.yaml
//
// Every file setting can be overridden with a STUDYAUTH_* environment variable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/studyauth"
	"github.com/MrEthical07/studyauth/httpapi"
	"github.com/MrEthical07/studyauth/internal/appconfig"
	"github.com/MrEthical07/studyauth/internal/applog"
	"github.com/MrEthical07/studyauth/internal/tracing"
	"github.com/MrEthical07/studyauth/mail"
	promexport "github.com/MrEthical07/studyauth/metrics/export/prometheus"
	"github.com/MrEthical07/studyauth/oauth"
	"github.com/MrEthical07/studyauth/store/postgres"
	"github.com/MrEthical07/studyauth/store/redisclient"
)

func main() {
	configPath := flag.String("config", os.Getenv("STUDYAUTH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("studyauthd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return err
	}
	logger := applog.SetupDefault(os.Stdout, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown", slog.String("error", err.Error()))
		}
	}()

	if cfg.Postgres.MigrateOnStart {
		if err := postgres.RunMigrations(cfg.Postgres.DSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}
	pool, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisHandle := redisclient.New(redisclient.Options{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisHandle.Close()
	rdb, err := redisHandle.Client(ctx)
	if err != nil {
		return err
	}

	mailer, err := newMailer(cfg.SMTP, logger)
	if err != nil {
		return err
	}

	engine, err := studyauth.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithUserStore(postgres.NewUsersStore(pool)).
		WithMailer(mailer).
		WithAuditSink(studyauth.NewSlogSink(logger.With(slog.String("component", "audit")))).
		WithLogger(logger).
		WithTracerProvider(tracerProvider).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	verifiers, err := newVerifiers(cfg.OAuth)
	if err != nil {
		return err
	}

	limiter := httpapi.NewIPLimiter(httpapi.IPLimiterConfig{
		Rate:  rate.Limit(float64(cfg.HTTP.IPRatePerMinute) / 60),
		Burst: cfg.HTTP.IPBurst,
	}, logger)
	defer limiter.Stop()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promexport.Handler(promexport.NewCollector(engine))
	}

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.RouterDeps{
			Engine:    engine,
			Verifiers: verifiers,
			IPLimiter: limiter,
			Cookies: httpapi.CookieConfig{
				Secure: cfg.HTTP.CookieSecure,
				Domain: cfg.HTTP.CookieDomain,
			},
			Logger:  logger,
			Metrics: metricsHandler,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTP.Addr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = engine.CloseContext(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.String("error", err.Error()))
	}
	if err := engine.CloseContext(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", slog.String("error", err.Error()))
	}
	return nil
}

func newMailer(cfg appconfig.SMTPConfig, logger *slog.Logger) (studyauth.Mailer, error) {
	if cfg.Host == "" {
		logger.Warn("smtp host not configured; verification codes will be logged")
		return mail.NewLogMailer(logger), nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		TLSMode:   cfg.TLSMode,
		FromName:  cfg.FromName,
		FromEmail: cfg.FromEmail,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newVerifiers(cfg appconfig.OAuthConfig) (*oauth.Registry, error) {
	var verifiers []oauth.Verifier
	if cfg.GoogleClientID != "" {
		v, err := oauth.NewGoogleVerifier(cfg.GoogleClientID)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	if cfg.AppleServiceID != "" {
		v, err := oauth.NewAppleVerifier(cfg.AppleServiceID)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	if cfg.GitHubClientID != "" {
		v, err := oauth.NewGitHubVerifier(oauth.GitHubConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		})
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	return oauth.NewRegistry(verifiers...), nil
}
