package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter/internal/api"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/email"
	"github.com/ignite/newsletter/internal/newsletter"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("loading config", "err", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("opening database", "err", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		logger.Error("database unreachable", "err", err.Error())
		os.Exit(1)
	}

	if err := newsletter.EnsureLinkSchema(ctx, db); err != nil {
		logger.Error("provisioning schema", "err", err.Error())
		os.Exit(1)
	}
	if err := newsletter.EnsureSubscriberSchema(ctx, db); err != nil {
		logger.Error("provisioning schema", "err", err.Error())
		os.Exit(1)
	}

	var limiter *api.RateLimiter
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Warn("redis unreachable, rate limiting disabled", "err", err.Error())
		} else {
			limiter = api.NewRateLimiter(redisClient, cfg.Broadcast.RatePerMinute, time.Minute)
		}
	}

	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		logger.Error("parsing email templates", "err", err.Error())
		os.Exit(1)
	}

	var mailer newsletter.Mailer
	switch cfg.Email.Transport {
	case "ses":
		mailer, err = email.NewSESMailer(ctx, cfg.Email)
		if err != nil {
			logger.Error("initializing SES", "err", err.Error())
			os.Exit(1)
		}
	default:
		mailer = email.NewAPIMailer(cfg.Email.APIURL, cfg.Email.APIKey, cfg.Email.From, nil)
	}

	svc := newsletter.NewService(
		newsletter.NewLinkStore(db),
		newsletter.NewSubscriberStore(db),
		mailer,
		renderer,
		newsletter.NewThumbprintGenerator(),
		newsletter.Config{
			ConfirmURLTemplate:     cfg.Links.ConfirmURL,
			UnsubscribeURLTemplate: cfg.Links.UnsubscribeURL,
			SurveyURL:              cfg.Links.SurveyURL,
			HomepageURL:            cfg.Links.HomepageURL,
			ConfirmSubject:         cfg.Email.ConfirmSubject,
			FeedbackSubject:        cfg.Email.FeedbackSubject,
		},
	)

	router := api.SetupRoutes(api.NewHandlers(svc), limiter, cfg.Broadcast.APIToken)
	server := api.NewServer(cfg.Server, router)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "err", err.Error())
			os.Exit(1)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err.Error())
	}
}
