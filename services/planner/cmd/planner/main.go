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

	"hotelplan/internal/ratelimit"
	"hotelplan/internal/usertoken"
	"hotelplan/internal/util"
	"hotelplan/services/planner/internal/app"
	"hotelplan/services/planner/internal/config"
	"hotelplan/services/planner/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "planner", cfg.LogsDir)
	defer cleanup()

	leeway, err := config.ParseLeeway(cfg.JWTLeeway)
	if err != nil {
		util.Fatal("invalid jwt leeway", "err", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxy cidrs", "err", err)
	}

	var chatLimiter server.Limiter
	if cfg.ChatRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "hotelplan:ratelimit:chat",
			Limit:    cfg.ChatRateLimitPerMinute,
			Window:   time.Minute,
		})
		if err != nil {
			util.Fatal("failed to init chat rate limiter", "err", err)
		}
		defer limiter.Close()
		chatLimiter = limiter
	}

	appCore, err := app.New(app.Config{
		StoreDriver:           cfg.StoreDriver,
		DatabaseURL:           cfg.DatabaseURL,
		MinioEndpoint:         cfg.MinioEndpoint,
		MinioAccessKey:        cfg.MinioAccessKey,
		MinioSecretKey:        cfg.MinioSecretKey,
		MinioBucket:           cfg.MinioBucket,
		MinioUseSSL:           cfg.MinioUseSSL,
		RedisAddr:             cfg.RedisAddr,
		RedisPassword:         cfg.RedisPassword,
		QueueName:             cfg.QueueName,
		ConversationCacheSize: cfg.ConversationCacheSize,
		Logger:                logger,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	defer appCore.Close()

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Auth:           verifier,
		ChatLimiter:    chatLimiter,
		TrustedProxies: trustedProxies,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("planner server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
