package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/internal/config"
	"github.com/nellyolofsson/wt2/internal/database"
	"github.com/nellyolofsson/wt2/internal/media"
	"github.com/nellyolofsson/wt2/internal/oidc"
	"github.com/nellyolofsson/wt2/internal/server"
	"github.com/nellyolofsson/wt2/internal/store"
	"github.com/nellyolofsson/wt2/pkg/logger"
	"github.com/nellyolofsson/wt2/pkg/metrics"
	"github.com/nellyolofsson/wt2/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v env=%s", cfg.Keycloak.Issuer() != "", cfg.MongoDB.URI != "", cfg.Redis.Addr() != "", cfg.Server.Environment)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" && cfg.RateLimit.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v; using in-process rate limiter", addr, err)
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			logger.Infof("Connected to Redis for rate limiting: %s", addr)
		}
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := server.NewRouter(server.Deps{
		Config:   cfg,
		Store:    st,
		Verifier: newVerifier(ctx, cfg),
		Redis:    rdb,
	})

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting catalog service on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

// openStore connects to MongoDB when configured and falls back to the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func()) {
	memory := func() (store.Store, func()) {
		return store.NewMemoryStore(store.WithUniqueFields(media.TitleSchema.UniqueFields()...)), func() {}
	}
	if cfg.MongoDB.URI == "" {
		logger.Warnf("MONGODB_URI not set; using in-memory store")
		return memory()
	}

	client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second,
		func(attempt int, err error) {
			logger.Warnf("attempt %d/5: failed to connect to MongoDB: %v", attempt, err)
		})
	if err != nil {
		logger.Warnf("could not connect to MongoDB (%v); using in-memory store", err)
		return memory()
	}

	col := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
	if err := database.EnsureIndexes(ctx, col, media.TitleSchema.UniqueFields()); err != nil {
		logger.Warnf("%v", err)
	}
	logger.Infof("using MongoDB collection %s.%s", cfg.MongoDB.Database, cfg.MongoDB.Collection)
	return store.NewMongoStore(col), func() { _ = client.Disconnect(context.Background()) }
}

// newVerifier returns nil when Keycloak is not configured, leaving the write
// routes open.
func newVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	issuer := cfg.Keycloak.Issuer()
	if issuer == "" {
		return nil
	}
	if cfg.Keycloak.InsecureTokens {
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		return oidc.NewInsecureVerifier()
	}
	ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
	if err != nil {
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
		return nil
	}
	return ver
}
