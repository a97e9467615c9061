package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adamtbull/friction-ai/internal/admission"
	"github.com/Adamtbull/friction-ai/internal/analytics"
	"github.com/Adamtbull/friction-ai/internal/config"
	"github.com/Adamtbull/friction-ai/internal/gateway"
	"github.com/Adamtbull/friction-ai/internal/gateway/video"
	"github.com/Adamtbull/friction-ai/internal/identity"
	"github.com/Adamtbull/friction-ai/internal/kvstore"
	"github.com/Adamtbull/friction-ai/internal/logger"
	"github.com/Adamtbull/friction-ai/internal/pkg/memory"
	"github.com/Adamtbull/friction-ai/internal/provider"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Debug)
	memory.Init()

	store := openStore(cfg)
	defer store.Close()

	loc, err := time.LoadLocation(cfg.ReferenceTimezone)
	if err != nil {
		logger.Warn("unknown REFERENCE_TIMEZONE %q, using UTC", cfg.ReferenceTimezone)
		loc = time.UTC
	}

	verifier := identity.NewVerifier(cfg.GoogleClientID, cfg.AdminEmail, cfg.TokenInfoURL,
		time.Duration(cfg.IdentityCacheTTLSeconds)*time.Second)

	ctrl := admission.NewController(store, admission.Limits{
		UserBurst:   int(cfg.UserBurstLimit),
		IPBurst:     int(cfg.IPBurstLimit),
		BurstWindow: time.Duration(cfg.BurstWindowSeconds) * time.Second,
		Daily:       int(cfg.DailyLimit),
	}, loc)

	dispatcher := provider.NewDispatcher(provider.Keys{
		OpenAI:     cfg.OpenAIKey,
		Anthropic:  cfg.AnthropicKey,
		Gemini:     cfg.GeminiKey,
		Perplexity: cfg.PerplexityKey,
	}, cfg.SystemPrompt, time.Duration(cfg.ProviderTimeoutMs)*time.Millisecond)

	recorder := analytics.NewRecorder(store, loc, time.Duration(cfg.AnalyticsRetentionDays)*24*time.Hour)

	handler := gateway.NewRouter(gateway.Deps{
		Config:     cfg,
		Verifier:   verifier,
		Admission:  ctrl,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Store:      store,
		Videos:     video.NewClient(cfg.VideoAPIBaseURL, cfg.VideoAPIKey),
	})

	logger.Banner(cfg.Port, cfg.ReferenceTimezone)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		pprofAddr := "localhost:6060"
		logger.Info("pprof server listening on http://%s/debug/pprof/", pprofAddr)
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			logger.Error("pprof server error: %v", err)
		}
	}()

	logger.Info("Server listening on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	recorder.Drain()
	logger.Info("Server stopped")
}

// openStore connects Redis when configured and refuses to start on a
// failed connection: per-process fallback counters would quietly disable
// shared rate limiting. No REDIS_ADDR at all selects the in-memory store
// for local development.
func openStore(cfg *config.Config) kvstore.Store {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, using in-memory store (single instance, counters reset on restart)")
		return kvstore.NewMemory()
	}
	store, err := kvstore.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("redis connection failed: %v", err)
		os.Exit(1)
	}
	logger.Info("connected to redis at %s", cfg.RedisAddr)
	return store
}
