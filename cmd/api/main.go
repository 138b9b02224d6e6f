package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/spirit/backend/internal/config"
	"github.com/zhouzirui/spirit/backend/internal/handler"
	"github.com/zhouzirui/spirit/backend/internal/middleware"
	"github.com/zhouzirui/spirit/backend/internal/model/persona"
	"github.com/zhouzirui/spirit/backend/internal/service/ai"
	"github.com/zhouzirui/spirit/backend/internal/service/chat"
	"github.com/zhouzirui/spirit/backend/internal/service/search"
	"github.com/zhouzirui/spirit/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrConfigMissing) {
			log.Fatal().Err(err).Msg("缺少模型凭证，无法启动")
		}
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg.Log)

	var searcher search.Searcher
	if cfg.Spirit.SearchEnabled {
		searcher = search.NewDuckDuckGo()
	}

	provider, err := ai.New(ctx, cfg.AI, searcher)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.AI.Provider).Msg("failed to initialize chat provider")
	}
	log.Info().Str("provider", provider.Name()).Str("model", provider.DefaultModel()).Msg("chat provider initialized")

	presets, err := persona.LoadPresets(cfg.Spirit.PresetsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load persona presets")
	}

	opts := chat.Options{
		Provider:    provider,
		Model:       provider.DefaultModel(),
		Temperature: cfg.Spirit.Temperature,
		SeedWelcome: cfg.Spirit.WelcomeEnabled,
		Defaults:    persona.Defaults().WithOverrides(cfg.Spirit.DefaultTitle, cfg.Spirit.DefaultTone),
		TTSLanguage: cfg.Speech.TTSLanguage,
	}
	if cfg.Spirit.SearchEnabled {
		opts.Tools = []ai.Tool{ai.ToolWebSearch}
	}

	deps := handler.Dependencies{
		Presets:     presets,
		TTSLanguage: cfg.Speech.TTSLanguage,
		RateLimiter: middleware.NewRateLimiter(cfg.Spirit.RateLimit, cfg.Spirit.RateBurst),
	}

	speechService := speech.NewService(cfg.Speech.ServiceConfig())
	if speechService.Enabled() {
		deps.SpeechSvc = speechService
		if cfg.Spirit.TTSEnabled {
			opts.Synthesizer = speechService
		}
		log.Info().Bool("reply_audio", cfg.Spirit.TTSEnabled).Msg("speech service initialized")
	} else {
		log.Info().Msg("语音服务凭证未配置，跳过语音功能初始化")
	}

	deps.ChatSvc = chat.NewService(opts)
	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router)
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Spirit backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
