package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/run"

	"mediarelay/internal/auth"
	"mediarelay/internal/http/handlers"
	httpapi "mediarelay/internal/http/httpapi"
	"mediarelay/internal/infra"
	"mediarelay/internal/infra/geoip"
	"mediarelay/internal/middleware"
	"mediarelay/internal/providers/image"
	"mediarelay/internal/providers/script"
	"mediarelay/internal/providers/video"
	"mediarelay/internal/providers/voice"
)

func main() {
	// .env files are optional; real environment variables win.
	_ = godotenv.Load(".env.local", ".env")

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %s\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if err := runServer(cfg, &logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped with error")
	}
	logger.Info().Msg("server stopped")
}

func runServer(cfg *infra.Config, logger *infra.Logger) error {
	logger.Info().Fields(cfg.Redacted()).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	videos, err := video.NewRegistry(cfg, video.Options{Logger: logger})
	if err != nil {
		return err
	}
	hub := auth.NewHub()
	app := handlers.NewApp(handlers.App{
		Logger:         logger,
		Videos:         videos,
		DefaultVideo:   video.Default(cfg),
		AwaitSchedule:  video.Schedule(cfg),
		AwaitBudget:    cfg.AwaitBudget(),
		Script:         newScriptWriter(cfg, logger),
		ScriptProvider: cfg.ScriptProvider,
		Voice: voice.NewClient(voice.Options{
			APIKey:         cfg.ElevenLabsAPIKey,
			BaseURL:        cfg.ElevenLabsBaseURL,
			Model:          cfg.ElevenLabsModel,
			DefaultVoiceID: cfg.ElevenLabsVoiceID,
			Logger:         logger,
			RequestTimeout: cfg.ProviderTimeout,
		}),
		Images: image.NewFetcher(image.Options{
			AllowedHosts:   cfg.ImageSourceAllowlist,
			MaxBytes:       cfg.ImageMaxBytes,
			Logger:         logger,
			RequestTimeout: cfg.ProviderTimeout,
		}),
		Auth: auth.NewClient(auth.Options{
			BaseURL:        cfg.SupabaseURL,
			AnonKey:        cfg.SupabaseAnonKey,
			RedirectURL:    cfg.AuthRedirectURL,
			Logger:         logger,
			RequestTimeout: cfg.ProviderTimeout,
		}),
		Hub: hub,
	})

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:        *logger,
		CORSOrigins:   cfg.CORSOrigins,
		DefaultLocale: cfg.DefaultLocale,
		CountryLookup: geoip.Lookup(resolver),
		Tokens:        tokenVerifier(ctx, cfg, logger),
		RequireAuth:   cfg.RequireAuth,
		RateLimit:     middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute),
	})
	server := infra.NewHTTPServer(cfg, router)

	var g run.Group

	// HTTP server.
	g.Add(
		func() error {
			logger.Info().Str("addr", server.Addr()).Msg("api listening")
			return server.Start()
		},
		server.Interrupt,
	)

	// Session audit log.
	{
		events, unsubscribe := hub.Subscribe()
		g.Add(
			func() error {
				for ev := range events {
					logger.Info().
						Str("user_id", infra.SanitizeForLog(ev.UserID)).
						Str("event", string(ev.Type)).
						Time("at", ev.At).
						Msg("auth session transition")
				}
				return nil
			},
			func(error) {
				unsubscribe()
			},
		)
	}

	// OS signals.
	{
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		g.Add(
			func() error {
				<-ctx.Done()
				logger.Info().Msg("termination signal received")
				return nil
			},
			func(error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func newScriptWriter(cfg *infra.Config, logger *infra.Logger) handlers.ScriptWriter {
	if cfg.ScriptProvider == "gemini" {
		return script.NewGeminiWriter(script.GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
	}
	return script.NewOpenAIWriter(script.OpenAIOptions{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		OnWarning: func(reason, detail string) {
			logger.Warn().Str("reason", reason).Str("detail", detail).Msg("script writer warning")
		},
	})
}

func tokenVerifier(ctx context.Context, cfg *infra.Config, logger *infra.Logger) *middleware.Verifier {
	v, err := middleware.NewVerifier(ctx, middleware.VerifierOptions{
		ProjectURL: cfg.SupabaseURL,
		Secret:     cfg.SupabaseJWTSecret,
		Client:     &http.Client{Timeout: cfg.ProviderTimeout},
		Logger:     *logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("asymmetric token verification disabled")
	}
	return v
}
