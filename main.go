package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stone-promo/api"
	"stone-promo/clipgen"
	"stone-promo/config"
	"stone-promo/copywriter"
	"stone-promo/cron"
	"stone-promo/elevenlabs"
	"stone-promo/logging"
	"stone-promo/metrics"
	"stone-promo/monitoring"
	"stone-promo/scraper"
	"stone-promo/service"
	"stone-promo/storage"
	"stone-promo/transcode"
	"stone-promo/upstream"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("No .env file loaded, using process environment")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.ElevenLabsAPIKey == "" {
		log.Warn().Msg("ELEVENLABS_API_KEY is not set, video assembly will fail at the narration stage")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := upstream.NewFetcher(&http.Client{Timeout: 5 * time.Minute})

	workspace := storage.NewWorkspace(cfg.WorkspacePath)
	if err := workspace.EnsureWorkspace(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create workspace")
	}

	engine := transcode.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if !engine.Available() {
		log.Warn().Str("ffmpeg", cfg.FFmpegPath).Str("ffprobe", cfg.FFprobePath).Msg("FFmpeg not found, video assembly will fail")
	}

	voice := elevenlabs.NewClient(elevenlabs.Config{
		APIKey:          cfg.ElevenLabsAPIKey,
		BaseURL:         cfg.ElevenLabsBaseURL,
		VoiceID:         cfg.ElevenLabsVoiceID,
		ModelID:         cfg.ElevenLabsModelID,
		Stability:       cfg.ElevenLabsStability,
		SimilarityBoost: cfg.ElevenLabsSimilarityBoost,
	}, fetcher)

	writer := copywriter.NewGenerator(cfg.OpenAIModel, cfg.OpenAIMaxCompletionTokens)
	scripts := copywriter.NewScriptWriter(writer, cfg.ScriptOpenAIAPIKey)

	runMetrics := metrics.NewCollector()
	assembler := service.NewAssembler(workspace, engine, voice, voice, scripts, service.Options{
		MaxConcurrent: int64(cfg.MaxConcurrentAssemblies),
		Metrics:       runMetrics,
		Score: service.ScoreSettings{
			Prompt:          elevenlabs.ShowroomScorePrompt,
			DurationSeconds: float64(cfg.ScoreDurationSeconds),
			PromptInfluence: cfg.ScorePromptInfluence,
			Gain:            cfg.ScoreGain,
		},
	})

	clips := clipgen.NewGenerator(
		clipgen.NewVeoFactory(cfg.VeoModel, fetcher),
		cfg.VeoPollInterval,
		cfg.VeoMaxAttempts,
		clipgen.WithFetcher(fetcher),
	)

	sweeper := cron.NewScratchSweepCron(workspace, runMetrics, cfg.SweepSchedule, cfg.SweepMaxAge)
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("Failed to start scratch sweeper")
	}

	deps := api.Deps{
		Scraper:   scraper.New(fetcher),
		Seo:       writer,
		Clips:     clips,
		Scripts:   scripts,
		Assembler: assembler,
		Space:     workspace,
	}
	if monitor, err := monitoring.NewMonitor(); err != nil {
		log.Warn().Err(err).Msg("Resource monitoring disabled")
	} else {
		monitor.Start(ctx, cfg.MonitorInterval)
		deps.Monitor = monitor
	}

	server := api.NewServer(cfg, deps)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("API server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	sweeper.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server exited")
}
