package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config contains all configuration for the application
type Config struct {
	// Server Configuration
	ServerPort    string
	StaticPath    string // Directory served to the operator dashboard
	DashboardFile string // Entry page inside StaticPath
	MaxBodyMB     int    // Request body cap, base64 video payloads are large

	// Scratch Workspace Configuration
	WorkspacePath string
	SweepSchedule string        // cron spec for the orphaned-artifact sweeper
	SweepMaxAge   time.Duration // files older than this are considered orphaned

	// Encoder Configuration
	FFmpegPath  string
	FFprobePath string

	// ElevenLabs Configuration
	ElevenLabsAPIKey          string
	ElevenLabsBaseURL         string
	ElevenLabsVoiceID         string
	ElevenLabsModelID         string
	ElevenLabsStability       float64
	ElevenLabsSimilarityBoost float64

	// Ambient score
	ScoreDurationSeconds int
	ScorePromptInfluence float64
	ScoreGain            float64 // attenuation applied to the score when mixing

	// Catalog
	CatalogURL string

	// OpenAI Configuration
	OpenAIModel               string
	OpenAIMaxCompletionTokens int
	ScriptOpenAIAPIKey        string // empty means template narration

	// Veo Configuration
	VeoModel        string
	VeoPollInterval time.Duration
	VeoMaxAttempts  int

	// Worker Concurrency Configuration
	MaxConcurrentAssemblies int

	// Observability
	MonitorInterval time.Duration
	LogLevel        string
	LogPretty       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	cfg := Config{
		ServerPort:    getEnv("SERVER_PORT", "7761"),
		StaticPath:    getEnv("STATIC_PATH", "public"),
		DashboardFile: getEnv("DASHBOARD_FILE", "dashboard.html"),
		MaxBodyMB:     getEnvInt("MAX_BODY_MB", 100),

		WorkspacePath: getEnv("WORKSPACE_PATH", "./temp"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 30m"),
		SweepMaxAge:   getEnvDuration("SWEEP_MAX_AGE", time.Hour),

		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		ElevenLabsAPIKey:          getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL:         getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		ElevenLabsVoiceID:         getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModelID:         getEnv("ELEVENLABS_MODEL_ID", "eleven_monolingual_v1"),
		ElevenLabsStability:       getEnvFloat("ELEVENLABS_STABILITY", 0.5),
		ElevenLabsSimilarityBoost: getEnvFloat("ELEVENLABS_SIMILARITY_BOOST", 0.75),

		ScoreDurationSeconds: getEnvInt("SCORE_DURATION_SECONDS", 24),
		ScorePromptInfluence: getEnvFloat("SCORE_PROMPT_INFLUENCE", 0.3),
		ScoreGain:            getEnvFloat("SCORE_GAIN", 0.3),

		CatalogURL: getEnv("CATALOG_URL", "https://agmimports.com/new_arrival/"),

		OpenAIModel:               getEnv("OPENAI_MODEL", "gpt-5-2025-08-07"),
		OpenAIMaxCompletionTokens: getEnvInt("OPENAI_MAX_COMPLETION_TOKENS", 2000),
		ScriptOpenAIAPIKey:        getEnv("SCRIPT_OPENAI_API_KEY", ""),

		VeoModel:        getEnv("VEO_MODEL", "veo-3.0-generate-001"),
		VeoPollInterval: getEnvDuration("VEO_POLL_INTERVAL", 10*time.Second),
		VeoMaxAttempts:  getEnvInt("VEO_MAX_ATTEMPTS", 60),

		MaxConcurrentAssemblies: getEnvInt("MAX_CONCURRENT_ASSEMBLIES", 2),

		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 5*time.Minute),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvBool("LOG_PRETTY", false),
	}

	log.Info().
		Str("port", cfg.ServerPort).
		Str("workspace", cfg.WorkspacePath).
		Str("catalog", cfg.CatalogURL).
		Bool("elevenlabs_key_set", cfg.ElevenLabsAPIKey != "").
		Bool("model_script", cfg.ScriptOpenAIAPIKey != "").
		Int("max_concurrent_assemblies", cfg.MaxConcurrentAssemblies).
		Msg("Loaded configuration")

	return cfg
}

// Validate rejects values the pipeline cannot run with.
func (cfg Config) Validate() error {
	if cfg.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT must be set")
	}
	if cfg.WorkspacePath == "" {
		return fmt.Errorf("WORKSPACE_PATH must be set")
	}
	if cfg.MaxBodyMB <= 0 {
		return fmt.Errorf("MAX_BODY_MB must be positive, got %d", cfg.MaxBodyMB)
	}
	if cfg.ScoreDurationSeconds <= 0 {
		return fmt.Errorf("SCORE_DURATION_SECONDS must be positive, got %d", cfg.ScoreDurationSeconds)
	}
	if cfg.ScoreGain <= 0 || cfg.ScoreGain > 1 {
		return fmt.Errorf("SCORE_GAIN must be in (0, 1], got %g", cfg.ScoreGain)
	}
	if cfg.VeoPollInterval <= 0 {
		return fmt.Errorf("VEO_POLL_INTERVAL must be positive, got %s", cfg.VeoPollInterval)
	}
	if cfg.VeoMaxAttempts <= 0 {
		return fmt.Errorf("VEO_MAX_ATTEMPTS must be positive, got %d", cfg.VeoMaxAttempts)
	}
	if cfg.MaxConcurrentAssemblies <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_ASSEMBLIES must be positive, got %d", cfg.MaxConcurrentAssemblies)
	}
	if cfg.SweepMaxAge <= 0 {
		return fmt.Errorf("SWEEP_MAX_AGE must be positive, got %s", cfg.SweepMaxAge)
	}
	return nil
}

// MaxBodyBytes returns the request body cap in bytes.
func (cfg Config) MaxBodyBytes() int64 {
	return int64(cfg.MaxBodyMB) * 1024 * 1024
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid float in environment, using default")
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(getEnv(key, "")))
	switch raw {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
