package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App           App           `mapstructure:"app"`
	AI            AI            `mapstructure:"ai"`
	Report        Report        `mapstructure:"report"`
	Fetch         Fetch         `mapstructure:"fetch"`
	Clustering    Clustering    `mapstructure:"clustering"`
	Audio         Audio         `mapstructure:"audio"`
	TTS           TTS           `mapstructure:"tts"`
	Preview       Preview       `mapstructure:"preview"`
	Digest        Digest        `mapstructure:"digest"`
	History       History       `mapstructure:"history"`
	Server        Server        `mapstructure:"server"`
	Observability Observability `mapstructure:"observability"`
	Logging       Logging       `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// AI holds generative API configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey              string `mapstructure:"api_key"`
	Model               string `mapstructure:"model"`
	Timeout             string `mapstructure:"timeout"`
	EmbeddingModel      string `mapstructure:"embedding_model"`
	EmbeddingDimensions int32  `mapstructure:"embedding_dimensions"`
}

// Report describes where headlines come from
type Report struct {
	Path      string   `mapstructure:"path"`
	Feeds     []string `mapstructure:"feeds"`
	FeedLabel string   `mapstructure:"feed_label"`
	FeedLimit int      `mapstructure:"feed_limit"`
}

// Fetch holds article body fetching configuration
type Fetch struct {
	Enabled   bool   `mapstructure:"enabled"`
	Timeout   string `mapstructure:"timeout"`
	MaxBytes  int64  `mapstructure:"max_bytes"`
	UserAgent string `mapstructure:"user_agent"`
}

// Clustering holds headline grouping thresholds
type Clustering struct {
	Fuzzy             bool    `mapstructure:"fuzzy"`
	FuzzyThreshold    float64 `mapstructure:"fuzzy_threshold"`
	Semantic          bool    `mapstructure:"semantic"`
	SemanticThreshold float64 `mapstructure:"semantic_threshold"`
}

// Audio holds the radio briefing configuration
type Audio struct {
	Enabled            bool    `mapstructure:"enabled"`
	IntervalHours      float64 `mapstructure:"interval_hours"`
	OutputDir          string  `mapstructure:"output_dir"`
	PublicDir          string  `mapstructure:"public_dir"`
	Filename           string  `mapstructure:"filename"`
	ChaptersFilename   string  `mapstructure:"chapters_filename"`
	TranscriptFilename string  `mapstructure:"transcript_filename"`
	IntroText          string  `mapstructure:"intro_text"`
	OutroText          string  `mapstructure:"outro_text"`
	ChapterFallback    string  `mapstructure:"chapter_fallback"`
	SummaryPrompt      string  `mapstructure:"summary_prompt"`
	DedupeEnabled      bool    `mapstructure:"dedupe_enabled"`
	DedupePrompt       string  `mapstructure:"dedupe_prompt"`
	DedupeFallback     string  `mapstructure:"dedupe_fallback"`
	FFmpegPath         string  `mapstructure:"ffmpeg_path"`
	FFprobePath        string  `mapstructure:"ffprobe_path"`
	Codec              string  `mapstructure:"codec"`
	Quality            string  `mapstructure:"quality"`
}

// TTS holds text-to-speech configuration
type TTS struct {
	Provider string       `mapstructure:"provider"`
	Endpoint string       `mapstructure:"endpoint"`
	APIKey   string       `mapstructure:"api_key"`
	Voice    string       `mapstructure:"voice"`
	Format   string       `mapstructure:"format"`
	Timeout  string       `mapstructure:"timeout"`
	Space    SpaceConfig  `mapstructure:"space"`
	Sherpa   SherpaConfig `mapstructure:"sherpa"`
	Kokoro   KokoroConfig `mapstructure:"kokoro"`
	VoxCPM   VoxCPMConfig `mapstructure:"voxcpm"`
}

// SpaceConfig holds hosted demo settings
type SpaceConfig struct {
	APIName     string `mapstructure:"api_name"`
	Token       string `mapstructure:"token"`
	Timeout     string `mapstructure:"timeout"`
	PromptAudio string `mapstructure:"prompt_audio"`
}

// SherpaConfig holds the Matcha model configuration for the local neural engine
type SherpaConfig struct {
	ModelDir        string  `mapstructure:"model_dir"`
	AcousticModel   string  `mapstructure:"acoustic_model"`
	Vocoder         string  `mapstructure:"vocoder"`
	Tokens          string  `mapstructure:"tokens"`
	Lexicon         string  `mapstructure:"lexicon"`
	DataDir         string  `mapstructure:"data_dir"`
	RuleFsts        string  `mapstructure:"rule_fsts"`
	Provider        string  `mapstructure:"provider"`
	NumThreads      int     `mapstructure:"num_threads"`
	MaxNumSentences int     `mapstructure:"max_num_sentences"`
	SID             int     `mapstructure:"sid"`
	Speed           float32 `mapstructure:"speed"`
}

// KokoroConfig holds the Kokoro model configuration for the local neural engine
type KokoroConfig struct {
	ModelDir   string  `mapstructure:"model_dir"`
	Model      string  `mapstructure:"model"`
	Voices     string  `mapstructure:"voices"`
	Tokens     string  `mapstructure:"tokens"`
	Lexicon    string  `mapstructure:"lexicon"`
	DataDir    string  `mapstructure:"data_dir"`
	SID        int     `mapstructure:"sid"`
	Speed      float32 `mapstructure:"speed"`
	SampleRate int     `mapstructure:"sample_rate"`
	NumThreads int     `mapstructure:"num_threads"`
}

// VoxCPMConfig holds the subprocess engine configuration
type VoxCPMConfig struct {
	Python          string   `mapstructure:"python"`
	RepoDir         string   `mapstructure:"repo_dir"`
	InferPath       string   `mapstructure:"infer_path"`
	ModelsDir       string   `mapstructure:"models_dir"`
	VoxCPMDir       string   `mapstructure:"voxcpm_dir"`
	VoicesFile      string   `mapstructure:"voices_file"`
	Voice           string   `mapstructure:"voice"`
	TextNormalizer  bool     `mapstructure:"text_normalizer"`
	AudioNormalizer bool     `mapstructure:"audio_normalizer"`
	BatchMode       bool     `mapstructure:"batch_mode"`
	MaxThreads      *int     `mapstructure:"max_threads"`
	CFGValue        *float64 `mapstructure:"cfg_value"`
	FixedTimesteps  *int     `mapstructure:"fixed_timesteps"`
	Seed            *int     `mapstructure:"seed"`
	Timeout         string   `mapstructure:"timeout"`
}

// Preview holds link-preview image cache configuration
type Preview struct {
	Enabled   bool   `mapstructure:"enabled"`
	CacheFile string `mapstructure:"cache_file"`
	TTL       string `mapstructure:"ttl"`
	Limit     int    `mapstructure:"limit"`
	Timeout   string `mapstructure:"timeout"`
	MaxBytes  int64  `mapstructure:"max_bytes"`
}

// Digest holds HTML digest page configuration
type Digest struct {
	Title  string `mapstructure:"title"`
	Output string `mapstructure:"output"`
}

// History holds run history storage configuration
type History struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
}

// Server holds HTTP server configuration
type Server struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Observability holds analytics configuration
type Observability struct {
	PostHog PostHogConfig `mapstructure:"posthog"`
}

// PostHogConfig holds PostHog configuration
type PostHogConfig struct {
	APIKey string `mapstructure:"api_key"`
	Host   string `mapstructure:"host"`
}

// Logging holds logging configuration
type Logging struct {
	Level            string `mapstructure:"level"`
	HeartbeatSeconds int    `mapstructure:"heartbeat_seconds"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".briefcast")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", "output")

	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.embedding_dimensions", 768)

	viper.SetDefault("report.feed_label", "rss")
	viper.SetDefault("report.feed_limit", 30)

	viper.SetDefault("fetch.enabled", true)
	viper.SetDefault("fetch.timeout", "5s")
	viper.SetDefault("fetch.max_bytes", 0)
	viper.SetDefault("fetch.user_agent", "Briefcast/1.0")

	viper.SetDefault("clustering.fuzzy", true)
	viper.SetDefault("clustering.fuzzy_threshold", 90)
	viper.SetDefault("clustering.semantic", true)
	viper.SetDefault("clustering.semantic_threshold", 0.82)

	viper.SetDefault("audio.enabled", true)
	viper.SetDefault("audio.interval_hours", 12)
	viper.SetDefault("audio.output_dir", "output/audio")
	viper.SetDefault("audio.public_dir", "audio")
	viper.SetDefault("audio.filename", "latest.mp3")
	viper.SetDefault("audio.chapters_filename", "chapters.json")
	viper.SetDefault("audio.transcript_filename", "transcript.txt")
	viper.SetDefault("audio.dedupe_enabled", true)
	viper.SetDefault("audio.codec", "libmp3lame")
	viper.SetDefault("audio.quality", "4")

	viper.SetDefault("tts.voice", "default")
	viper.SetDefault("tts.format", "mp3")
	viper.SetDefault("tts.timeout", "60s")
	viper.SetDefault("tts.space.api_name", "gen_single")
	viper.SetDefault("tts.space.timeout", "180s")
	viper.SetDefault("tts.sherpa.provider", "cpu")
	viper.SetDefault("tts.sherpa.num_threads", 2)
	viper.SetDefault("tts.sherpa.speed", 1.0)
	viper.SetDefault("tts.kokoro.speed", 1.0)
	viper.SetDefault("tts.kokoro.sample_rate", 24000)
	viper.SetDefault("tts.kokoro.num_threads", 2)
	viper.SetDefault("tts.voxcpm.python", "python3")
	viper.SetDefault("tts.voxcpm.text_normalizer", true)
	viper.SetDefault("tts.voxcpm.audio_normalizer", false)
	viper.SetDefault("tts.voxcpm.batch_mode", true)
	viper.SetDefault("tts.voxcpm.timeout", "30m")

	viper.SetDefault("preview.enabled", true)
	viper.SetDefault("preview.cache_file", "output/preview_cache.json")
	viper.SetDefault("preview.ttl", "168h")
	viper.SetDefault("preview.limit", 80)
	viper.SetDefault("preview.timeout", "5s")
	viper.SetDefault("preview.max_bytes", 200000)

	viper.SetDefault("digest.title", "热点简报")
	viper.SetDefault("digest.output", "output/index.html")

	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.driver", "sqlite3")
	viper.SetDefault("history.dsn", "output/history.db")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.allowed_origins", []string{"*"})

	viper.SetDefault("observability.posthog.host", "https://us.i.posthog.com")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.heartbeat_seconds", 60)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("tts.api_key", []string{
		"TTS_API_KEY",
		"BRIEFCAST_TTS_API_KEY",
	})

	bindEnvKeys("tts.endpoint", []string{
		"TTS_ENDPOINT",
		"BRIEFCAST_TTS_ENDPOINT",
	})

	bindEnvKeys("tts.provider", []string{
		"TTS_PROVIDER",
		"BRIEFCAST_TTS_PROVIDER",
	})

	bindEnvKeys("tts.space.token", []string{
		"HF_TOKEN",
		"HUGGINGFACE_TOKEN",
	})

	bindEnvKeys("observability.posthog.api_key", []string{
		"POSTHOG_API_KEY",
		"POSTHOG_KEY",
	})

	bindEnvKeys("history.dsn", []string{
		"BRIEFCAST_HISTORY_DSN",
		"DATABASE_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"BRIEFCAST_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

func postProcessConfig(config *Config) error {
	config.Audio.OutputDir = expandPath(config.Audio.OutputDir)
	config.Audio.PublicDir = expandPath(config.Audio.PublicDir)
	config.Preview.CacheFile = expandPath(config.Preview.CacheFile)
	config.Digest.Output = expandPath(config.Digest.Output)
	config.TTS.Provider = strings.ToLower(strings.TrimSpace(config.TTS.Provider))
	config.TTS.Endpoint = strings.TrimSpace(config.TTS.Endpoint)
	config.AI.Gemini.APIKey = strings.TrimSpace(config.AI.Gemini.APIKey)

	durations := map[string]string{
		"ai.gemini.timeout":  config.AI.Gemini.Timeout,
		"fetch.timeout":      config.Fetch.Timeout,
		"tts.timeout":        config.TTS.Timeout,
		"tts.space.timeout":  config.TTS.Space.Timeout,
		"tts.voxcpm.timeout": config.TTS.VoxCPM.Timeout,
		"preview.ttl":        config.Preview.TTL,
		"preview.timeout":    config.Preview.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig only rejects values that are wrong regardless of which
// command runs. Missing keys are reported by the stage that needs them.
func validateConfig(config *Config) error {
	var errors []string

	switch config.TTS.Provider {
	case "", "http", "sherpa_onnx", "sherpa", "kokoro", "voxcpm_onnx", "hf_space", "gradio", "space":
	default:
		errors = append(errors, fmt.Sprintf("Unknown TTS provider: %s. Supported: http, sherpa_onnx, kokoro, voxcpm_onnx, hf_space", config.TTS.Provider))
	}

	switch config.History.Driver {
	case "sqlite3", "postgres":
	default:
		errors = append(errors, fmt.Sprintf("Unknown history driver: %s. Supported: sqlite3, postgres", config.History.Driver))
	}

	if config.Clustering.FuzzyThreshold < 0 || config.Clustering.FuzzyThreshold > 100 {
		errors = append(errors, "clustering.fuzzy_threshold must be between 0 and 100")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ParseDuration returns the parsed value or fallback when the value is empty.
// Values are validated on load, so a parse error also yields fallback.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
