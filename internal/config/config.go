package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	Traces       bool   `yaml:"traces"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind             string `yaml:"bind"`
	Port             int    `yaml:"port"`
	AllowedOrigin    string `yaml:"allowed_origin"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	MaxBodyBytes     int64  `yaml:"max_body_bytes"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Rewrite     RewriteConfig    `yaml:"rewrite"`
	TTS         TTSConfig        `yaml:"tts"`
	Client      ClientConfig     `yaml:"client"`
	Speech      SpeechConfig     `yaml:"speech"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	// InstanceID names this gateway in presence announcements. Empty picks
	// a random ID at start-up.
	InstanceID          string `yaml:"instance_id"`
	HeartbeatIntervalMS int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path            string `yaml:"path"`
	RetentionMode   string `yaml:"retention_mode"`
	RetentionDays   int    `yaml:"retention_days"`
	MaxSessions     int    `yaml:"max_sessions"`
	VacuumOnStart   bool   `yaml:"vacuum_on_start"`
	PruneIntervalMS int    `yaml:"prune_interval_ms"`
	PrivacyScope    string `yaml:"privacy_scope"`
}

type RewriteConfig struct {
	Mode           string  `yaml:"mode"` // mock, gemini, openai, ollama, exec
	Endpoint       string  `yaml:"endpoint"`
	Command        string  `yaml:"command"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	PromptTemplate string  `yaml:"prompt_template"`
	TimeoutMS      int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Mode            string `yaml:"mode"` // mock, google, openai, elevenlabs, exec
	Endpoint        string `yaml:"endpoint"`
	Command         string `yaml:"command"`
	APIKey          string `yaml:"api_key"`
	CredentialsFile string `yaml:"credentials_file"`
	Model           string `yaml:"model"`
	LanguageCode    string `yaml:"language_code"`
	Voice           string `yaml:"voice"`
	AudioEncoding   string `yaml:"audio_encoding"`
	SampleRate      int    `yaml:"sample_rate"`
	TimeoutMS       int    `yaml:"timeout_ms"`
}

type ClientConfig struct {
	ServerURL     string `yaml:"server_url"`
	Language      string `yaml:"language"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	Playback      string `yaml:"playback"` // cloud, local
	PlayerCommand string `yaml:"player_command"`
	LocalVoice    string `yaml:"local_voice"`
}

type SpeechConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	VoicesRefreshMS int    `yaml:"voices_refresh_ms"`
}

const DefaultPromptTemplate = "שכתב את הטקסט הבא בסגנון {{.Tone}}. השב עם הטקסט המשוכתב בלבד, ללא כל הקדמה או הסבר נוסף.\n\nהטקסט המקורי:\n---\n{{.Text}}\n---"

func Default() Config {
	return Config{
		ServiceName: "tts-gateway",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:             "0.0.0.0",
			Port:             3001,
			AllowedOrigin:    "https://gemini-tts-app-self.vercel.app",
			RequestTimeoutMS: 90000,
			MaxBodyBytes:     1 << 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			Traces:       true,
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,

			HeartbeatIntervalMS: 5000,
			HeartbeatTimeoutMS:  15000,
		},
		EventStore: EventStoreConfig{
			Path:            "./data/tts-events.db",
			RetentionMode:   "ephemeral",
			RetentionDays:   7,
			MaxSessions:     10000,
			PruneIntervalMS: 30 * 60 * 1000,
			PrivacyScope:    "internal",
		},
		Rewrite: RewriteConfig{
			Mode:           "mock",
			Endpoint:       "http://localhost:11434",
			Model:          "gemini-2.0-flash",
			MaxTokens:      1024,
			Temperature:    0.7,
			PromptTemplate: DefaultPromptTemplate,
			TimeoutMS:      45000,
		},
		TTS: TTSConfig{
			Mode:          "mock",
			LanguageCode:  "he-IL",
			Voice:         "he-IL-Wavenet-A",
			AudioEncoding: "MP3",
			SampleRate:    24000,
			TimeoutMS:     45000,
		},
		Client: ClientConfig{
			ServerURL:     "http://localhost:3001/",
			Language:      "he",
			TimeoutMS:     120000,
			Playback:      "cloud",
			PlayerCommand: "ffplay -nodisp -autoexit -loglevel quiet",
		},
		Speech: SpeechConfig{
			Mode:            "exec",
			Command:         "espeak-ng",
			VoicesRefreshMS: 5000,
		},
	}
}

// Load reads path (when non-empty), loads a .env file if present and applies
// environment overrides. A missing file is only tolerated when optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err) && optional:
		case os.IsNotExist(err):
			return cfg, fmt.Errorf("config file not found: %w", err)
		default:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "TTSAPP_SERVICE_NAME")
	overrideString(&cfg.Environment, "TTSAPP_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TTSAPP_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PORT")
	overrideInt(&cfg.HTTP.Port, "TTSAPP_HTTP_PORT")
	overrideString(&cfg.HTTP.AllowedOrigin, "ALLOWED_ORIGIN")
	overrideString(&cfg.HTTP.AllowedOrigin, "TTSAPP_HTTP_ALLOWED_ORIGIN")
	overrideInt(&cfg.HTTP.RequestTimeoutMS, "TTSAPP_HTTP_REQUEST_TIMEOUT_MS")
	overrideInt64(&cfg.HTTP.MaxBodyBytes, "TTSAPP_HTTP_MAX_BODY_BYTES")
	overrideString(&cfg.Telemetry.LogLevel, "TTSAPP_TELEMETRY_LOG_LEVEL")
	overrideBool(&cfg.Telemetry.Traces, "TTSAPP_TELEMETRY_TRACES")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TTSAPP_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TTSAPP_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "TTSAPP_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "TTSAPP_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "TTSAPP_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "TTSAPP_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "TTSAPP_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TTSAPP_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TTSAPP_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TTSAPP_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TTSAPP_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TTSAPP_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.InstanceID, "TTSAPP_BUS_INSTANCE_ID")
	overrideInt(&cfg.Bus.HeartbeatIntervalMS, "TTSAPP_BUS_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Bus.HeartbeatTimeoutMS, "TTSAPP_BUS_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "TTSAPP_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "TTSAPP_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "TTSAPP_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "TTSAPP_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "TTSAPP_EVENT_STORE_VACUUM_ON_START")
	overrideInt(&cfg.EventStore.PruneIntervalMS, "TTSAPP_EVENT_STORE_PRUNE_INTERVAL_MS")
	overrideString(&cfg.EventStore.PrivacyScope, "TTSAPP_EVENT_STORE_PRIVACY_SCOPE")
	overrideString(&cfg.Rewrite.Mode, "TTSAPP_REWRITE_MODE")
	overrideString(&cfg.Rewrite.Endpoint, "TTSAPP_REWRITE_ENDPOINT")
	overrideString(&cfg.Rewrite.Command, "TTSAPP_REWRITE_COMMAND")
	overrideString(&cfg.Rewrite.Model, "TTSAPP_REWRITE_MODEL")
	overrideInt(&cfg.Rewrite.MaxTokens, "TTSAPP_REWRITE_MAX_TOKENS")
	overrideFloat(&cfg.Rewrite.Temperature, "TTSAPP_REWRITE_TEMPERATURE")
	overrideString(&cfg.Rewrite.PromptTemplate, "TTSAPP_REWRITE_PROMPT_TEMPLATE")
	overrideInt(&cfg.Rewrite.TimeoutMS, "TTSAPP_REWRITE_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "TTSAPP_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "TTSAPP_TTS_ENDPOINT")
	overrideString(&cfg.TTS.Command, "TTSAPP_TTS_COMMAND")
	overrideString(&cfg.TTS.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	overrideString(&cfg.TTS.CredentialsFile, "TTSAPP_TTS_CREDENTIALS_FILE")
	overrideString(&cfg.TTS.Model, "TTSAPP_TTS_MODEL")
	overrideString(&cfg.TTS.LanguageCode, "TTSAPP_TTS_LANGUAGE_CODE")
	overrideString(&cfg.TTS.Voice, "TTSAPP_TTS_VOICE")
	overrideString(&cfg.TTS.AudioEncoding, "TTSAPP_TTS_AUDIO_ENCODING")
	overrideInt(&cfg.TTS.SampleRate, "TTSAPP_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.TimeoutMS, "TTSAPP_TTS_TIMEOUT_MS")
	overrideString(&cfg.Client.ServerURL, "TTSAPP_CLIENT_SERVER_URL")
	overrideString(&cfg.Client.Language, "TTSAPP_CLIENT_LANGUAGE")
	overrideInt(&cfg.Client.TimeoutMS, "TTSAPP_CLIENT_TIMEOUT_MS")
	overrideString(&cfg.Client.Playback, "TTSAPP_CLIENT_PLAYBACK")
	overrideString(&cfg.Client.PlayerCommand, "TTSAPP_CLIENT_PLAYER_COMMAND")
	overrideString(&cfg.Client.LocalVoice, "TTSAPP_CLIENT_LOCAL_VOICE")
	overrideString(&cfg.Speech.Mode, "TTSAPP_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "TTSAPP_SPEECH_COMMAND")
	overrideInt(&cfg.Speech.VoicesRefreshMS, "TTSAPP_SPEECH_VOICES_REFRESH_MS")

	applyAPIKeys(cfg)
}

// applyAPIKeys fills backend credentials from the conventional variable of
// the selected provider; TTSAPP_*_API_KEY always wins.
func applyAPIKeys(cfg *Config) {
	switch cfg.Rewrite.Mode {
	case "gemini":
		overrideString(&cfg.Rewrite.APIKey, "VITE_APP_GEMINI_API_KEY")
		overrideString(&cfg.Rewrite.APIKey, "GEMINI_API_KEY")
	case "openai":
		overrideString(&cfg.Rewrite.APIKey, "OPENAI_API_KEY")
	}
	overrideString(&cfg.Rewrite.APIKey, "TTSAPP_REWRITE_API_KEY")

	switch cfg.TTS.Mode {
	case "openai":
		overrideString(&cfg.TTS.APIKey, "OPENAI_API_KEY")
	case "elevenlabs":
		overrideString(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	}
	overrideString(&cfg.TTS.APIKey, "TTSAPP_TTS_API_KEY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if strings.TrimSpace(cfg.HTTP.AllowedOrigin) == "" {
		return errors.New("http.allowed_origin must not be empty")
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.HeartbeatIntervalMS > 0 && cfg.Bus.HeartbeatTimeoutMS <= cfg.Bus.HeartbeatIntervalMS {
			return errors.New("bus.heartbeat_timeout_ms must be greater than bus.heartbeat_interval_ms")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Rewrite.Mode {
	case "mock":
	case "gemini", "openai":
		if cfg.Rewrite.APIKey == "" {
			return fmt.Errorf("rewrite.api_key must be set when mode=%s", cfg.Rewrite.Mode)
		}
	case "ollama":
		if cfg.Rewrite.Endpoint == "" {
			return errors.New("rewrite.endpoint must be set when mode=ollama")
		}
	case "exec":
		if cfg.Rewrite.Command == "" {
			return errors.New("rewrite.command must be set when mode=exec")
		}
	default:
		return errors.New("rewrite.mode must be one of mock|gemini|openai|ollama|exec")
	}
	if cfg.Rewrite.MaxTokens < 0 {
		return errors.New("rewrite.max_tokens must be >= 0")
	}
	if strings.TrimSpace(cfg.Rewrite.PromptTemplate) == "" {
		return errors.New("rewrite.prompt_template must not be empty")
	}
	switch cfg.TTS.Mode {
	case "mock", "google":
	case "openai", "elevenlabs":
		if cfg.TTS.APIKey == "" {
			return fmt.Errorf("tts.api_key must be set when mode=%s", cfg.TTS.Mode)
		}
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	default:
		return errors.New("tts.mode must be one of mock|google|openai|elevenlabs|exec")
	}
	switch cfg.TTS.AudioEncoding {
	case "MP3", "LINEAR16", "OGG_OPUS":
	default:
		return errors.New("tts.audio_encoding must be one of MP3|LINEAR16|OGG_OPUS")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	switch cfg.Client.Playback {
	case "cloud", "local":
	default:
		return errors.New("client.playback must be one of cloud|local")
	}
	switch cfg.Speech.Mode {
	case "mock":
	case "exec":
		if cfg.Speech.Command == "" {
			return errors.New("speech.command must be set when mode=exec")
		}
	default:
		return errors.New("speech.mode must be one of mock|exec")
	}
	return nil
}
