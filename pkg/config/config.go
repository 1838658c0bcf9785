package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// OpenAI-backed collaborators (engine, transcription, synthesis, embeddings).
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	ChatModel      string
	GuardModel     string // empty disables the output guard
	STTModel       string
	TTSModel       string
	EmbeddingModel string

	// Postgres document store.
	DatabaseURL    string
	MigrateOnStart bool

	// Notification transport.
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	SalesTeamInbox string

	// WebSocket connection tuning.
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSReadLimitBytes   int64
	MaxAudioBufferBytes int

	// Context snapshot throttle.
	ContextUpdateInterval time.Duration

	// Conversational turn budget (0 disables the deadline).
	TurnTimeout time.Duration

	SearchLimit int

	ShutdownGracePeriod time.Duration

	CORSAllowedOrigins []string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                  envOr("LEADVOICE_ADDR", ":8000"),
		OpenAIAPIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:         envOr("LEADVOICE_OPENAI_BASE_URL", ""),
		ChatModel:             envOr("LEADVOICE_CHAT_MODEL", "gpt-4o-mini"),
		GuardModel:            envOr("LEADVOICE_GUARD_MODEL", "gpt-4o-mini"),
		STTModel:              envOr("LEADVOICE_STT_MODEL", "whisper-1"),
		TTSModel:              envOr("LEADVOICE_TTS_MODEL", "tts-1"),
		EmbeddingModel:        envOr("LEADVOICE_EMBEDDING_MODEL", "text-embedding-3-small"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("LEADVOICE_DATABASE_URL")),
		MigrateOnStart:        envBoolOr("LEADVOICE_MIGRATE_ON_START", true),
		SMTPHost:              envOr("LEADVOICE_SMTP_HOST", "localhost"),
		SMTPPort:              envIntOr("LEADVOICE_SMTP_PORT", 587),
		SMTPUsername:          strings.TrimSpace(os.Getenv("LEADVOICE_SMTP_USERNAME")),
		SMTPPassword:          os.Getenv("LEADVOICE_SMTP_PASSWORD"),
		SMTPFrom:              envOr("LEADVOICE_SMTP_FROM", "noreply@leadvoice.local"),
		SalesTeamInbox:        envOr("LEADVOICE_SALES_INBOX", "sales@leadvoice.local"),
		WSPingInterval:        envDurationOr("LEADVOICE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:        envDurationOr("LEADVOICE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadLimitBytes:      envInt64Or("LEADVOICE_WS_READ_LIMIT_BYTES", 1<<20), // 1 MiB
		MaxAudioBufferBytes:   envIntOr("LEADVOICE_MAX_AUDIO_BUFFER_BYTES", 10<<20),
		ContextUpdateInterval: envDurationOr("LEADVOICE_CONTEXT_UPDATE_INTERVAL", time.Second),
		TurnTimeout:           envDurationOr("LEADVOICE_TURN_TIMEOUT", 60*time.Second),
		SearchLimit:           envIntOr("LEADVOICE_SEARCH_LIMIT", 5),
		ShutdownGracePeriod:   envDurationOr("LEADVOICE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		CORSAllowedOrigins:    splitCSV(os.Getenv("LEADVOICE_CORS_ORIGINS")),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("LEADVOICE_DATABASE_URL must be set")
	}
	if strings.TrimSpace(cfg.ChatModel) == "" {
		return Config{}, fmt.Errorf("LEADVOICE_CHAT_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.STTModel) == "" {
		return Config{}, fmt.Errorf("LEADVOICE_STT_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.TTSModel) == "" {
		return Config{}, fmt.Errorf("LEADVOICE_TTS_MODEL must not be empty")
	}
	if strings.TrimSpace(cfg.EmbeddingModel) == "" {
		return Config{}, fmt.Errorf("LEADVOICE_EMBEDDING_MODEL must not be empty")
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return Config{}, fmt.Errorf("LEADVOICE_SMTP_PORT must be a valid port")
	}
	if strings.TrimSpace(cfg.SalesTeamInbox) == "" {
		return Config{}, fmt.Errorf("LEADVOICE_SALES_INBOX must not be empty")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("LEADVOICE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("LEADVOICE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadLimitBytes <= 0 {
		return Config{}, fmt.Errorf("LEADVOICE_WS_READ_LIMIT_BYTES must be > 0")
	}
	if cfg.MaxAudioBufferBytes <= 0 {
		return Config{}, fmt.Errorf("LEADVOICE_MAX_AUDIO_BUFFER_BYTES must be > 0")
	}
	if cfg.ContextUpdateInterval <= 0 {
		return Config{}, fmt.Errorf("LEADVOICE_CONTEXT_UPDATE_INTERVAL must be > 0")
	}
	if cfg.TurnTimeout < 0 {
		return Config{}, fmt.Errorf("LEADVOICE_TURN_TIMEOUT must be >= 0")
	}
	if cfg.SearchLimit <= 0 {
		return Config{}, fmt.Errorf("LEADVOICE_SEARCH_LIMIT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("LEADVOICE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
