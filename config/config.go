package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Discord       DiscordConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AWS           AWSConfig
	Recording     RecordingConfig
	Transcription TranscriptionConfig
	Telemetry     TelemetryConfig
	LogLevel      string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DiscordConfig holds bot credentials and command registration scope.
type DiscordConfig struct {
	Token             string
	ApplicationID     string
	CommandGuildIDs   []string // empty = register globally
	KeepaliveInterval time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds dashboard token signing settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	Endpoint             string // optional, for S3-compatible stores (MinIO, R2)
	RecordingsBucket     string
	PresignExpireMinutes int
}

// RecordingConfig holds session lifecycle timings.
type RecordingConfig struct {
	MaxDuration     time.Duration // automatic stop after this long
	StatusInterval  time.Duration // status message refresh
	ConnectTimeout  time.Duration // voice join
	DrainTimeout    time.Duration // audio sink stop
	FinalizeTimeout time.Duration // whole stop pipeline
}

// TranscriptionConfig holds speech-to-text settings.
type TranscriptionConfig struct {
	Enabled     bool
	APIKey      string
	SpeechModel string
	FFmpegPath  string
	TempDir     string // empty = os.TempDir()
}

// TelemetryConfig holds metrics settings.
type TelemetryConfig struct {
	ServiceName    string
	MetricsEnabled bool
	OTLPEndpoint   string // empty disables tracing
	OTLPInsecure   bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Discord: DiscordConfig{
			Token:             getEnv("DISCORD_TOKEN", getEnv("TOKEN", "")),
			ApplicationID:     getEnv("DISCORD_APPLICATION_ID", ""),
			CommandGuildIDs:   splitTrim(getEnv("DISCORD_COMMAND_GUILD_IDS", ""), ","),
			KeepaliveInterval: getEnvDuration("DISCORD_KEEPALIVE_INTERVAL", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/steve?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "steve"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "steve-meetings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Recording: RecordingConfig{
			MaxDuration:     getEnvDuration("RECORDING_MAX_DURATION", 5*time.Hour),
			StatusInterval:  getEnvDuration("RECORDING_STATUS_INTERVAL", 30*time.Second),
			ConnectTimeout:  getEnvDuration("RECORDING_CONNECT_TIMEOUT", 10*time.Second),
			DrainTimeout:    getEnvDuration("RECORDING_DRAIN_TIMEOUT", 30*time.Second),
			FinalizeTimeout: getEnvDuration("RECORDING_FINALIZE_TIMEOUT", 5*time.Minute),
		},
		Transcription: TranscriptionConfig{
			Enabled:     getEnvBool("TRANSCRIPTION_ENABLED", true),
			APIKey:      getEnv("ASSEMBLYAI_API_KEY", ""),
			SpeechModel: getEnv("ASSEMBLYAI_SPEECH_MODEL", "nano"),
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			TempDir:     getEnv("TRANSCRIPTION_TEMP_DIR", ""),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "steve"),
			MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure:   getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// Validate checks settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN not set"))
	}
	durations := map[string]time.Duration{
		"RECORDING_MAX_DURATION":     c.Recording.MaxDuration,
		"RECORDING_STATUS_INTERVAL":  c.Recording.StatusInterval,
		"RECORDING_CONNECT_TIMEOUT":  c.Recording.ConnectTimeout,
		"RECORDING_DRAIN_TIMEOUT":    c.Recording.DrainTimeout,
		"RECORDING_FINALIZE_TIMEOUT": c.Recording.FinalizeTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.Transcription.Enabled && c.Transcription.APIKey == "" {
		errs = append(errs, errors.New("ASSEMBLYAI_API_KEY required when TRANSCRIPTION_ENABLED"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5h") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
