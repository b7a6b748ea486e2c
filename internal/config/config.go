package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GRPCPort string
	HTTPPort string

	PoseServiceAddr   string
	PoseTimeout       time.Duration
	PoseMinVisibility float64

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAITimeout time.Duration

	SampleEvery           int
	RulesFile             string
	Decoder               string
	FFmpegPath            string
	FFprobePath           string
	MaxConcurrentAnalyses int
	AnalysisTimeout       time.Duration

	TempVideoDir   string
	MaxUploadMB    int
	StorageBaseURL string

	FrontendURL string
	CORSOrigins []string

	LogLevel    string
	LogFormat   string
	Environment string

	DBEnabled  bool
	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

func (p *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog masks the password.
func (p *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// LoadConfig reads .env when present and then the process environment.
// The returned warnings describe settings that fell back to degraded modes.
func LoadConfig() (*Config, []string) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, "no .env file found, using system environment variables")
	}

	frontend := getEnv("FRONTEND_URL", "http://localhost:5173")
	origins := []string{frontend, "https://*.vercel.app"}
	for _, o := range splitList(getEnv("CORS_ORIGINS", "")) {
		if !slices.Contains(origins, o) {
			origins = append(origins, o)
		}
	}

	cfg := &Config{
		GRPCPort:              getEnv("GRPC_PORT", "50051"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		PoseServiceAddr:       getEnv("POSE_SERVICE_ADDR", "localhost:9000"),
		PoseTimeout:           getEnvDuration("POSE_TIMEOUT", 5*time.Second),
		PoseMinVisibility:     getEnvFloat("POSE_MIN_VISIBILITY", 0),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4"),
		OpenAITimeout:         getEnvDuration("OPENAI_TIMEOUT", 60*time.Second),
		SampleEvery:           getEnvInt("SAMPLE_EVERY", 1),
		RulesFile:             getEnv("RULES_FILE", ""),
		Decoder:               getEnv("DECODER", "ffmpeg"),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:           getEnv("FFPROBE_PATH", "ffprobe"),
		MaxConcurrentAnalyses: getEnvInt("MAX_CONCURRENT_ANALYSES", 2),
		AnalysisTimeout:       getEnvDuration("ANALYSIS_TIMEOUT", 0),
		TempVideoDir:          getEnv("TEMP_VIDEO_DIR", "temp_videos"),
		MaxUploadMB:           getEnvInt("MAX_UPLOAD_MB", 512),
		StorageBaseURL:        getEnv("STORAGE_BASE_URL", ""),
		FrontendURL:           frontend,
		CORSOrigins:           origins,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		Environment:           getEnv("ENVIRONMENT", "production"),
		DBEnabled:             getEnvBool("DB_ENABLED", true),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "postgres"),
		DBPassword:            getEnv("DB_PASSWORD", ""),
		DBName:                getEnv("DB_NAME", "jujitsu_app"),
		DBSSLMode:             getEnv("DB_SSLMODE", "disable"),
	}

	if cfg.IsDev() && os.Getenv("LOG_FORMAT") == "" {
		cfg.LogFormat = "console"
	}

	if cfg.DBEnabled && cfg.DBPassword == "" {
		warnings = append(warnings, "DB_PASSWORD is not set")
	}
	if cfg.OpenAIAPIKey == "" {
		warnings = append(warnings, "OPENAI_API_KEY is not set, generated fallback feedback is unavailable")
	}

	return cfg, warnings
}

func (c *Config) Validate() error {
	var errs []error
	if c.SampleEvery < 1 {
		errs = append(errs, fmt.Errorf("SAMPLE_EVERY must be >= 1, got %d", c.SampleEvery))
	}
	if c.MaxConcurrentAnalyses < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_ANALYSES must be >= 1, got %d", c.MaxConcurrentAnalyses))
	}
	if c.PoseMinVisibility < 0 || c.PoseMinVisibility > 1 {
		errs = append(errs, fmt.Errorf("POSE_MIN_VISIBILITY must be within [0,1], got %g", c.PoseMinVisibility))
	}
	if c.MaxUploadMB < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be >= 1, got %d", c.MaxUploadMB))
	}
	switch c.Decoder {
	case "ffmpeg", "gocv":
	default:
		errs = append(errs, fmt.Errorf("unknown DECODER %q", c.Decoder))
	}
	return errors.Join(errs...)
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
