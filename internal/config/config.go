package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port           string
	DataDir        string
	MaxUploadBytes int64

	JWTSecret string
	TokenTTL  time.Duration

	OCRLangs         string
	PdftoppmPath     string
	RasterDPI        int
	PDFTextThreshold int
	OCRWorkers       int
	OCRQueueSize     int
	OCRTimeout       time.Duration

	LLMProvider  string
	LLMAPIKey    string
	LLMModel     string
	LLMMaxTokens int
	OllamaHost   string
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.DataDir = envOrDefault("DATA_DIR", "data")

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 15)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	cfg.JWTSecret = envOrDefault("JWT_SECRET", "change-me")
	ttlSeconds, err := parseIntEnv("JWT_TTL_SECONDS", 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse JWT_TTL_SECONDS: %w", err)
	}
	cfg.TokenTTL = time.Duration(ttlSeconds) * time.Second

	cfg.OCRLangs = envOrDefault("OCR_LANGS", "eng+por")
	cfg.PdftoppmPath = envOrDefault("PDFTOPPM_PATH", "pdftoppm")

	dpi, err := parseIntEnv("RASTER_DPI", 300)
	if err != nil {
		return Config{}, fmt.Errorf("parse RASTER_DPI: %w", err)
	}
	cfg.RasterDPI = int(dpi)

	threshold, err := parseIntEnv("PDF_TEXT_THRESHOLD", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse PDF_TEXT_THRESHOLD: %w", err)
	}
	cfg.PDFTextThreshold = int(threshold)

	workers, err := parseIntEnv("OCR_WORKERS", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse OCR_WORKERS: %w", err)
	}
	cfg.OCRWorkers = int(workers)

	queueSize, err := parseIntEnv("OCR_QUEUE_SIZE", 16)
	if err != nil {
		return Config{}, fmt.Errorf("parse OCR_QUEUE_SIZE: %w", err)
	}
	cfg.OCRQueueSize = int(queueSize)

	ocrTimeout, err := parseIntEnv("OCR_TIMEOUT_SECONDS", 300)
	if err != nil {
		return Config{}, fmt.Errorf("parse OCR_TIMEOUT_SECONDS: %w", err)
	}
	cfg.OCRTimeout = time.Duration(ocrTimeout) * time.Second

	cfg.LLMProvider = envOrDefault("LLM_PROVIDER", "openai")
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.LLMModel = envOrDefault("LLM_MODEL", "gpt-4o-mini")
	cfg.OllamaHost = envOrDefault("OLLAMA_HOST", "http://127.0.0.1:11434")

	maxTokens, err := parseIntEnv("LLM_MAX_TOKENS", 400)
	if err != nil {
		return Config{}, fmt.Errorf("parse LLM_MAX_TOKENS: %w", err)
	}
	cfg.LLMMaxTokens = int(maxTokens)

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
