package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string

	TelegramBotToken string
	// TelegramBotLink is the public t.me link surfaced to users whose phone
	// is not linked yet.
	TelegramBotLink string
	// StorageChatID pins the storage sink. 0 falls back to the first
	// registered identity, which is a development convenience only.
	StorageChatID int64

	PhoneDirectoryFile string
	UploadDir          string
	MaxUploadBytes     int64

	// DevMode accepts the fixed verification code 123456 without Telegram
	// delivery.
	DevMode bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               "8080",
		PhoneDirectoryFile: "phone_directory.json",
		UploadDir:          "uploads",
		MaxUploadBytes:     2 << 30, // 2GB
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	cfg.TelegramBotLink = os.Getenv("TELEGRAM_BOT_LINK")

	if raw := os.Getenv("STORAGE_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid STORAGE_CHAT_ID %q: %w", raw, err)
		}
		cfg.StorageChatID = id
	}

	if f := os.Getenv("PHONE_DIRECTORY_FILE"); f != "" {
		cfg.PhoneDirectoryFile = f
	}
	if d := os.Getenv("UPLOAD_DIR"); d != "" {
		cfg.UploadDir = d
	}
	if raw := os.Getenv("MAX_UPLOAD_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES %q", raw)
		}
		cfg.MaxUploadBytes = n
	}

	cfg.DevMode = os.Getenv("OTP_DEV_MODE") == "true"

	return cfg, nil
}
