package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/virangk414141/vimesta2/internal/auth"
	"github.com/virangk414141/vimesta2/internal/config"
	"github.com/virangk414141/vimesta2/internal/db"
	"github.com/virangk414141/vimesta2/internal/directory"
	httphandler "github.com/virangk414141/vimesta2/internal/http"
	"github.com/virangk414141/vimesta2/internal/http/handlers"
	"github.com/virangk414141/vimesta2/internal/listener"
	"github.com/virangk414141/vimesta2/internal/repo"
	"github.com/virangk414141/vimesta2/internal/storage"
	"github.com/virangk414141/vimesta2/internal/telegram"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context for startup operations
	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Open the phone directory (created on first registration)
	dir, err := directory.Open(cfg.PhoneDirectoryFile)
	if err != nil {
		log.Fatalf("Failed to open phone directory: %v", err)
	}
	log.Printf("Phone directory loaded with %d identities", dir.Len())

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload dir: %v", err)
	}

	// Telegram bot client, shared by the listener and the storage vault
	tg := telegram.NewClient(nil, telegram.DefaultBaseURL, cfg.TelegramBotToken)

	// Initialize repositories
	userRepo := repo.NewUserRepo(database)
	sessionRepo := repo.NewSessionRepo(database)
	fileRepo := repo.NewFileRepo(database)

	// Initialize auth services
	challenges := auth.NewChallengeStore()
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	authService := auth.NewService(challenges, dir, jwtService, userRepo, sessionRepo, tg, cfg.DevMode)
	if cfg.DevMode {
		log.Println("WARNING: OTP dev mode enabled, fixed code 123456 is accepted")
	}

	// Hidden storage pipeline
	vault := storage.NewVault(tg, dir, cfg.StorageChatID)
	urls, err := storage.NewURLCache(tg.GetFileURL)
	if err != nil {
		log.Fatalf("Failed to create URL cache: %v", err)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.TelegramBotLink)
	fileHandler := handlers.NewFileHandler(vault, urls, fileRepo, userRepo, cfg.UploadDir, cfg.MaxUploadBytes)

	// Create router
	router := httphandler.NewRouter(authHandler, fileHandler, authService)

	// Start the Telegram update listener
	listenerCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()
	go listener.New(tg, dir).Run(listenerCtx)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopListener()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	absDir, _ := filepath.Abs(migrationDir)
	log.Printf("Running migrations from %s", absDir)

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
