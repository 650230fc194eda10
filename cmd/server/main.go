package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/viewheel/backend/internal/api"
	"github.com/viewheel/backend/internal/config"
	"github.com/viewheel/backend/internal/gcp"
	"github.com/viewheel/backend/internal/notify"
	"github.com/viewheel/backend/internal/storage"
	"github.com/viewheel/backend/internal/token"
	"github.com/viewheel/backend/internal/upload"
	"github.com/viewheel/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Advanced.LogLevel)}))
	slog.SetDefault(logger)
	api.ExposeErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Operator alerts
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Notify.Enabled() {
		tg, err := notify.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = notify.Multi{notifier, tg}
		logger.Info("telegram alerts enabled", "chat", cfg.Notify.TelegramChatID)
	}

	// Submission ledger
	var ledger storage.Store = storage.NewMemoryStore()
	if cfg.Ledger.Path != "" {
		duck, err := storage.NewDuckStore(cfg.Ledger.Path, logger)
		if err != nil {
			return err
		}
		ledger = duck
	}
	defer ledger.Close()

	backends := gcp.NewFactory(cfg.Google, logger)
	if !backends.Configured() {
		logger.Warn("upload destination not configured; /api/drive-upload will answer 500")
	}
	uploadMgr := upload.NewManager(backends, ledger, notifier, logger)

	if cfg.Advanced.CleanupIntervalMinutes > 0 {
		go cleanupJobs(ctx, cfg, uploadMgr, logger)
	}

	deps := &api.Dependencies{
		Deliverer: uploadMgr,
		Version:   Version,
		Logger:    logger,
	}
	if err := cfg.Solana.Validate(); err != nil {
		logger.Warn("checkout quotes disabled", "error", err)
	} else {
		chain := token.NewRPCChain(cfg.Solana.RPCEndpoint)
		deps.Solana = cfg.Solana
		deps.Chain = chain
		deps.Reader = token.NewReader(chain, notify.NewLogNotifier(logger))
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return !cfg.Advanced.EnableRequestLogging || c.Request().URL.Path == "/api/health"
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(deps))

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", "error", err)
		}
	}

	s := newHTTPServer(cfg)

	logger.Info("viewheel server starting",
		"version", Version,
		"build", BuildTime,
		"listen", cfg.GetServerAddr(),
		"backend", cfg.Google.Backend,
		"ledger", ledgerName(cfg.Ledger.Path),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

func cleanupJobs(ctx context.Context, cfg *config.AppConfig, uploadMgr *upload.Manager, logger *slog.Logger) {
	ticker := time.NewTicker(time.Duration(cfg.Advanced.CleanupIntervalMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := uploadMgr.CleanupOldJobs(time.Duration(cfg.Advanced.JobRetentionMinutes) * time.Minute); n > 0 {
				logger.Debug("expired upload jobs removed", "count", n)
			}
		}
	}
}

func ledgerName(path string) string {
	if path == "" {
		return "memory"
	}
	return path
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func newHTTPServer(cfg *config.AppConfig) *http.Server {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return &http.Server{
		Addr:              cfg.GetServerAddr(),
		ReadHeaderTimeout: seconds(cfg.Server.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.Server.ReadTimeout),
		WriteTimeout:      seconds(cfg.Server.WriteTimeout),
		IdleTimeout:       seconds(cfg.Server.IdleTimeout),
	}
}
