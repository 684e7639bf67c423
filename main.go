package main

import (
	// standard library
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// third-party
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	// internal
	"github.com/rmitchellscott/pdfdesk/internal/ai"
	"github.com/rmitchellscott/pdfdesk/internal/auth"
	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/database"
	"github.com/rmitchellscott/pdfdesk/internal/handlers"
	"github.com/rmitchellscott/pdfdesk/internal/jobs"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/metrics"
	"github.com/rmitchellscott/pdfdesk/internal/objurl"
	"github.com/rmitchellscott/pdfdesk/internal/settings"
	"github.com/rmitchellscott/pdfdesk/internal/storage"
	"github.com/rmitchellscott/pdfdesk/internal/version"
	"github.com/rmitchellscott/pdfdesk/internal/workspace"
)

//go:embed ui/dist
var embeddedUI embed.FS

const reapInterval = time.Minute

func main() {
	// Load .env if present
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Errorf("[STARTUP] %v", err)
		os.Exit(1)
	}
	logging.Setup(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	logging.Logf("[STARTUP] %s", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Errorf("[STARTUP] %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	backend, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	m := metrics.New()
	registry := objurl.NewRegistry(backend, m)
	// nothing is live yet, so every stored blob is left over
	if _, err := registry.Sweep(ctx); err != nil {
		logging.Warnf("[STARTUP] Sweeping old blobs: %v", err)
	}

	db, err := database.Open(cfg.Database, cfg.GinMode)
	if err != nil {
		return err
	}
	defer database.Close(db)

	keys := settings.NewStore(db, cfg.SettingsSecret)
	if err := keys.Load(ctx); err != nil {
		return err
	}
	if cfg.GeminiAPIKey != "" {
		if current, _ := keys.APIKey(ctx); current == "" {
			if err := keys.SaveAPIKey(ctx, cfg.GeminiAPIKey); err != nil {
				return err
			}
			logging.Logf("[STARTUP] Seeded AI API key from GEMINI_API_KEY")
		}
	}

	store := jobs.NewStore()
	sessions := workspace.NewSessions(workspace.Options{
		Registry:      registry,
		Jobs:          store,
		Metrics:       m,
		MaxPDFFiles:   cfg.Limits.MaxPDFFiles,
		MaxImageFiles: cfg.Limits.MaxImageFiles,
		MaxBytes:      cfg.Limits.MaxUploadBytes,
		AutoReset:     cfg.WorkspaceAutoReset,
	}, cfg.SessionTTL)
	go sessions.RunReaper(ctx, reapInterval)

	downloads := objurl.InitGlobal(registry)
	srv := handlers.New(handlers.Deps{
		Config:    cfg,
		Sessions:  sessions,
		Jobs:      store,
		Registry:  registry,
		Auth:      auth.New(cfg.Auth),
		Keys:      keys,
		AI:        ai.NewClient(cfg.AI, m),
		Metrics:   m,
		Downloads: downloads,
	})

	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.PruneLimiters(10 * time.Minute)
			}
		}
	}()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	srv.Register(router)
	if err := serveUI(router, cfg.DisableUI); err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Logf("[STARTUP] Listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logging.Logf("[SHUTDOWN] Stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warnf("[SHUTDOWN] HTTP server: %v", err)
	}
	if err := sessions.CloseAll(shutdownCtx); err != nil {
		logging.Warnf("[SHUTDOWN] Closing sessions: %v", err)
	}
	if err := objurl.Global().RevokeAll(shutdownCtx); err != nil {
		logging.Warnf("[SHUTDOWN] Revoking downloads: %v", err)
	}
	if n, err := storage.CleanupByPrefix(shutdownCtx, backend, storage.BlobPrefix); err != nil {
		logging.Warnf("[SHUTDOWN] Removing blobs: %v", err)
	} else if n > 0 {
		logging.Logf("[SHUTDOWN] Removed %d blobs", n)
	}
	return nil
}

// serveUI serves the embedded static page for anything outside /api.
func serveUI(router *gin.Engine, disabled bool) error {
	if disabled {
		logging.Logf("[STARTUP] DISABLE_UI is set, running in API-only mode")
		router.NoRoute(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusNotFound)
		})
		return nil
	}

	uiFS, err := fs.Sub(embeddedUI, "ui/dist")
	if err != nil {
		return err
	}
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		// strip leading slash
		p := strings.TrimPrefix(c.Request.URL.Path, "/")
		if p == "" {
			p = "index.html"
		}
		if stat, err := fs.Stat(uiFS, p); err != nil || stat.IsDir() {
			p = "index.html"
		}
		http.ServeFileFS(c.Writer, c.Request, uiFS, p)
	})
	return nil
}
