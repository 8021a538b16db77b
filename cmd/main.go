package main

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chest/internal/catalog"
	"chest/internal/config"
	"chest/internal/handlers"
	"chest/internal/metrics"
	"chest/internal/services"
	"chest/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed all:templates
var templateFS embed.FS

//go:embed all:assets
var assetsFS embed.FS

func loadTemplates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	defer logger.Init("chest", cfg.Server.Verbose, false, io.Discard).Close()

	// 2. Load the prize catalog; a broken catalog is a broken deployment.
	prizes := catalog.Default()
	if cfg.Catalog.Path != "" {
		prizes, err = catalog.Load(cfg.Catalog.Path)
		if err != nil {
			logger.Fatalf("Failed to load prize catalog: %v", err)
		}
	}

	// 3. Open the record store
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := storage.Open(ctx, cfg.StorageOptions())
	cancel()
	if err != nil {
		logger.Fatalf("Failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer store.Close()

	// 4. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 5. Initialize the Session Service
	sessions := services.NewSessionService(services.SessionConfig{
		Catalog: prizes,
		Store:   store,
		Timings: cfg.Timings(),
		Metrics: m,
	})

	// 6. Load HTML templates from the embedded filesystem.
	templates, err := loadTemplates()
	if err != nil {
		logger.Fatalf("Failed to parse templates: %v", err)
	}

	// 7. Initialize the HTTP Handler
	httpHandler := handlers.NewHTTPHandler(sessions, templates)

	// 8. Set up the Gin router
	r := gin.Default()

	assetsSubFS, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		logger.Fatalf("Failed to create assets sub-filesystem: %v", err)
	}
	r.StaticFS("/assets", http.FS(assetsSubFS))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpHandler.RegisterPublicRoutes(r)

	playerRoutes := r.Group("/")
	playerRoutes.Use(httpHandler.PlayerMiddleware())
	httpHandler.RegisterPlayerRoutes(playerRoutes)

	// 9. Start the background janitor to clean up inactive sessions
	janitor, err := sessions.StartJanitor(cfg.Session.CleanupSchedule, cfg.Session.IdleTimeout)
	if err != nil {
		logger.Fatalf("Failed to start session janitor: %v", err)
	}
	defer janitor.Stop()

	// 10. Run the server until interrupted
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}
	go func() {
		logger.Infof("Server starting on http://localhost:%s (storage: %s)", cfg.Server.Port, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
}
