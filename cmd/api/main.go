package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/apiclient"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/auth"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/catalog"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/config"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/dashboard"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/db"
	apphttp "github.com/WailSalutem-Health-Care/clinic-intake-service/internal/http"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/logger"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/telemetry"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/wizard"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Logger.Level, cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.LoadConfig()
	telCfg.ServiceName = cfg.App.ServiceName
	telCfg.Environment = cfg.App.Env
	provider, err := telemetry.InitProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("failed to initialize metrics", zap.Error(err))
	}

	perms, err := auth.LoadPermissions(cfg.App.PermissionsPath)
	if err != nil {
		log.Fatal("failed to load permissions", zap.String("path", cfg.App.PermissionsPath), zap.Error(err))
	}
	authCfg := auth.LoadConfig()
	jwks, err := auth.NewJWKS(authCfg.JWKSURL, 10*time.Minute, log.Named("jwks"))
	if err != nil {
		log.Fatal("failed to load signing keys", zap.String("jwks_url", authCfg.JWKSURL), zap.Error(err))
	}
	defer jwks.Close()
	verifier := auth.NewVerifier(authCfg, jwks)

	// Drafts survive restarts only with Postgres; otherwise sessions live in
	// memory alone.
	var drafts wizard.DraftStore = wizard.NopDraftStore{}
	if cfg.Wizard.DraftStore == "postgres" {
		database, err := db.Connect(ctx, cfg.Postgres, log)
		switch {
		case errors.Is(err, db.ErrNotConfigured):
			log.Warn("postgres not configured, wizard drafts will not be persisted")
		case err != nil:
			log.Warn("postgres unavailable, wizard drafts will not be persisted", zap.Error(err))
		default:
			defer database.Close()
			store := wizard.NewPostgresDraftStore(database)
			if err := store.EnsureSchema(ctx); err != nil {
				log.Fatal("failed to prepare draft table", zap.Error(err))
			}
			drafts = store
		}
	}

	var publisher messaging.PublisherInterface = messaging.NopPublisher{}
	if p, err := messaging.NewPublisher(cfg.RabbitMQ.URL, log); err != nil {
		log.Warn("rabbitmq unavailable, domain events will not be published", zap.Error(err))
	} else {
		defer p.Close()
		publisher = p
	}

	var cache catalog.Cache = catalog.NopCache{}
	if rdb, err := catalog.NewRedisClient(ctx, cfg.Redis); err != nil {
		log.Warn("redis unavailable, catalog searches will not be cached", zap.Error(err))
	} else {
		defer rdb.Close()
		cache = catalog.NewRedisCache(rdb)
	}

	client := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout, log.Named("apiclient"))

	dashSvc := dashboard.NewService(client, metrics, log.Named("dashboard"))
	hub := dashboard.NewHub(dashboard.HubConfig{
		Service:     dashSvc,
		Token:       cfg.API.ServiceToken,
		Interval:    cfg.Dashboard.RefreshInterval,
		PageSize:    cfg.Dashboard.PageSize,
		AutoRefresh: cfg.Dashboard.AutoRefresh && cfg.API.ServiceToken != "",
		Logger:      log.Named("dashboard"),
	})
	hub.Start(ctx)
	defer hub.Stop()

	manager := wizard.NewManager(wizard.ManagerConfig{
		Patients:   client,
		Facilities: client,
		Store:      drafts,
		Notifier:   wizard.NewEventNotifier(publisher, hub, log.Named("events")),
		Metrics:    metrics,
		TTL:        cfg.Wizard.SessionTTL,
		Logger:     log.Named("wizard"),
	})
	go manager.Run(ctx, cfg.Wizard.ReapInterval)

	cleanup := wizard.NewCleanupService(drafts, cfg.Wizard.DraftTTL, log.Named("cleanup"))
	scheduler, err := cleanup.StartSchedule(cfg.Wizard.CleanupInterval)
	if err != nil {
		log.Fatal("failed to start draft cleanup", zap.Error(err))
	}
	defer scheduler.Stop()

	router := apphttp.SetupRouter(apphttp.Deps{
		ServiceName:    cfg.App.ServiceName,
		Verifier:       verifier,
		Permissions:    perms,
		Metrics:        metrics,
		Logger:         log.Named("http"),
		AllowedOrigins: cfg.App.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		Wizards:        wizard.NewHandler(wizard.NewService(manager, metrics, log.Named("wizard")), log.Named("wizard")),
		Dashboard:      dashboard.NewHandler(dashSvc, hub, log.Named("dashboard")),
		Catalog: catalog.NewHandler(
			catalog.NewService(client, cache, cfg.Catalog.CacheTTL, metrics, log.Named("catalog")),
			catalog.NewPrescriptionService(client, log.Named("prescriptions")),
			log.Named("catalog"),
		),
	})

	server := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("clinic-intake-service starting", zap.String("addr", cfg.App.Port), zap.String("upstream", cfg.API.BaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down, waiting for in-flight requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}
