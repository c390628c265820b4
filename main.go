package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	alertapp "fleet-cloud/internal/alerts/application"
	alerts "fleet-cloud/internal/alerts/domain"
	alertrepo "fleet-cloud/internal/alerts/infrastructure/postgres"
	alertredis "fleet-cloud/internal/alerts/infrastructure/redis"
	alerthttp "fleet-cloud/internal/alerts/interfaces/http"
	analyticsapp "fleet-cloud/internal/analytics/application"
	analyticsrepo "fleet-cloud/internal/analytics/infrastructure/postgres"
	analyticsredis "fleet-cloud/internal/analytics/infrastructure/redis"
	analyticsinterfaces "fleet-cloud/internal/analytics/interfaces"
	"fleet-cloud/internal/audit"
	"fleet-cloud/internal/auth"
	fleetrepo "fleet-cloud/internal/fleet/infrastructure/postgres"
	"fleet-cloud/internal/observability/metrics"
	"fleet-cloud/internal/stream"
	streamrepo "fleet-cloud/internal/stream/infrastructure/postgres"
	telemetryapp "fleet-cloud/internal/telemetry/application"
	telemetrypostgres "fleet-cloud/internal/telemetry/infrastructure/postgres"
	telemetryredis "fleet-cloud/internal/telemetry/infrastructure/redis"
	"fleet-cloud/internal/telemetry/interfaces/httpapi"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatalf("redis ping error: %v", err)
	}

	metrics.Init(db, logger)

	dlqStore := streamrepo.NewDeadLetterStore(db)
	bus, err := stream.NewRedisBus(redisClient, logger, stream.WithDeadLetterStore(dlqStore))
	if err != nil {
		logger.Fatalf("stream bus error: %v", err)
	}

	dedup, err := telemetryredis.NewDedupGate(redisClient)
	if err != nil {
		logger.Fatalf("dedup gate error: %v", err)
	}
	hotState, err := telemetryredis.NewHotState(redisClient)
	if err != nil {
		logger.Fatalf("hot state error: %v", err)
	}

	eventRepo := telemetrypostgres.NewEventRepository(db)
	storeWriter, err := telemetryapp.NewStoreWriter(eventRepo, logger)
	if err != nil {
		logger.Fatalf("store writer error: %v", err)
	}
	ingestService, err := telemetryapp.NewIngestService(dedup, hotState, bus, storeWriter, logger)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	keyStore := auth.NewPostgresKeyStore(db)
	ingestAuth, err := auth.NewDeviceAuthMiddleware(keyStore, time.Duration(cfg.IngestSkewSeconds)*time.Second)
	if err != nil {
		logger.Fatalf("ingest auth error: %v", err)
	}

	alertsBroker := alerthttp.NewSSEBroker()
	alertService, err := alertapp.NewService(alertrepo.NewAlertRepository(db), bus, logger, alertapp.WithNotifier(alertsBroker))
	if err != nil {
		logger.Fatalf("alert service error: %v", err)
	}

	alertsCfg, err := alertapp.LoadConfig()
	if err != nil {
		logger.Fatalf("alerts config error: %v", err)
	}
	zones := alertsCfg.Geofences
	siteRepo, err := fleetrepo.NewSiteRepository(db)
	if err != nil {
		logger.Fatalf("site repo error: %v", err)
	}
	sites, err := siteRepo.ListByTenant(context.Background(), cfg.TenantID)
	if err != nil {
		logger.Printf("site list error, using config zones only: %v", err)
	}
	for _, site := range sites {
		radius := site.RadiusM
		if radius <= 0 {
			radius = alertsCfg.DefaultRadiusM
		}
		zones = append(zones, alerts.Geofence{
			SiteID:  site.ID,
			Name:    site.Name,
			Lat:     site.Lat,
			Lng:     site.Lng,
			RadiusM: radius,
		})
	}

	geoState, err := alertredis.NewGeofenceState(redisClient)
	if err != nil {
		logger.Fatalf("geofence state error: %v", err)
	}
	alertsWorker, err := alertapp.NewWorker(alertService, geoState, zones, alertsCfg.SpeedLimitKmh, cfg.AlertsConsumer, logger)
	if err != nil {
		logger.Fatalf("alerts worker error: %v", err)
	}

	prevStore, err := analyticsredis.NewPrevStateStore(redisClient)
	if err != nil {
		logger.Fatalf("prev state store error: %v", err)
	}
	utilizationRepo, err := analyticsrepo.NewUtilizationRepository(db)
	if err != nil {
		logger.Fatalf("utilization repo error: %v", err)
	}
	analyticsWorker, err := analyticsapp.NewWorker(
		prevStore,
		utilizationRepo,
		alertSink{service: alertService},
		logger,
		analyticsapp.WithConsumerName(cfg.AnalyticsConsumer),
	)
	if err != nil {
		logger.Fatalf("analytics worker error: %v", err)
	}

	ingestHandler, err := httpapi.NewIngestHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	batchHandler, err := httpapi.NewBatchHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("batch handler error: %v", err)
	}
	stateHandler, err := httpapi.NewStateHandler(hotState, logger)
	if err != nil {
		logger.Fatalf("state handler error: %v", err)
	}
	alertsHandler, err := alerthttp.NewHandler(alertService, cfg.TenantID, audit.NewRepository(db))
	if err != nil {
		logger.Fatalf("alerts handler error: %v", err)
	}
	exportHandler, err := analyticsinterfaces.NewExportHandler(utilizationRepo, cfg.TenantID)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ingest/telemetry", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/ingest/telemetry/batch", ingestAuth.Wrap(batchHandler))
	mux.Handle("/api/v1/devices/", stateHandler)
	mux.Handle("/api/v1/alerts", alertsHandler)
	mux.Handle("/api/v1/alerts/", alertsHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(alertsBroker))
	mux.Handle("/api/v1/exports/", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		storeWriter.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := analyticsWorker.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("analytics worker stopped: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := alertsWorker.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("alerts worker stopped: %v", err)
		}
	}()

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	wg.Wait()
	logger.Print("stopped")
}

// alertSink adapts the alerts service to the analytics worker contract.
type alertSink struct {
	service *alertapp.Service
}

func (s alertSink) CreateAlert(ctx context.Context, tenantID, vehicleID, alertType, severity, message string) error {
	_, err := s.service.CreateAlert(ctx, tenantID, vehicleID, alertType, severity, message)
	return err
}

type config struct {
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	HTTPAddr          string
	TenantID          string
	IngestSkewSeconds int
	AnalyticsConsumer string
	AlertsConsumer    string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		RedisAddr:         getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenvDefault("REDIS_PASSWORD", ""),
		RedisDB:           getenvIntDefault("REDIS_DB", 0),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		TenantID:          getenvDefault("TENANT_ID", "tenant-demo"),
		IngestSkewSeconds: getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		AnalyticsConsumer: getenvDefault("ANALYTICS_CONSUMER", "analytics-1"),
		AlertsConsumer:    getenvDefault("ALERTS_CONSUMER", "alerts-1"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
