package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	alarmapp "solar-dashboard/internal/alarms/application"
	alarmmemory "solar-dashboard/internal/alarms/infrastructure/memory"
	alarminterfaces "solar-dashboard/internal/alarms/interfaces"
	alarmhttp "solar-dashboard/internal/alarms/interfaces/http"
	"solar-dashboard/internal/alarms/notify"
	analyticsapp "solar-dashboard/internal/analytics/application"
	"solar-dashboard/internal/analytics/infrastructure/profile"
	analyticshttp "solar-dashboard/internal/analytics/interfaces/http"
	"solar-dashboard/internal/audit"
	"solar-dashboard/internal/auth"
	"solar-dashboard/internal/config"
	"solar-dashboard/internal/eventing"
	"solar-dashboard/internal/logging"
	"solar-dashboard/internal/observability/metrics"
	"solar-dashboard/internal/reports"
	telemetryapp "solar-dashboard/internal/telemetry/application"
	"solar-dashboard/internal/telemetry/application/events"
	telemetry "solar-dashboard/internal/telemetry/domain"
	telemetryfile "solar-dashboard/internal/telemetry/infrastructure/file"
	telemetrymemory "solar-dashboard/internal/telemetry/infrastructure/memory"
	telemetrypostgres "solar-dashboard/internal/telemetry/infrastructure/postgres"
	telemetryhttp "solar-dashboard/internal/telemetry/interfaces/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogDebug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, storeDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("telemetry store error", zap.Error(err))
	}
	if storeDB != nil {
		defer storeDB.Close()
	}
	metrics.Init(storeDB, logger)

	authDB, err := openSQLite(cfg.Auth.DBPath)
	if err != nil {
		logger.Fatal("auth db error", zap.Error(err))
	}
	defer authDB.Close()
	userRepo := auth.NewUserRepository(authDB)
	if err := userRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal("users schema error", zap.Error(err))
	}
	auditRepo := audit.NewRepository(authDB)
	if err := auditRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal("audit schema error", zap.Error(err))
	}

	bus := eventing.NewInMemoryBus(eventing.WithBusLogger(logger))
	if cfg.Kafka.Enabled() {
		writer := eventing.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		forwarder, err := eventing.NewKafkaForwarder(writer, deviceKey, logger)
		if err != nil {
			logger.Fatal("kafka forwarder error", zap.Error(err))
		}
		defer forwarder.Close()
		eventing.Subscribe(bus, eventing.EventTypeOf[events.TelemetryReceived](), "kafka.telemetry_received", forwarder.Handle, logger)
		logger.Info("kafka forwarding enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	ingestService, err := telemetryapp.NewIngestService(store,
		telemetryapp.WithPublisher(bus),
		telemetryapp.WithHistoryLimit(cfg.Ingest.HistoryDefaultLimit),
		telemetryapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("ingest service error", zap.Error(err))
	}

	dashboardService, err := analyticsapp.NewDashboardService(store,
		analyticsapp.WithDefaultWindow(cfg.Ingest.HistoryDefaultLimit),
		analyticsapp.WithDashboardLogger(logger),
	)
	if err != nil {
		logger.Fatal("dashboard service error", zap.Error(err))
	}
	profileSource, err := openProfileSource(cfg, store, logger)
	if err != nil {
		logger.Fatal("forecast source error", zap.Error(err))
	}
	forecastService, err := analyticsapp.NewForecastService(profileSource,
		analyticsapp.WithMinDaySamples(cfg.Forecast.MinDaySamples),
		analyticsapp.WithForecastLogger(logger),
	)
	if err != nil {
		logger.Fatal("forecast service error", zap.Error(err))
	}

	var (
		emailChannel *notify.EmailChannel
		channels     []notify.Channel
	)
	if cfg.SMTP.Enabled() {
		emailChannel, err = notify.NewEmailChannel(notify.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Pass,
			From:     cfg.SMTP.From,
			To:       cfg.Alerts.To,
		})
		if err != nil {
			logger.Fatal("email channel error", zap.Error(err))
		}
		channels = append(channels, emailChannel)
	}
	if cfg.Alerts.WebhookURL != "" {
		webhook, err := notify.NewWebhookChannel(cfg.Alerts.WebhookURL)
		if err != nil {
			logger.Fatal("webhook channel error", zap.Error(err))
		}
		channels = append(channels, webhook)
	}
	channel := notify.NewMultiChannel(channels...)

	ruleRepo, err := alarmmemory.NewRuleRepository(cfg.AlarmRules)
	if err != nil {
		logger.Fatal("alarm rules error", zap.Error(err))
	}
	alarmRepo := alarmmemory.NewAlarmRepository()
	alarmBroker := alarmhttp.NewSSEBroker()
	alarmNotifiers := notify.NewMultiNotifier(alarmBroker)
	if channel.Len() > 0 {
		tpl, err := notify.NewTemplate("")
		if err != nil {
			logger.Fatal("alarm template error", zap.Error(err))
		}
		notifier, err := notify.NewNotifier(ruleRepo, alarmRepo, channel, tpl,
			notify.WithCooldown(cfg.Alerts.Cooldown),
			notify.WithEscalation(cfg.Alerts.Escalation),
			notify.WithDashboardURL(cfg.Alerts.DashboardURL),
			notify.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("alarm notifier error", zap.Error(err))
		}
		defer notifier.Close()
		alarmNotifiers.Add(notifier)
	} else {
		logger.Info("no notification channels configured; alarms stream only")
	}
	alarmService, err := alarmapp.NewService(ruleRepo, alarmRepo,
		alarmapp.WithNotifier(alarmNotifiers),
		alarmapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("alarm service error", zap.Error(err))
	}
	consumer, err := alarminterfaces.NewTelemetryReceivedConsumer(alarmService)
	if err != nil {
		logger.Fatal("alarm consumer error", zap.Error(err))
	}
	consumer.Subscribe(bus, logger)

	alertService, err := alarmapp.NewAlertService(channel,
		alarmapp.WithAlertCooldown(cfg.Alerts.Cooldown),
		alarmapp.WithAlertLogger(logger),
	)
	if err != nil {
		logger.Fatal("alert service error", zap.Error(err))
	}

	reportOpts := []reports.Option{reports.WithLatestReader(ingestService), reports.WithLogger(logger)}
	if emailChannel != nil {
		reportOpts = append(reportOpts, reports.WithSender(emailChannel))
	}
	reportService, err := reports.NewService(dashboardService, reportOpts...)
	if err != nil {
		logger.Fatal("report service error", zap.Error(err))
	}

	authService, err := auth.NewService(userRepo, []byte(cfg.Auth.JWTSecret),
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithDefaultRole(defaultRole(cfg.Auth.DefaultRole, logger)),
		auth.WithServiceLogger(logger),
	)
	if err != nil {
		logger.Fatal("auth service error", zap.Error(err))
	}

	var telemetryOpts []telemetryhttp.HandlerOption
	if cfg.Ingest.HMACSecret != "" {
		ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.Ingest.HMACSecret), cfg.Ingest.MaxSkew)
		telemetryOpts = append(telemetryOpts, telemetryhttp.WithIngestGuard(ingestAuth.Wrap))
	}

	router := mux.NewRouter()

	telemetryHandler, err := telemetryhttp.NewHandler(ingestService, auditRepo, logger, telemetryOpts...)
	if err != nil {
		logger.Fatal("telemetry handler error", zap.Error(err))
	}
	telemetryHandler.Register(router)

	analyticsHandler, err := analyticshttp.NewHandler(dashboardService, forecastService, auditRepo, logger)
	if err != nil {
		logger.Fatal("analytics handler error", zap.Error(err))
	}
	analyticsHandler.Register(router)

	alarmHandler, err := alarmhttp.NewHandler(alarmService, alertService, alarmBroker, auditRepo, logger)
	if err != nil {
		logger.Fatal("alarm handler error", zap.Error(err))
	}
	alarmHandler.Register(router)

	reportHandler, err := reports.NewHandler(reportService, auditRepo, logger)
	if err != nil {
		logger.Fatal("report handler error", zap.Error(err))
	}
	reportHandler.Register(router)

	authHandler, err := auth.NewHandler(authService, auditRepo, logger)
	if err != nil {
		logger.Fatal("auth handler error", zap.Error(err))
	}
	authHandler.Register(router)

	auditHandler, err := audit.NewHandler(auditRepo, logger)
	if err != nil {
		logger.Fatal("audit handler error", zap.Error(err))
	}
	auditHandler.Register(router)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), auth.NewDefaultPolicy(auth.DashboardExemptPaths, nil))
	authMiddleware.Logger = logger
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", auth.IngestTimestampHeader, auth.IngestSignatureHeader}),
	)
	handler := logging.Recovery(logging.Middleware(cors(authMiddleware.Wrap(router)), logger), logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
	logger.Info("http server stopped")
}

// openStore builds the configured sequence store. The returned db is non-nil
// only for the postgres driver.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (telemetry.SequenceStore, *sql.DB, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		store := telemetrypostgres.NewSequenceStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil
	case config.StoreMemory:
		return telemetrymemory.NewSequenceStore(), nil, nil
	default:
		store, err := telemetryfile.NewSequenceStore(cfg.DataDir, telemetryfile.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create auth db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func openProfileSource(cfg config.Config, store telemetry.SequenceStore, logger *zap.Logger) (analyticsapp.ProfileSource, error) {
	if cfg.Forecast.CSVPath != "" {
		source, err := profile.NewCSVSource(cfg.Forecast.CSVPath, logger)
		if err != nil {
			return nil, err
		}
		return source, nil
	}
	source, err := profile.NewStoreSource(store, 0)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func defaultRole(value string, logger *zap.Logger) auth.Role {
	role, ok := auth.NormalizeRole(value)
	if !ok {
		logger.Warn("unknown default role, using viewer", zap.String("role", value))
		return auth.RoleViewer
	}
	return role
}

func deviceKey(event any) string {
	switch evt := event.(type) {
	case events.TelemetryReceived:
		return evt.DeviceID
	case *events.TelemetryReceived:
		return evt.DeviceID
	default:
		return ""
	}
}
