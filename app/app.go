package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"intraday-advisor/auth"
	"intraday-advisor/cache"
	"intraday-advisor/classifier"
	"intraday-advisor/config"
	"intraday-advisor/database"
	"intraday-advisor/database/marketdata"
	"intraday-advisor/database/recommendations"
	"intraday-advisor/llm"
	"intraday-advisor/market"
	"intraday-advisor/news"
	"intraday-advisor/notifications"
	"intraday-advisor/observability"
	"intraday-advisor/realtime"
	"intraday-advisor/snapshot"
)

// Version is reported in traces
const Version = "0.4.0"

const shutdownTimeout = 10 * time.Second

// HTTPServer is the API surface started next to the background workers
type HTTPServer interface {
	Start(port int) error
	Shutdown(ctx context.Context) error
}

// App represents the main application
type App struct {
	config          *config.Config
	log             *logrus.Logger
	metrics         *observability.Metrics
	db              *database.Database
	redis           *cache.RedisClient
	broker          *realtime.Broker
	notifier        *notifications.Multi
	auth            *auth.Authenticator
	advisor         *Advisor
	shutdownTracing func(context.Context) error
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config:  cfg,
		log:     observability.NewLogger(cfg.LogLevel, cfg.LogFormat),
		metrics: observability.NewMetrics(""),
		auth:    auth.NewAuthenticator(cfg.API.AdminJWTSecret),
	}
}

// Logger returns the application logger
func (a *App) Logger() *logrus.Logger { return a.log }

// Metrics returns the Prometheus metrics
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// Advisor returns the advisor service; nil before Init
func (a *App) Advisor() *Advisor { return a.advisor }

// Broker returns the realtime broker; nil before Init
func (a *App) Broker() *realtime.Broker { return a.broker }

// Auth returns the admin authenticator
func (a *App) Auth() *auth.Authenticator { return a.auth }

// Database returns the database connection; nil before Init
func (a *App) Database() *database.Database { return a.db }

// Redis returns the redis client; nil when redis is unreachable
func (a *App) Redis() *cache.RedisClient { return a.redis }

// Init connects storage and wires every component. Errors are fatal at startup.
func (a *App) Init(ctx context.Context) error {
	shutdown, err := observability.InitTracing(a.config.TracingEnabled, os.Stdout, Version)
	if err != nil {
		return fmt.Errorf("tracing setup failed: %w", err)
	}
	a.shutdownTracing = shutdown

	// 1. Database Connection
	a.log.Info("🗄️  Connecting to database...")
	db, err := database.Connect(ctx, database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
		MaxOpen:  a.config.DatabaseMaxOpen,
		MaxIdle:  a.config.DatabaseMaxIdle,
	}, a.log)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	if err := a.db.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Redis Connection
	a.log.Info("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(a.config.RedisHost, a.config.RedisPort, a.config.RedisPassword, a.log)
	if a.redis == nil {
		a.log.Warn("⚠️  Redis connection failed. Caching and override persistence disabled.")
	}
	advisorCache := cache.NewAdvisorCache(a.redis)

	// 3. Rules, session and classifier
	rules, err := config.LoadRuleConfig(a.config.RulesFile)
	if err != nil {
		return fmt.Errorf("rule configuration invalid: %w", err)
	}
	session, err := market.NewSession(a.config.Session)
	if err != nil {
		return fmt.Errorf("market session invalid: %w", err)
	}
	model, err := classifier.Load(a.config.ClassifierModelFile, a.log)
	if err != nil {
		return fmt.Errorf("classifier model invalid: %w", err)
	}
	var cls Classifier
	if model.Available() {
		cls = model
	}

	// 4. News impact (LLM when enabled, keywords otherwise)
	marketRepo := marketdata.NewRepository(a.db.DB())
	var scorer news.Scorer
	if a.config.LLM.Enabled {
		scorer = llm.NewClient(a.config.LLM.Endpoint, a.config.LLM.APIKey, a.config.LLM.Model)
		a.log.Infof("✅ LLM news sentiment ENABLED (Model: %s)", a.config.LLM.Model)
	} else {
		a.log.Info("ℹ️  LLM news sentiment DISABLED, using keyword scoring")
	}
	newsSource := news.NewSource(marketRepo, scorer, advisorCache, a.log)

	// 5. Notifications and realtime push
	a.notifier = a.buildNotifier()
	a.broker = realtime.NewBroker(a.log)

	a.advisor = NewAdvisor(Deps{
		Store:      recommendations.NewRepository(a.db.DB()),
		Universe:   marketRepo,
		Snapshots:  snapshot.NewProvider(marketRepo, a.log),
		Classifier: cls,
		News:       newsSource,
		Notifier:   a.notifier,
		Broker:     a.broker,
		Cache:      advisorCache,
		Metrics:    a.metrics,
		Session:    session,
		Log:        a.log,
	}, rules, Options{
		MaxWorkers:        a.config.Scanner.MaxWorkers,
		TickerTimeout:     a.config.Scanner.TickerTimeout,
		TrackerInterval:   a.config.Tracker.Interval,
		MaxAttempts:       a.config.Tracker.MaxAttempts,
		CloseAtSessionEnd: a.config.Tracker.CloseAtSessionEnd,
		StatsInterval:     a.config.Tracker.StatsRefreshInterval,
	})

	if _, err := a.advisor.RestoreConfigOverride(ctx); err != nil {
		a.log.WithError(err).Warn("⚠️  Could not read persisted rule override")
	}

	cfg := a.advisor.CurrentConfig()
	a.log.Infof("✅ Advisor ready (rules %s v%d, classifier %t, %d notification channels)",
		cfg.Name, cfg.Version, cls != nil, a.notifier.Len())
	return nil
}

func (a *App) buildNotifier() *notifications.Multi {
	var channels []notifications.Notifier

	if len(a.config.Notify.WebhookURLs) > 0 {
		channels = append(channels, notifications.NewWebhookNotifier(a.config.Notify.WebhookURLs, a.config.Notify.WebhookRetries, a.log))
	}

	if a.config.Notify.TelegramBotToken != "" && a.config.Notify.TelegramChatID != 0 {
		tg, err := notifications.NewTelegramNotifier(a.config.Notify.TelegramBotToken, a.config.Notify.TelegramChatID, a.log)
		if err != nil {
			a.log.WithError(err).Warn("⚠️  Telegram notifier disabled")
		} else {
			channels = append(channels, tg)
		}
	}

	return notifications.NewMulti(channels...)
}

// Run starts the background workers and the API server, then blocks until
// an interrupt and shuts everything down
func (a *App) Run(server HTTPServer) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.broker.Run(ctx)

	a.log.Info("🚀 Starting background workers...")
	go a.advisor.Tracker().Start()
	go a.advisor.Refresher().Start()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(a.config.API.Port); err != nil {
			serverErr <- err
		}
	}()

	return a.gracefulShutdown(cancel, server, serverErr)
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc, server HTTPServer, serverErr <-chan error) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	var runErr error
	select {
	case <-interrupt:
		a.log.Info("🛑 Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		a.log.WithError(err).Error("❌ API server failed, shutting down")
		runErr = err
	}

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		defer close(shutdownComplete)

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("Error stopping API server")
		}

		a.log.Info("📊 Stopping outcome tracker...")
		a.advisor.Tracker().Stop()
		a.log.Info("🔄 Stopping stats refresher...")
		a.advisor.Refresher().Stop()

		// Stop the broker after the producers
		cancel()
		a.notifier.Wait()

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.log.WithError(err).Warn("Error closing database")
			} else {
				a.log.Info("✅ Database connection closed")
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.log.WithError(err).Warn("Error closing redis")
			} else {
				a.log.Info("✅ Redis connection closed")
			}
		}

		if err := a.shutdownTracing(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("Error flushing traces")
		}
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		a.log.Info("✅ Graceful shutdown completed")
		return runErr
	case <-shutdownCtx.Done():
		a.log.Warn("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
