package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/api"
	"github.com/forestwatch/forestwatch/internal/config"
	"github.com/forestwatch/forestwatch/internal/detector"
	"github.com/forestwatch/forestwatch/internal/ingest"
	"github.com/forestwatch/forestwatch/internal/jobs"
	"github.com/forestwatch/forestwatch/internal/notify"
	"github.com/forestwatch/forestwatch/internal/sched"
	"github.com/forestwatch/forestwatch/internal/store"
	"github.com/forestwatch/forestwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "/config/forestwatch.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	// Log buffer feeding /api/logs (captures last 1000 entries)
	logBuffer := api.NewLogBuffer(1000)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	logger := zerolog.New(multiWriter).With().
		Timestamp().
		Str("version", version.Version).
		Logger()

	logger.Info().Str("build", version.Full()).Msg("Starting forestwatch")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load configuration")
	}
	logger.Info().Int("jobs", len(cfg.Jobs)).Msg("Configuration loaded")

	databaseURL := os.Getenv(cfg.Database.URLEnv)
	if databaseURL == "" {
		logger.Fatal().Str("env", cfg.Database.URLEnv).Msg("Database URL environment variable is required")
	}

	st, err := store.New(databaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open alert store")
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply schema")
	}

	// Redis is optional: daily stats degrade to log-only without it.
	var rdb *redis.Client
	if addr := os.Getenv(cfg.Redis.AddrEnv); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", addr).Msg("Redis unreachable, daily stats will be log-only")
			rdb = nil
		}
	}

	// Signal ingestion
	fireFeed := ingest.NewFireClient(cfg.Ingest, cfg.Region, os.Getenv(cfg.Ingest.FIRMSKeyEnv), logger)
	ndviFeed := ingest.NewNDVIClient(cfg.Ingest, os.Getenv(cfg.Ingest.NDVIKeyEnv), logger)

	// Notification channels
	smsClient := notify.NewSMSClient(
		cfg.Notify.SMS.BaseURL,
		os.Getenv(cfg.Notify.SMS.UsernameEnv),
		os.Getenv(cfg.Notify.SMS.APIKeyEnv),
		cfg.Notify.SMS.Sender,
		logger,
	)
	if !smsClient.Configured() {
		logger.Warn().Msg("SMS gateway not configured, SMS deliveries will fail")
	}

	emailRegistry, err := notify.NewRegistry(
		cfg.Notify.Email.Primary,
		cfg.Notify.Email.Fallback,
		logger,
		notify.NewResendProvider(os.Getenv("RESEND_API_KEY"), logger),
		notify.NewSESProvider(ctx, os.Getenv("AWS_REGION"), logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build email provider registry")
	}

	dispatcher := notify.NewDispatcher(st, smsClient, emailRegistry, cfg.Notify.Email.From, logger)

	// Detectors
	dedup := cfg.Alerts.DedupWindow
	fire := detector.NewFire(cfg.Detectors.Fire, dedup, fireFeed, st, st, logger)
	vegetation := detector.NewVegetation(cfg.Detectors.Vegetation, dedup, ndviFeed, st, st, logger)
	health := detector.NewHealth(cfg.Detectors.Health, dedup, st, st, logger)
	trend := detector.NewTrend(cfg.Detectors.Trend, dedup, st, st, logger)
	outbreak := detector.NewOutbreak(cfg.Detectors.Outbreak, dedup, st, logger)

	jobSet := jobs.New(st, dispatcher, fire, vegetation, health, trend, rdb, cfg.Alerts.RetentionDays, logger)

	scheduler := sched.New(logger)
	scheduler.Register(config.JobFireScan, cfg.Jobs[config.JobFireScan], jobSet.FireScan)
	scheduler.Register(config.JobNDVIRefresh, cfg.Jobs[config.JobNDVIRefresh], jobSet.NDVIRefresh)
	scheduler.Register(config.JobEscalationRecheck, cfg.Jobs[config.JobEscalationRecheck], jobSet.EscalationRecheck)
	scheduler.Register(config.JobHealthScan, cfg.Jobs[config.JobHealthScan], jobSet.HealthScan)
	scheduler.Register(config.JobTrendAggregate, cfg.Jobs[config.JobTrendAggregate], jobSet.TrendAggregate)
	scheduler.Register(config.JobRetentionSweep, cfg.Jobs[config.JobRetentionSweep], jobSet.RetentionSweep)
	scheduler.Register(config.JobDailyStats, cfg.Jobs[config.JobDailyStats], jobSet.DailyStats)
	scheduler.Start(ctx)

	// Outbreak signals arrive over Kafka from the disease classifier.
	// Without brokers the consumer is nil and the loop is skipped.
	consumer, err := ingest.NewOutbreakConsumer(
		os.Getenv(cfg.Kafka.BrokersEnv),
		cfg.Kafka.OutbreakTopic,
		cfg.Kafka.GroupID,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create outbreak consumer")
	}
	if consumer != nil {
		defer consumer.Close()
		go func() {
			for {
				sig, msg, err := consumer.Fetch(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					logger.Error().Err(err).Msg("Fetching outbreak signal failed, retrying")
					select {
					case <-ctx.Done():
						return
					case <-time.After(5 * time.Second):
					}
					continue
				}

				created, err := outbreak.HandleSignal(ctx, sig)
				if err != nil {
					// Leave the offset uncommitted so the signal is
					// redelivered; the dedup key absorbs replays.
					logger.Error().Err(err).Msg("Handling outbreak signal failed, will retry on redelivery")
					continue
				}
				if err := consumer.Commit(ctx, msg); err != nil {
					logger.Error().Err(err).Msg("Committing outbreak message failed")
				}
				if created != nil {
					jobSet.DispatchAll(ctx, []alert.Alert{*created})
				}
			}
		}()
	}

	apiPort := cfg.API.Port
	if envPort := os.Getenv("API_PORT"); envPort != "" {
		apiPort = envPort
	}
	apiServer := api.NewServer(st, scheduler, logBuffer, apiPort, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Str("port", apiPort).Msg("forestwatch running, press Ctrl+C to stop")

	<-sigChan
	logger.Info().Msg("Shutting down...")

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	logger.Info().Msg("forestwatch stopped")
}
