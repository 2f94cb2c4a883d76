package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/sync/errgroup"

	"github.com/lnkday/goal-service/internal/checker"
	"github.com/lnkday/goal-service/internal/config"
	"github.com/lnkday/goal-service/internal/handler"
	"github.com/lnkday/goal-service/internal/kafka"
	"github.com/lnkday/goal-service/internal/lock"
	"github.com/lnkday/goal-service/internal/logger"
	"github.com/lnkday/goal-service/internal/metrics"
	"github.com/lnkday/goal-service/internal/notifier"
	"github.com/lnkday/goal-service/internal/router"
	"github.com/lnkday/goal-service/internal/service"
	"github.com/lnkday/goal-service/internal/storage"
	"github.com/lnkday/goal-service/pkg/observability"
	"github.com/lnkday/goal-service/pkg/tracing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	l := logger.NewLogger(cfg.AppCfg.LogLevel)
	slog.SetDefault(l)

	if err := run(cfg, l); err != nil {
		l.Error("goal-service stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, l *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	_, tracerShutdown, err := observability.NewTracerProvider(ctx, cfg.AppCfg.ServiceName, cfg.TracingCfg.CollectorEndpoint, l)
	if err != nil {
		return err
	}
	defer tracerShutdown()

	deps := map[string]service.Pinger{}

	goals, notifications, closeStores, err := openStores(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer closeStores()
	deps["goals"] = goals
	deps["notifications"] = notifications

	var opts []notifier.Option
	var producer kafka.NotificationProducer
	if cfg.KafkaConfig.Enabled() {
		saramaConfig := sarama.NewConfig()
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
		saramaConfig.Producer.Retry.Max = 5
		saramaConfig.Producer.Return.Successes = true
		saramaConfig.ClientID = cfg.AppCfg.ServiceName + "-producer"

		asyncProducer, err := sarama.NewAsyncProducer(cfg.KafkaConfig.Brokers, saramaConfig)
		if err != nil {
			return err
		}
		producer = kafka.NewProducer(asyncProducer, cfg.KafkaConfig.NotificationsTopic, l,
			tracing.NewTracer(tracing.GetTracer("goal-service/kafka-producer")))
		producer.Start(ctx)
		opts = append(opts, notifier.WithPublisher(producer))
	}

	dispatcher := notifier.NewDispatcher(notifications, channels(cfg.ChannelCfg, l), notifier.DispatcherConfig{
		Timeout:     cfg.ChannelCfg.Timeout,
		MaxAttempts: cfg.ChannelCfg.MaxAttempts,
		BaseBackoff: cfg.ChannelCfg.BaseBackoff,
	}, l, opts...)

	progressSvc := service.NewProgressService(goals, dispatcher, l)
	goalSvc := service.NewGoalService(goals, notifications, l)
	analyticsSvc := service.NewAnalyticsService(goals, l)

	var locker lock.Locker = lock.NewLocal()
	if addr := cfg.MonitorCfg.RedisAddr; addr != "" {
		rdb, err := lock.NewRedisClient(ctx, addr, cfg.MonitorCfg.RedisPass, cfg.MonitorCfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, cfg.AppCfg.ServiceName+":lock:")
		deps["redis"] = pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	monitor := checker.NewDeadlineMonitor(goals, dispatcher, locker, checker.DeadlineConfig{
		Interval:    cfg.MonitorCfg.Interval,
		Lookahead:   cfg.MonitorCfg.Lookahead,
		Cooldown:    cfg.MonitorCfg.Cooldown,
		Concurrency: cfg.MonitorCfg.Concurrency,
		LockTTL:     cfg.MonitorCfg.LockTTL,
	}, l)

	healthSvc := service.NewHealthService(deps, l)
	r := router.NewRouter(
		handler.NewGoalHandler(goalSvc, progressSvc, analyticsSvc, l),
		handler.NewHealthHandler(healthSvc, l),
	)
	server := &http.Server{
		Addr:              ":" + cfg.AppCfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var consumer *kafka.Consumer
	if cfg.KafkaConfig.Enabled() {
		saramaCfg := sarama.NewConfig()
		saramaCfg.Version = sarama.V2_1_0_0
		saramaCfg.Consumer.Return.Errors = true
		group, err := sarama.NewConsumerGroup(cfg.KafkaConfig.Brokers, cfg.KafkaConfig.ConsumerGroup, saramaCfg)
		if err != nil {
			return err
		}
		consumer = kafka.NewKafkaConsumer(cfg.KafkaConfig.ProgressTopic, group, progressSvc, l,
			tracing.NewTracer(tracing.GetTracer("goal-service/kafka-consumer")))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		monitor.Start(gctx)
		return nil
	})

	if consumer != nil {
		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		l.Info("Server started", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if producer != nil {
		producer.Close(context.Background())
	}
	if err == nil {
		l.Info("Server exited cleanly")
	}
	return err
}

func openStores(ctx context.Context, cfg *config.Config, l *slog.Logger) (storage.GoalStorage, storage.NotificationStorage, func(), error) {
	if cfg.AppCfg.StorageDriver == "memory" {
		l.Warn("using in-memory storage; data is lost on restart")
		return storage.NewMemoryGoalStorage(), storage.NewMemoryNotificationStorage(), func() {}, nil
	}

	if cfg.DBConfig.AutoMigrate {
		if err := storage.Migrate(cfg.DBConfig.URL); err != nil {
			return nil, nil, nil, err
		}
		l.Info("database migrations applied")
	}

	pool, err := storage.NewPostgresPool(ctx, cfg.DBConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := storage.ConnectPostgres(cfg.DBConfig)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	closeFn := func() {
		pool.Close()
		if err := db.Close(); err != nil {
			l.Warn("Failed to close database", slog.Any("error", err))
		}
	}
	return storage.NewPostgresStorage(pool), storage.NewPostgresNotificationStorage(db), closeFn, nil
}

// channels builds the delivery channels. Email and SMS are only registered
// when their transport is configured.
func channels(cfg config.ChannelConfig, l *slog.Logger) []notifier.Channel {
	client := &http.Client{Timeout: cfg.Timeout}
	chs := []notifier.Channel{
		notifier.NewWebhookChannel(client),
		notifier.NewSlackChannel(client),
		notifier.NewTeamsChannel(client),
	}
	if cfg.SMTPHost != "" {
		chs = append(chs, notifier.NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))
	}
	if cfg.SMSGatewayURL != "" {
		chs = append(chs, notifier.NewSMSChannel(client, cfg.SMSGatewayURL, cfg.SMSGatewayUser, cfg.SMSGatewayPass))
	}

	names := make([]string, 0, len(chs))
	for _, ch := range chs {
		names = append(names, ch.Name())
	}
	l.Info("notification channels registered", slog.Any("channels", names))
	return chs
}
