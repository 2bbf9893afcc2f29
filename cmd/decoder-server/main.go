// cmd/decoder-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"breakfear-decoder/internal/access"
	"breakfear-decoder/internal/common/aws"
	"breakfear-decoder/internal/common/camunda"
	"breakfear-decoder/internal/common/config"
	"breakfear-decoder/internal/common/database"
	commonhttp "breakfear-decoder/internal/common/http"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/observability"
	"breakfear-decoder/internal/common/zoho"
	"breakfear-decoder/internal/decoder"
	"breakfear-decoder/internal/flow"
	"breakfear-decoder/internal/leads"
	"breakfear-decoder/internal/payments"
	"breakfear-decoder/internal/proxy"
	"breakfear-decoder/internal/server"
	"breakfear-decoder/pkg/registry"

	si "breakfear-decoder/internal/workers/communication/send-insight"
	cl "breakfear-decoder/internal/workers/crm/capture-lead"
	ca "breakfear-decoder/internal/workers/decoder/check-access"
	dq "breakfear-decoder/internal/workers/decoder/decode-question"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting decoder server",
		zap.String("environment", cfg.App.Environment),
		zap.String("variant", cfg.Decoder.Variant),
		zap.String("store", cfg.Store.Driver),
	)

	ctx := context.Background()

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	if cfg.Tracing.Enabled {
		tracing, err := observability.InitTracing(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
		defer tracing.Shutdown()
	}

	reg := registry.Default()
	if cfg.Decoder.RegistryPath != "" {
		if reg, err = registry.LoadRegistry(cfg.Decoder.RegistryPath); err != nil {
			zapLog.Fatal("variant registry load failed", zap.Error(err))
		}
	}
	variant, ok := reg.Get(cfg.Decoder.Variant)
	if !ok {
		zapLog.Fatal("unknown decoder variant", zap.String("variant", cfg.Decoder.Variant))
	}

	// --- Backing stores ---
	var (
		pg  *database.PostgresClient
		rdb *redis.Client
	)
	needPostgres := cfg.Store.Driver == "postgres" || cfg.Integrations.Leads.Postgres
	if needPostgres {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")
	}

	if cfg.Database.Redis.Address != "" {
		rdb = database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return database.PingRedis(ctx, rdb)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")
	}

	var store access.Store
	switch cfg.Store.Driver {
	case "redis":
		store = access.NewRedisStore(rdb, cfg.Store.KeyPrefix, time.Duration(cfg.Store.TTLHours)*time.Hour)
	case "postgres":
		store = access.NewPostgresStore(pg.DB)
	default:
		zapLog.Warn("using in-memory visitor store; state is lost on restart")
		store = access.NewMemoryStore()
	}

	// --- Decoder ---
	var client decoder.Client
	switch cfg.GenAI.Provider {
	case "upstream":
		httpClient := commonhttp.NewClient(config.GetDuration(cfg.GenAI.Timeout), cfg.GenAI.MaxRetries)
		client = decoder.NewUpstreamClient(httpClient, cfg.GenAI.BaseURL, cfg.GenAI.APIKey)
	default:
		client, err = decoder.NewGeminiClient(ctx, cfg.GenAI.APIKey, cfg.GenAI.Model, cfg.GenAI.Temperature)
		if err != nil {
			zapLog.Fatal("gemini client init failed", zap.Error(err))
		}
	}
	decoderSvc := decoder.NewService(client, cfg.GenAI.Provider, config.GetDuration(cfg.GenAI.Timeout), log)

	// --- Leads and insight delivery ---
	var sinks []leads.Sink
	if cfg.Integrations.Leads.Postgres {
		sinks = append(sinks, leads.NewPostgresSink(pg.DB))
	}
	if cfg.Database.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		sinks = append(sinks, leads.NewIndexSink(es, cfg.Database.Elasticsearch.LeadIndex))
	}
	if cfg.Integrations.Zoho.Enabled {
		sinks = append(sinks, leads.NewCRMSink(zoho.NewCRMClient(cfg.Integrations.Zoho.BaseURL, cfg.Integrations.Zoho.AuthToken)))
	}
	if cfg.Integrations.AWS.SNS.Enabled {
		publisher, err := aws.NewSNSPublisher(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SNS.TopicARN)
		if err != nil {
			zapLog.Fatal("sns publisher init failed", zap.Error(err))
		}
		sinks = append(sinks, leads.NewEventSink(publisher))
	}
	recorder := leads.NewRecorder(10*time.Second, log, sinks...)

	var mailer *leads.InsightMailer
	if cfg.Integrations.AWS.SES.Enabled {
		ses, err := aws.NewSESMailer(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SES.FromEmail)
		if err != nil {
			zapLog.Fatal("ses mailer init failed", zap.Error(err))
		}
		mailer = leads.NewInsightMailer(ses, reg, log)
	}

	// --- Flow ---
	flowSvc := flow.NewService(store, decoderSvc, flow.Options{
		Variant: *variant,
		Links: flow.PaymentLinks{
			MonthlyURL: cfg.Payments.MonthlyLinkURL,
			SingleURL:  cfg.Payments.SingleLinkURL,
			ReturnURL:  cfg.Server.PublicBaseURL + "/return",
		},
		Source:         cfg.Decoder.SourceTag,
		PendingTimeout: config.GetDuration(cfg.GenAI.Timeout) + time.Minute,
	}, log).
		WithLeadSink(recorder).
		WithObservability(obs)
	if mailer != nil {
		flowSvc.WithInsightSender(mailer)
	}

	// --- HTTP ---
	srv := server.New(flowSvc, server.Options{
		CookieSecure:   cfg.Server.CookieSecure,
		RequestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
	}, log).
		WithProxy(proxy.NewHandler(
			commonhttp.NewClient(config.GetDuration(cfg.Proxy.Timeout), 0),
			cfg.Proxy.UpstreamURL, cfg.Proxy.TokenEnv, log,
		))
	if cfg.Payments.StripeWebhookSecret != "" {
		srv.WithWebhook(payments.NewWebhookProcessor(cfg.Payments.StripeWebhookSecret, flowSvc, log))
	}
	if pg != nil {
		srv.WithReadyCheck("postgres", pg.Ping)
	}
	if rdb != nil {
		srv.WithReadyCheck("redis", func(ctx context.Context) error { return database.PingRedis(ctx, rdb) })
	}

	// --- Zeebe workers ---
	var (
		zeebe   *camunda.Client
		workers []*camunda.JobWorker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.Timeout))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		srv.WithReadyCheck("zeebe", zeebe.HealthCheck)

		start := func(taskType string, h camunda.JobHandler) {
			if !config.IsWorkerEnabled(cfg, taskType) {
				zapLog.Info("worker disabled", zap.String("taskType", taskType))
				return
			}
			wc := config.GetWorkerConfig(cfg, taskType)
			workers = append(workers, camunda.OpenWorker(zeebe.GetClient(), taskType, wc.MaxJobsActive, config.GetDuration(wc.Timeout), h, log))
		}

		start(dq.TaskType, dq.NewHandler(dq.LoadConfig(cfg), decoderSvc, reg, log))

		var cache redis.Cmdable
		if rdb != nil {
			cache = rdb
		}
		start(ca.TaskType, ca.NewHandler(ca.LoadConfig(cfg), store, cache, log))
		start(cl.TaskType, cl.NewHandler(cl.LoadConfig(cfg), recorder, log))
		if mailer != nil {
			start(si.TaskType, si.NewHandler(si.LoadConfig(cfg), mailer, log))
		}
		zapLog.Info("workers registered", zap.Int("count", len(workers)))
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("http server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("http server shutdown failed", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("decoder server stopped gracefully")
}
