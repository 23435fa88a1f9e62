package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"clinical-scribe/internal/agent"
	"clinical-scribe/internal/alert"
	"clinical-scribe/internal/appointment"
	"clinical-scribe/internal/billing"
	"clinical-scribe/internal/config"
	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/jobs"
	"clinical-scribe/internal/pipeline"
	"clinical-scribe/internal/platform/codec"
	"clinical-scribe/internal/platform/events"
	"clinical-scribe/internal/platform/metrics"
	"clinical-scribe/internal/platform/observability"
	"clinical-scribe/internal/platform/postgres"
	"clinical-scribe/internal/platform/storage"
	"clinical-scribe/internal/platform/telegram"
	"clinical-scribe/internal/profile"
	"clinical-scribe/internal/queue"
	"clinical-scribe/internal/safety"
)

// app holds the wired components shared by the serve and jobs commands.
type app struct {
	db           *sql.DB
	runner       *jobs.Runner
	consultation *consultation.Handler
	queue        *queue.Handler
	closers      []io.Closer
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := postgres.Connect(ctx, cfg.Database.URL, postgres.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	a := &app{db: db, closers: []io.Closer{db}}

	store, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		a.close()
		return nil, err
	}

	jobQueue, err := newJobQueue(ctx, cfg.Jobs)
	if err != nil {
		a.close()
		return nil, err
	}

	publishers := events.Multi{}
	var bus *events.RedisBus
	if len(cfg.Events.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic))
		publishers = append(publishers, kp)
		a.closers = append(a.closers, kp)
	}
	if cfg.Events.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
		bus = events.NewRedisBus(rdb, cfg.Events.QueueChannel)
		publishers = append(publishers, bus)
		a.closers = append(a.closers, rdb)
	}

	alerts := alert.NewService(telegram.NewClient(cfg.Alerts.TelegramToken), cfg.Alerts.ChatID)

	callLog := agent.NewDBCallLog(db)
	limiter := agent.NewLimiter(cfg.Providers.RequestsPerSec, cfg.Providers.Burst)
	stt := agent.NewSTTClient(cfg.Providers.TranscriptionURL, cfg.Providers.Timeout, callLog)
	llm := agent.NewLLMClient(agent.LLMConfig{
		URL:     cfg.Providers.LLMURL,
		APIKey:  cfg.Providers.LLMKey,
		Model:   cfg.Providers.LLMModel,
		Timeout: cfg.Providers.Timeout,
	}, callLog)

	consultations := consultation.NewRepository(db)
	profiles := profile.NewRepository(db)
	jobRepo := jobs.NewRepository(db)

	a.runner = jobs.NewRunner(jobRepo, jobQueue, cfg.Jobs.Workers)
	pipeline.NewStages(pipeline.Deps{
		Consultations: consultations,
		Profiles:      profiles,
		Storage:       store,
		Transcriber:   limiter.Transcriber(stt),
		Notes:         limiter.Notes(llm),
		Screener:      safety.NewScreener(limiter.Checker(llm)),
		Publisher:     publishers,
		Alerts:        alerts,
	}).Register(a.runner)

	svc := consultation.NewService(consultation.Deps{
		Repo:         consultations,
		Profiles:     profiles,
		Appointments: appointment.NewRepository(db),
		Jobs:         jobRepo,
		Scheduler:    a.runner,
		Bills:        billing.NewRepository(db),
		Storage:      store,
		Codec:        codec.NewFFmpeg(cfg.Codec.FFmpegPath),
		Publisher:    publishers,
		Alerts:       alerts,
		DefaultFee:   cfg.Billing.DefaultFee,
	})
	a.consultation = consultation.NewHandler(svc)

	var sub queue.Subscriber
	if bus != nil {
		sub = bus
	}
	a.queue = queue.NewHandler(queue.NewService(queue.NewRepository(db)), sub)
	return a, nil
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Driver == "s3" {
		client, err := storage.NewS3Client(ctx, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("storing audio in s3")
		return storage.NewS3Store(client, cfg.Bucket), nil
	}
	return storage.NewLocalStore(cfg.Dir)
}

func newJobQueue(ctx context.Context, cfg config.JobsConfig) (jobs.Queue, error) {
	if cfg.Queue != "sqs" {
		return jobs.NewMemoryQueue(cfg.Buffer), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg)
	url, err := jobs.ResolveQueueURL(ctx, client, cfg.SQSQueueName)
	if err != nil {
		return nil, fmt.Errorf("resolve sqs queue %s: %w", cfg.SQSQueueName, err)
	}
	log.Info().Str("queue", cfg.SQSQueueName).Msg("dispatching jobs through sqs")
	return jobs.NewSQSQueue(client, url), nil
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS for the staff frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Request-ID")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	a.consultation.RegisterRoutes(r)
	a.queue.RegisterRoutes(r)
	return r
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}
