// Command server wires the signing workflow together: stores chosen from the
// environment, the identity verifiers, the document and appointment services,
// and the HTTP surface. Business logic lives under internal/.
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"paraph/internal/appointment"
	"paraph/internal/audit"
	dochandler "paraph/internal/document/handler"
	"paraph/internal/document/intake"
	docmetrics "paraph/internal/document/metrics"
	"paraph/internal/document/service"
	docstore "paraph/internal/document/store"
	"paraph/internal/events"
	"paraph/internal/identity/otp"
	"paraph/internal/identity/token"
	"paraph/internal/notify"
	"paraph/internal/platform/config"
	"paraph/internal/platform/database"
	"paraph/internal/platform/httpserver"
	"paraph/internal/platform/logger"
	"paraph/internal/platform/middleware"
	redisplatform "paraph/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store selection: Postgres and Redis when configured, memory otherwise.
	var (
		documents  service.DocumentStore = docstore.NewMemory()
		tokenStore token.Store           = token.NewInMemoryStore()
		auditStore audit.Store           = audit.NewInMemoryStore()
	)
	if cfg.Postgres.DSN != "" {
		if err := database.RunMigrations(cfg.Postgres.DSN); err != nil {
			return err
		}
		db, err := database.Open(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		documents = docstore.NewPostgres(db)
		tokenStore = token.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		log.Info("using postgres stores")
	}

	var challenges otp.ChallengeStore = otp.NewInMemoryStore()
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		challenges = otp.NewRedisStore(redisClient.Client, cfg.OTP.ChallengeTTL)
		log.Info("using redis challenge store")
	}

	// Notification and audit delivery: Kafka when brokers are configured.
	var notifier service.Notifier = notify.NewLogNotifier(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
		if err != nil {
			return err
		}
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	// Sink delivery runs through the worker so broker latency never sits on
	// the request path; the worker drains its inbox on shutdown.
	auditOpts := []audit.Option{audit.WithLogger(log)}
	var auditWorker *audit.Worker
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		auditWorker = audit.NewWorker(log, sink)
		auditOpts = append(auditOpts, audit.WithSink(auditWorker))
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)

	otpOpts := []otp.Option{
		otp.WithLogger(log),
		otp.WithMetrics(otp.NewMetrics()),
		otp.WithPolicy(otp.Policy{
			MaxAttempts:  cfg.OTP.MaxAttempts,
			ChallengeTTL: cfg.OTP.ChallengeTTL,
		}),
	}
	if cfg.OTP.DevCode != "" {
		log.Warn("otp codes pinned to a fixed development value")
		otpOpts = append(otpOpts, otp.WithGenerator(otp.FixedGenerator{Value: cfg.OTP.DevCode}))
	}
	verifier, err := otp.New(challenges, notifier, otpOpts...)
	if err != nil {
		return err
	}

	tokens, err := token.New(tokenStore)
	if err != nil {
		return err
	}

	hub := events.NewHub(log)
	go hub.Run()

	docOpts := []service.Option{
		service.WithLogger(log),
		service.WithVerifier(verifier),
		service.WithAuditPublisher(publisher),
		service.WithBroadcaster(hub),
		service.WithMetrics(docmetrics.New()),
		service.WithPartyCap(cfg.SignerCap),
	}
	if cfg.DocumentsDir != "" {
		docOpts = append(docOpts, service.WithFileIntake(intake.NewFilesystem(cfg.DocumentsDir)))
	}
	docs, err := service.New(documents, tokens, notifier, docOpts...)
	if err != nil {
		return err
	}

	appointments, err := appointment.New(appointment.NewInMemoryStore(),
		appointment.WithLogger(log),
		appointment.WithWitnessVerifier(verifier),
	)
	if err != nil {
		return err
	}

	validator := middleware.NewHMACValidator(cfg.JWTSigningKey)
	var limiter *middleware.RateLimiter
	if cfg.OTP.ResendPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.OTP.ResendPerMinute)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Timeout(30*time.Second),
		middleware.ContentTypeJSON,
		middleware.ClientMetadata,
	)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		events.ServeWS(hub, w, r)
	})

	dochandler.New(docs, log, validator,
		dochandler.WithUploadLimit(cfg.UploadLimitBytes)).Register(router)
	otp.NewHandler(verifier, log, validator, limiter).Register(router)
	appointment.NewHandler(appointments, log, validator).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if auditWorker != nil {
		g.Go(func() error { return auditWorker.Run(ctx) })
	}
	if limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					limiter.Cleanup(time.Hour)
				}
			}
		})
	}

	return g.Wait()
}
