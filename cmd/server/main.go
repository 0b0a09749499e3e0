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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"otpgate/internal/audit"
	auditkafka "otpgate/internal/audit/sink/kafka"
	auditmemory "otpgate/internal/audit/store/memory"
	"otpgate/internal/identity"
	identitymodels "otpgate/internal/identity/models"
	identitymemory "otpgate/internal/identity/store/memory"
	identitypostgres "otpgate/internal/identity/store/postgres"
	"otpgate/internal/notify"
	"otpgate/internal/notify/msg91"
	"otpgate/internal/notify/twilio"
	"otpgate/internal/otp/handler"
	otpmetrics "otpgate/internal/otp/metrics"
	"otpgate/internal/otp/secret"
	"otpgate/internal/otp/service"
	otpstore "otpgate/internal/otp/store"
	otpmemory "otpgate/internal/otp/store/memory"
	otppostgres "otpgate/internal/otp/store/postgres"
	"otpgate/internal/platform/config"
	"otpgate/internal/platform/httpserver"
	"otpgate/internal/platform/logger"
	platformpostgres "otpgate/internal/platform/postgres"
	platformredis "otpgate/internal/platform/redis"
	ratelimitmetrics "otpgate/internal/ratelimit/metrics"
	ratelimitmw "otpgate/internal/ratelimit/middleware"
	ratelimitstore "otpgate/internal/ratelimit/store"
	"otpgate/internal/ratelimit/store/bucket"
	"otpgate/internal/receipt"
)

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	codec, err := secret.NewCodec(cfg.OTP.Length)
	if err != nil {
		return err
	}

	db, err := platformpostgres.Open(cfg.PostgresURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var records otpstore.Store
	var directory identity.Directory
	if db != nil {
		records = otppostgres.New(db)
		directory = identitypostgres.New(db)
		log.Info("using postgres stores")
	} else {
		memDirectory := identitymemory.New()
		memDirectory.Seed(&identitymodels.Identity{
			NationalID: "111122223333",
			Name:       "Dev Citizen",
			Mobile:     "9876543210",
		})
		records = otpmemory.New()
		directory = memDirectory
		log.Warn("no postgres URL configured, using in-memory stores with a seeded dev identity")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var buckets ratelimitstore.BucketStore
	if redisClient != nil {
		defer redisClient.Close()
		buckets = bucket.NewRedisStore(redisClient.Client)
		log.Info("using redis rate limit store")
	} else {
		buckets = bucket.NewMemoryStore()
		log.Warn("no redis URL configured, rate limits are per instance")
	}

	auditOpts := []audit.PublisherOption{}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := auditkafka.NewSink(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		auditOpts = append(auditOpts, audit.WithSink(sink))
		log.Info("audit events forwarded to kafka", "topic", cfg.AuditTopic)
	}
	publisher := audit.NewPublisher(auditmemory.NewInMemoryStore(), log, auditOpts...)
	defer publisher.Close()

	gateway, err := newGateway(cfg.Notify)
	if err != nil {
		return err
	}

	manager := service.New(codec, records, directory, gateway,
		service.Config{TTL: cfg.OTP.TTL, MaxAttempts: cfg.OTP.MaxAttempts},
		log,
		service.WithAudit(publisher),
		service.WithMetrics(otpmetrics.New()),
		service.WithReceipts(receipt.NewIssuer(cfg.JWTSigningKey, "otpgate", cfg.OTP.ReceiptTTL)),
	)

	limiter := ratelimitmw.New(buckets, cfg.RateLimit.Budget, cfg.RateLimit.Window, log,
		ratelimitmw.WithMetrics(ratelimitmetrics.New()),
	)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(30 * time.Second))

	handler.New(manager, log).Register(router, limiter.Throttle)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting otpgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newGateway(cfg config.Notify) (notify.Gateway, error) {
	switch cfg.Provider {
	case "twilio":
		return twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.Timeout), nil
	case "msg91":
		return msg91.New(cfg.MSG91AuthKey, cfg.MSG91FlowID, cfg.Timeout), nil
	default:
		return nil, errors.New("unknown sms provider: " + cfg.Provider)
	}
}
