package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/astromitra/astromitra/libs/config"
	"github.com/astromitra/astromitra/libs/db"
	"github.com/astromitra/astromitra/libs/httpx"
	"github.com/astromitra/astromitra/libs/kafkax"
	otelx "github.com/astromitra/astromitra/libs/otel"
	"github.com/astromitra/astromitra/libs/runtime"
	"github.com/astromitra/astromitra/services/booking-service/internal/clock"
	"github.com/astromitra/astromitra/services/booking-service/internal/handlers"
	"github.com/astromitra/astromitra/services/booking-service/internal/inbox"
	"github.com/astromitra/astromitra/services/booking-service/internal/locks"
	"github.com/astromitra/astromitra/services/booking-service/internal/model"
	"github.com/astromitra/astromitra/services/booking-service/internal/outbox"
	"github.com/astromitra/astromitra/services/booking-service/internal/payments"
	"github.com/astromitra/astromitra/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	clk, err := clock.New(config.String("TIME_ZONE", "Asia/Kolkata"))
	if err != nil {
		logger.Error("time zone setup failed", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	scheduleRepo := storage.NewScheduleRepository(pool)
	requestRepo := storage.NewRequestRepository(pool)
	packageRepo := storage.NewPackageRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	// Redis backs the schedule lock and rate limiting when configured;
	// otherwise both fall back to in-process equivalents, which are only safe
	// for a single replica.
	var locker locks.Locker = locks.NewKeyed()
	var rateLimit httpx.Middleware
	var redisCheck runtime.ReadyCheck
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		redisCheck = runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}}
		locker = locks.NewRedisLocker(rdb, service)
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, service)
		rateLimit = limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		logger.Warn("REDIS_ADDR not set; using in-process lock and rate limit")
		rateLimit = httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute).Middleware()
	}

	verifier := payments.NewVerifier(config.String("STRIPE_SECRET_KEY", ""))
	if !verifier.Enabled() {
		logger.Warn("STRIPE_SECRET_KEY not set; transaction verification disabled")
	}

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if config.String("KAFKA_BROKERS", "") != "" {
		packageConsumer := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", "catalog.package.upserted.v1"),
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				PackageID       string `json:"package_id"`
				Name            string `json:"name"`
				Type            string `json:"type"`
				DurationMinutes int    `json:"duration_minutes"`
				IsActive        bool   `json:"is_active"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.PackageID == "" || payload.DurationMinutes <= 0 {
				logger.Error("missing required event fields", "topic", msg.Topic)
				return nil
			}
			return packageRepo.Upsert(ctx, model.Package{
				ID:              payload.PackageID,
				Name:            payload.Name,
				Type:            payload.Type,
				DurationMinutes: payload.DurationMinutes,
				IsActive:        payload.IsActive,
			})
		})
		go packageConsumer.Run(ctx)
	}

	scheduleHandler := handlers.NewScheduleHandler(scheduleRepo, outboxRepo, clk, logger)
	bookingHandler := handlers.NewBookingHandler(requestRepo, scheduleRepo, packageRepo, outboxRepo, verifier, locker, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if redisCheck.Check != nil {
		checks = append(checks, redisCheck)
	}
	mux := runtime.NewBaseMux(checks...)
	mux.HandleFunc("/api/v1/schedules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			scheduleHandler.List(w, r)
			return
		}
		scheduleHandler.Create(w, r)
	})
	mux.HandleFunc("/api/v1/schedules/get", scheduleHandler.Get)
	mux.HandleFunc("/api/v1/schedules/update", scheduleHandler.Update)
	mux.HandleFunc("/api/v1/schedules/delete", scheduleHandler.Delete)
	mux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			bookingHandler.ListRequests(w, r)
			return
		}
		bookingHandler.CreateRequest(w, r)
	})
	mux.HandleFunc("/api/v1/requests/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/requests/select-slot", bookingHandler.SelectSlot)
	mux.HandleFunc("/api/v1/requests/reset-slot", bookingHandler.ResetSlot)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		rateLimit,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Astrologer-Id", "X-Request-Id"},
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
