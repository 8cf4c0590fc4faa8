package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-reservations/internal/analytics"
	analytics_api "ms-reservations/internal/analytics/api"
	"ms-reservations/internal/auth"
	auth_api "ms-reservations/internal/auth/api"
	auth_db "ms-reservations/internal/auth/db"
	"ms-reservations/internal/config"
	"ms-reservations/internal/database/migrations"
	"ms-reservations/internal/kafka"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/notify"
	"ms-reservations/internal/payment"
	payment_api "ms-reservations/internal/payment/api"
	payment_db "ms-reservations/internal/payment/db"
	"ms-reservations/internal/pricing"
	pricing_api "ms-reservations/internal/pricing/api"
	pricing_db "ms-reservations/internal/pricing/db"
	"ms-reservations/internal/reservation"
	reservation_api "ms-reservations/internal/reservation/api"
	reservation_db "ms-reservations/internal/reservation/db"
	"ms-reservations/internal/sse"
	"ms-reservations/internal/sweeper"
	"ms-reservations/internal/tickets"
	tickets_api "ms-reservations/internal/tickets/api"
	tickets_db "ms-reservations/internal/tickets/db"
	"ms-reservations/internal/transfer"
	transfer_api "ms-reservations/internal/transfer/api"
	transfer_db "ms-reservations/internal/transfer/db"
	transfer_redis "ms-reservations/internal/transfer/redis"
	"ms-reservations/internal/units"
	units_api "ms-reservations/internal/units/api"
	units_db "ms-reservations/internal/units/db"
)

func connectPostgres(cfg *config.Config, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Could not connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return client
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start).String())
		})
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Reservation Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx := context.Background()
	bunDB := connectPostgres(cfg, log)
	defer bunDB.Close()
	redisClient := connectRedis(ctx, cfg, log)
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.Info("DATABASE", "Schema migrations applied")
	}

	var reservationEvents, transferEvents notify.Publisher
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.ReservationEvents,
			cfg.Kafka.Topics.TransferEvents,
			cfg.Kafka.Topics.Notifications,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		reservationProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ReservationEvents)
		transferProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.TransferEvents)
		defer reservationProducer.Close()
		defer transferProducer.Close()
		reservationEvents = reservationProducer
		transferEvents = transferProducer
		log.Info("KAFKA", "Kafka producers initialized")
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}
	notifier := notify.New(reservationEvents, transferEvents, log)

	signer := tickets.NewSigner(cfg.Ticket.SigningSecret)
	ledger := units.NewLedger(&units_db.DB{Bun: bunDB}, log)
	engine := pricing.NewEngine(&pricing_db.DB{Bun: bunDB}, log)
	ticketService := tickets.NewService(&tickets_db.DB{Bun: bunDB}, signer, log)
	reservationService := reservation.NewService(
		&reservation_db.DB{Bun: bunDB},
		ledger,
		engine,
		ticketService,
		notifier,
		log,
		cfg.Ticket.ReservationTTL,
	)
	throttle := transfer_redis.NewThrottle(redisClient)
	transferService := transfer.NewService(
		&transfer_db.DB{Bun: bunDB},
		ledger,
		ticketService,
		throttle,
		notifier,
		log,
		cfg.Ticket.TransferTTL,
		cfg.Ticket.ResendCooldown,
	)
	authService := auth.NewService(&auth_db.DB{Bun: bunDB}, cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, log)

	gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, log)
	if err != nil {
		log.Fatal("PAYMENT", fmt.Sprintf("Stripe initialization failed: %v", err))
	}
	paymentService := payment.NewService(&payment_db.DB{Bun: bunDB}, gateway, reservationService, cfg.Stripe, log)

	reservationHandler := reservation_api.NewHandler(reservationService, log)
	gateEmitter := sse.NewGateEventEmitter()
	ticketHandler := tickets_api.NewHandler(ticketService, gateEmitter, log)
	transferHandler := transfer_api.NewHandler(transferService, log)
	pricingHandler := pricing_api.NewHandler(engine, log)
	unitsHandler := units_api.NewHandler(ledger, log)
	paymentHandler := payment_api.NewHandler(paymentService, log)
	authHandler := auth_api.NewHandler(authService, log)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(bunDB), log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(requestLogger(log))

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		authHandler.RegisterRoutes(r)
		pricingHandler.RegisterRoutes(r)
		unitsHandler.RegisterRoutes(r)
		reservationHandler.RegisterRoutes(r)
		paymentHandler.RegisterRoutes(r)
		ticketHandler.RegisterRoutes(r)
		log.Info("ROUTER", "Public routes registered under /api")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Auth.SessionSecret))
			reservationHandler.RegisterAuthedRoutes(r)
			transferHandler.RegisterRoutes(r)
			analyticsHandler.RegisterRoutes(r)
			log.Info("ROUTER", "Protected routes registered under /api")
		})
	})

	sweep := sweeper.New(log,
		sweeper.Task{
			Name:     "reservation-expiry",
			Interval: cfg.Sweeper.ReservationInterval,
			Run:      func() (int, error) { return reservationService.SweepExpired(200) },
		},
		sweeper.Task{
			Name:     "transfer-expiry",
			Interval: cfg.Sweeper.TransferInterval,
			Run:      func() (int, error) { return transferService.SweepExpired(200) },
		},
		sweeper.Task{
			Name:     "session-purge",
			Interval: cfg.Sweeper.SessionInterval,
			Run:      authService.PurgeSessions,
		},
	)
	sweep.Start()

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Reservation Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	sweep.Stop()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}
	log.Info("APP", "Shutdown complete")
}
