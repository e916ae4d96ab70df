package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"tableside/internal/auth"
	"tableside/internal/catalog"
	"tableside/internal/config"
	"tableside/internal/database"
	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/middleware"
	"tableside/internal/order"
	"tableside/internal/payment"
	"tableside/internal/realtime"
	"tableside/internal/session"
	"tableside/internal/tables"
	"tableside/internal/ticketfeed"
)

func main() {
	var (
		mode       = flag.String("mode", "server", "Service mode (server, ticket-feed)")
		configPath = flag.String("config", "config.yaml", "Path to config file")
		port       = flag.Int("port", 0, "HTTP port (overrides config)")
		prefetch   = flag.Int("prefetch", 1, "RabbitMQ prefetch count for ticket-feed mode")
	)
	flag.Parse()

	// Secrets come from the environment; .env is a development convenience.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": cfg.Server.Port,
	})

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "server":
		if err := runServer(ctx, cfg, log); err != nil {
			log.Error("service_failed", "Server failed", requestID, err, nil)
			os.Exit(1)
		}
	case "ticket-feed":
		if err := runTicketFeed(ctx, cfg, log, *prefetch); err != nil {
			log.Error("service_failed", "Ticket feed failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runServer runs the HTTP API, the websocket hub and the ticket publisher.
func runServer(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	// Initialize database
	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize Redis for the session store
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("redis_connected", "Connected to Redis", requestID, nil)

	// Initialize messaging
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)

	// Wire the services together
	verifier := auth.NewTokenVerifier(os.Getenv("AUTH_TOKEN_SECRET"))
	sessions := session.NewStore(redisClient, session.DefaultTTL)
	hub := realtime.NewHub(verifier, log)

	orderRepo := order.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)
	registry := tables.NewRegistry(db)

	orderService := order.NewService(orderRepo, catalogRepo, registry, hub, publisher, log)
	hub.SetStatusUpdater(orderService)

	gateway := payment.NewGateway(cfg.Payment, os.Getenv("PAYMENT_SALT_KEY"), log)
	paymentRepo := payment.NewRepository(db)
	paymentService := payment.NewService(paymentRepo, orderRepo, gateway, hub, log)

	paymentLimiter := rate.NewLimiter(rate.Limit(5), 10)

	mux := http.NewServeMux()
	order.NewHandler(orderService, sessions, verifier, log).RegisterRoutes(mux)
	payment.NewHandler(paymentService, cfg.Server.ClientURL, paymentLimiter, verifier, log).RegisterRoutes(mux)
	catalog.NewHandler(catalogRepo, log).RegisterRoutes(mux)
	tables.NewHandler(registry, log).RegisterRoutes(mux)
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/health", healthHandler(db))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Recovery(log, middleware.Logging(log, mux)),
	}

	go func() {
		log.Info("server_listening", fmt.Sprintf("Server started on port %d", cfg.Server.Port), requestID, map[string]interface{}{
			"port": cfg.Server.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// runTicketFeed runs the kitchen ticket consumer.
func runTicketFeed(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.TicketQueue, "ticket-feed", prefetch)
	feed := ticketfeed.New(consumer, log)

	return feed.Start(ctx)
}

// healthHandler reports process and database health.
func healthHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		healthy := db.Ping(ctx) == nil

		response := map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   "tableside",
			"healthy":   healthy,
		}

		w.Header().Set("Content-Type", "application/json")
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			response["status"] = "unhealthy"
		}
		json.NewEncoder(w).Encode(response)
	}
}
