package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"drinkPassAPI/handlers"
	"drinkPassAPI/internal/config"
	"drinkPassAPI/internal/ledgerstore"
	"drinkPassAPI/internal/luma"
	"drinkPassAPI/middleware"
	"drinkPassAPI/services"
)

var (
	cfg          *config.Config
	dbPool       *pgxpool.Pool
	redisClient  *redis.Client
	ledgerStore  *ledgerstore.FirestoreStore
	posService   *services.POSService
	passService  *services.PassService
	auditService *services.AuditService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg = config.Load()

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	if cfg.Luma.APIKey == "" {
		log.Fatal("LUMA_API_KEY environment variable is not set")
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("Successfully connected to Postgres")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal("Failed to parse Redis URL:", err)
	}
	redisClient = redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Dedup fails open, so a dead Redis only costs the double-scan guard.
		log.Printf("Warning: Redis unreachable, double-scan guard degraded: %v", err)
	}

	ledgerStore, err = ledgerstore.NewFirestoreStore(ctx,
		cfg.Firestore.CredentialsB64,
		cfg.Firestore.CredentialsFile,
		cfg.Firestore.Collection,
	)
	if err != nil {
		log.Fatal("Failed to initialize Firestore ledger store:", err)
	}

	lumaClient := luma.NewClient(cfg.Luma.BaseURL, cfg.Luma.APIKey, cfg.Luma.Timeout)

	auditService = services.NewAuditService(dbPool)
	if err := auditService.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to prepare audit schema:", err)
	}

	resolverService := services.NewResolverService(lumaClient, cfg.Entitlement.EventID)
	ledgerService := services.NewLedgerService(ledgerStore, cfg.Entitlement.Limits)
	dedupService := services.NewDedupService(redisClient, cfg.Redis.DedupTTL)

	posService = services.NewPOSService(resolverService, ledgerService, dedupService, auditService)
	passService = services.NewPassService(lumaClient, cfg.Entitlement.EventID)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
		redisClient.Close()
		ledgerStore.Close()
	}()

	posHandler := handlers.NewPOSHandler(posService, auditService)
	passHandler := handlers.NewPassHandler(passService)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "drinkPass-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Self-service pass generation is public (rate limited like everything else).
	api.HandleFunc("/pass/generate", passHandler.GeneratePass).Methods("POST")

	// POS routes require an authenticated operator.
	pos := api.PathPrefix("/pos").Subrouter()
	pos.Use(middleware.ClerkAuthMiddleware)

	pos.HandleFunc("/scan", posHandler.ProcessScan).Methods("POST")
	pos.HandleFunc("/state", posHandler.TerminalState).Methods("GET")
	pos.HandleFunc("/scans/recent", posHandler.RecentScans).Methods("GET")
	pos.HandleFunc("/stats/today", posHandler.TodayStats).Methods("GET")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Terminal-ID"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Server.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
