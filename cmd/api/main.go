package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"accountmart-api/internal/cache"
	"accountmart-api/internal/config"
	"accountmart-api/internal/handler"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/router"
	"accountmart-api/internal/service"
	"accountmart-api/internal/service/notify"
	"accountmart-api/internal/service/rates"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting AccountMart API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	store, err := openStore(&cfg.LedgerDB)
	if err != nil {
		log.Fatalf("Failed to initialize ledger store: %v", err)
	}
	defer store.Close()

	// Redis is optional; everything that uses it falls back to memory.
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis connection failed, using memory: %v", err)
			redisClient = nil
		} else {
			log.Println("Redis client initialized")
			defer redisClient.Close()
		}
	}

	// Rate Oracle
	var rateCache cache.Cache
	if redisClient != nil && strings.EqualFold(cfg.Cache.Type, "redis") {
		rateCache = cache.NewRedisCache(redisClient, cfg.Cache.RedisPrefix+":cache")
	} else {
		rateCache = cache.NewMemoryCache(time.Minute)
	}
	defer rateCache.Close()

	fallback, err := decimal.NewFromString(cfg.Rates.Fallback)
	if err != nil {
		log.Fatalf("Invalid RATE_FALLBACK %q: %v", cfg.Rates.Fallback, err)
	}
	rateClient := rates.NewClient(rates.Config{
		URL:      cfg.Rates.URL,
		Target:   cfg.Rates.Target,
		Fallback: fallback,
		Timeout:  cfg.Rates.Timeout,
		CacheTTL: cfg.Rates.CacheTTL,
	}, rateCache)
	refresher := rates.NewRefresher(rateClient, cfg.Rates.RefreshInterval)
	refresher.Start()

	// Notification Sink
	var queue notify.Queue
	if redisClient != nil && strings.EqualFold(cfg.Notify.QueueType, "redis") {
		queue = notify.NewRedisQueue(redisClient, cfg.Cache.RedisPrefix+":notify:queue", int64(cfg.Notify.QueueSize))
		log.Println("Notification queue: redis")
	} else {
		queue = notify.NewMemoryQueue(cfg.Notify.QueueSize)
		log.Println("Notification queue: memory")
	}
	telegram := notify.NewTelegramNotifier(notify.TelegramConfig{
		BaseURL:  cfg.Notify.TelegramBaseURL,
		BotToken: cfg.Notify.TelegramBotToken,
		ChatID:   cfg.Notify.TelegramChatID,
		Timeout:  cfg.Notify.TelegramTimeout,
	}, store)
	dispatcher := notify.NewDispatcher(queue, telegram)

	// Initialize services
	tokens, err := service.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, nil)
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}
	authService, err := service.NewAuthService(store, tokens, dispatcher, service.AuthConfig{
		Operator: service.OperatorCredentials{
			Username: cfg.Auth.OperatorUsername,
			Password: cfg.Auth.OperatorPassword,
			Email:    cfg.Auth.OperatorEmail,
		},
		BcryptCost: cfg.Auth.BcryptCost,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}
	if cfg.Auth.OperatorPassword == "" {
		log.Println("Warning: OPERATOR_PASSWORD is empty, operator login is disabled")
	}
	catalogService := service.NewCatalogService(store, nil)
	purchaseService := service.NewPurchaseService(store, dispatcher, nil)
	paymentService := service.NewPaymentService(store, rateClient, dispatcher, nil)
	adminService := service.NewAdminService(store, nil)

	// Create router
	r := router.New(router.Config{
		Handler:         handler.New(store, cfg.App.Name, cfg.App.Version),
		AuthHandler:     handler.NewAuthHandler(authService),
		CatalogHandler:  handler.NewCatalogHandler(catalogService),
		PurchaseHandler: handler.NewPurchaseHandler(purchaseService),
		PaymentHandler:  handler.NewPaymentHandler(paymentService),
		AdminHandler: handler.NewAdminHandler(handler.AdminConfig{
			Admin:      adminService,
			Auth:       authService,
			Store:      store,
			Dispatcher: dispatcher,
			DBType:     cfg.LedgerDB.Type,
		}),
		Verifier:    authService,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	refresher.Stop()

	// Deliver what is already queued before the store goes away.
	log.Println("Draining notifications...")
	if err := dispatcher.Close(ctx); err != nil {
		log.Printf("Notification drain error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}

// openStore connects the ledger backend selected by LEDGER_DB_TYPE.
func openStore(cfg *config.LedgerDBConfig) (repository.Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "mongodb", "mongo":
		s, err := repository.NewMongoDBStore(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		log.Println("MongoDB ledger store initialized")
		return s, nil
	case "postgres", "postgresql":
		s, err := repository.NewPostgresStore(cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		log.Println("PostgreSQL ledger store initialized")
		return s, nil
	case "mysql":
		s, err := repository.NewMySQLStore(cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		log.Println("MySQL ledger store initialized")
		return s, nil
	case "memory":
		log.Println("Warning: in-memory ledger store, data is lost on restart")
		return repository.NewMemoryStore(), nil
	default: // sqlite
		s, err := repository.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		log.Println("SQLite ledger store initialized")
		return s, nil
	}
}
