package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/coreybb/chatshop/api"
	"github.com/coreybb/chatshop/billing"
	"github.com/coreybb/chatshop/clients"
	"github.com/coreybb/chatshop/datastore"
	"github.com/coreybb/chatshop/delivery"
	"github.com/coreybb/chatshop/dialog"
	"github.com/coreybb/chatshop/models"
	rh "github.com/coreybb/chatshop/route-handlers"
	"github.com/coreybb/chatshop/webhooks"
)

const (
	defaultPort        = "8080"
	defaultDatabaseURL = "user=postgres password=password dbname=chatshop host=localhost port=5432 sslmode=disable"
	defaultRedisAddr   = "localhost:6379"
	defaultSiteURL     = "http://localhost:8080"

	// OK's published webhook source networks.
	defaultOKIPPool = "217.20.144.0/20,217.20.152.0/21"

	dbPingTimeout     = 5 * time.Second
	shutdownTimeout   = 15 * time.Second
	dbMaxOpenConns    = 25
	dbMaxIdleConns    = 25
	dbConnMaxLifetime = 5 * time.Minute
)

type config struct {
	port        string
	databaseURL string
	redisAddr   string
	siteURL     string

	okToken   string
	okAPILink string
	okIPPool  string

	jivoToken   string
	jivoAPILink string

	paypalClientID     string
	paypalClientSecret string
	paypalWebhookID    string
	paypalAPIBase      string

	stripeSecretKey     string
	stripePublicKey     string
	stripeSigningSecret string
}

func main() {
	cfg := loadConfig()

	db, err := setupDatabase(cfg.databaseURL)
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	defer rdb.Close()

	botRepo := datastore.NewBotRepository(db)
	botUserRepo := datastore.NewBotUserRepository(db)
	chatRepo := datastore.NewChatRepository(db)
	messageRepo := datastore.NewMessageRepository(db)
	orderRepo := datastore.NewOrderRepository(db)
	checkoutRepo := datastore.NewCheckoutRepository(db)
	productRepo := datastore.NewProductRepository(db)
	categoryRepo := datastore.NewCategoryRepository(db)
	attemptRepo := datastore.NewOutboundAttemptRepository(db)

	// Outbound delivery queue shared by all platform clients.
	queue := delivery.NewQueue(delivery.DefaultInterval, delivery.DefaultBudget)
	queue.SetRecorder(attemptRepo)
	defer queue.Stop()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancelStartup()

	okBot, err := botRepo.GetBotByType(startupCtx, models.BotTypeOK)
	if err != nil {
		log.Fatalf("Failed to load OK bot record: %v", err)
	}
	jivoBot, err := botRepo.GetBotByType(startupCtx, models.BotTypeJivosite)
	if err != nil {
		log.Fatalf("Failed to load JivoSite bot record: %v", err)
	}

	okClient, err := clients.NewOkClient(queue, messageRepo, okBot.ID, cfg.okToken, cfg.okAPILink, cfg.okIPPool)
	if err != nil {
		log.Fatalf("Failed to build OK client: %v", err)
	}
	commandCache := clients.NewCommandCache(rdb, clients.DefaultCommandTTL)
	jivoClient := clients.NewJivoClient(queue, messageRepo, commandCache, jivoBot.ID, cfg.jivoToken, cfg.jivoAPILink)
	platformRegistry := clients.NewRegistry(okClient, jivoClient)

	// Billing: the shared checkout state machine plus provider clients.
	checkoutService := billing.NewCheckoutService(checkoutRepo, orderRepo)
	paypalClient := billing.NewPaypalClient(checkoutService, productRepo, billing.PaypalConfig{
		ClientID:     cfg.paypalClientID,
		ClientSecret: cfg.paypalClientSecret,
		WebhookID:    cfg.paypalWebhookID,
		APIBase:      cfg.paypalAPIBase,
	})
	stripeClient := billing.NewStripeClient(checkoutService, productRepo, billing.StripeConfig{
		SecretKey:     cfg.stripeSecretKey,
		SigningSecret: cfg.stripeSigningSecret,
		SiteURL:       cfg.siteURL,
	})
	paymentRegistry := billing.NewPaymentRegistry(paypalClient, stripeClient)

	shopDialog := dialog.NewDialog(categoryRepo, productRepo, orderRepo, paymentRegistry)
	dialogService := dialog.NewService(shopDialog, botUserRepo, chatRepo, messageRepo)
	notifier := dialog.NewNotifier(chatRepo, botRepo, productRepo, messageRepo, platformRegistry)
	checkoutService.SetNotifier(notifier)

	chatHandler := rh.NewChatHandler(chatRepo, messageRepo)
	orderHandler := rh.NewOrderHandler(orderRepo)
	catalogHandler := rh.NewCatalogHandler(categoryRepo, productRepo)
	platformHandler := webhooks.NewPlatformHandler(platformRegistry, dialogService)
	billingHandler := webhooks.NewBillingHandler(paymentRegistry, orderRepo, cfg.stripePublicKey)

	apiRouter := api.SetupRoutes(
		chatHandler,
		orderHandler,
		catalogHandler,
		platformHandler,
		billingHandler,
	)

	mainRouter := chi.NewRouter()
	mainRouter.Mount("/", apiRouter)

	startServer(cfg.port, mainRouter)
}

func loadConfig() config {
	cfg := config{
		port:                envOr("PORT", defaultPort),
		databaseURL:         os.Getenv("DB_CONNECTION_STRING"),
		redisAddr:           envOr("REDIS_ADDR", defaultRedisAddr),
		siteURL:             envOr("SITE_URL", defaultSiteURL),
		okToken:             os.Getenv("OK_TOKEN"),
		okAPILink:           os.Getenv("OK_API_LINK"),
		okIPPool:            envOr("OK_IP_POOL", defaultOKIPPool),
		jivoToken:           os.Getenv("JIVO_TOKEN"),
		jivoAPILink:         os.Getenv("JIVO_API_LINK"),
		paypalClientID:      os.Getenv("PAYPAL_CLIENT_ID"),
		paypalClientSecret:  os.Getenv("PAYPAL_CLIENT_SECRET"),
		paypalWebhookID:     os.Getenv("PAYPAL_WEBHOOK_ID"),
		paypalAPIBase:       os.Getenv("PAYPAL_API_BASE"),
		stripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		stripePublicKey:     os.Getenv("STRIPE_PUBLIC_KEY"),
		stripeSigningSecret: os.Getenv("STRIPE_SIGNING_SECRET"),
	}

	if cfg.databaseURL == "" {
		cfg.databaseURL = defaultDatabaseURL
		log.Println("WARNING: DB_CONNECTION_STRING not set, using default local connection string.")
	}
	if cfg.okToken == "" {
		log.Println("WARNING: OK_TOKEN not set. Sending OK messages will fail at runtime.")
	}
	if cfg.jivoToken == "" {
		log.Println("WARNING: JIVO_TOKEN not set. JivoSite webhooks will be rejected.")
	}
	if cfg.paypalClientID == "" || cfg.paypalClientSecret == "" {
		log.Println("WARNING: PayPal credentials not set. PayPal checkouts will fail at runtime.")
	}
	if cfg.stripeSecretKey == "" {
		log.Println("WARNING: STRIPE_SECRET_KEY not set. Stripe checkouts will fail at runtime.")
	}

	return cfg
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func setupDatabase(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(dbMaxOpenConns)
	db.SetMaxIdleConns(dbMaxIdleConns)
	db.SetConnMaxLifetime(dbConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		db.Close() // Close unusable connection pool
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection successful")
	return db, nil
}

func startServer(port string, router http.Handler) {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownSignal // Block until signal received
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
