package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"event-ticketing/config"
	"event-ticketing/handlers"
	"event-ticketing/internal/gateway/esewa"
	"event-ticketing/internal/store"
	"event-ticketing/monitoring"
	"event-ticketing/security"
	"event-ticketing/services"
	"event-ticketing/utils"

	_ "event-ticketing/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Gateway status-check client
	esewaClient := esewa.NewClient(&esewa.ClientConfig{
		StatusURL:   cfg.Esewa.StatusURL,
		ProductCode: cfg.Esewa.ProductCode,
		Timeout:     cfg.GatewayTimeout,
	})

	// Initialize services
	recordStore := store.New(app)
	notifier := services.NewPubNubNotifier(pn)
	paymentService := services.NewPaymentService(redisClient, recordStore, notifier, esewaClient, cfg)
	bookingService := services.NewBookingService(recordStore)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, cfg)
	bookingHandler := handlers.NewBookingHandler(app, bookingService)
	adminHandler := handlers.NewAdminHandler(app, paymentService, cfg.AdminAPIKeyHash)

	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Metrics endpoint on its own listener
	if cfg.EnableMetrics {
		monitoring.NewMonitor(redisClient)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Payment endpoints
		e.Router.POST("/api/v1/payment/initiate", paymentHandler.Initiate).
			BindFunc(rateLimiter.PaymentRateLimit())
		e.Router.GET("/api/v1/payment/esewa/success", paymentHandler.EsewaSuccess).
			BindFunc(rateLimiter.PaymentRateLimit())
		e.Router.POST("/api/v1/payment/esewa/verify", paymentHandler.EsewaVerify).
			BindFunc(rateLimiter.PaymentRateLimit())
		e.Router.GET("/api/v1/payment/{paymentId}/status", paymentHandler.CheckPaymentStatus)

		// Ticket endpoints
		e.Router.POST("/api/v1/ticket", bookingHandler.BookTicket)
		e.Router.GET("/api/v1/ticket/booked", bookingHandler.ListBooked)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/payment-dashboard", adminHandler.GetPaymentDashboard)
		e.Router.POST("/api/v1/admin/recheck-payment", adminHandler.RecheckPayment)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
