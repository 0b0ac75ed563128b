// main.go - The entry point and router setup.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oritmalki/bizmanager/configs"
	"github.com/oritmalki/bizmanager/internal/ai"
	"github.com/oritmalki/bizmanager/internal/api"
	"github.com/oritmalki/bizmanager/internal/enrich"
	"github.com/oritmalki/bizmanager/internal/notify"
	"github.com/oritmalki/bizmanager/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()

	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Initialize MongoDB connection
	if err := storage.InitMongoDB(); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer storage.CloseMongoDB()

	// Step 2: Wire the enrichment pipeline
	client := ai.NewGeminiClient(configs.GEMINI_API_KEY, configs.GEMINI_API_BASE)
	router := ai.NewModelRouter(client, configs.MODEL_CANDIDATES,
		time.Duration(configs.MODEL_CACHE_TTL_MINUTES)*time.Minute,
		time.Duration(configs.AI_CALL_TIMEOUT)*time.Second,
		time.Duration(configs.MODEL_LIST_TIMEOUT)*time.Second,
	)
	extractor := ai.NewExtractor(router, configs.GEMINI_API_KEY != "")

	dispatcher := notify.NewDispatcher(configs.WEBHOOK_URL,
		time.Duration(configs.WEBHOOK_TIMEOUT)*time.Second,
		func(payloadType string, result notify.Result, subject, fileName string) {
			storage.RecordNotificationAttempt(storage.NotificationLogEntry{
				Type:     payloadType,
				Success:  result.Success,
				Error:    result.Error,
				Subject:  subject,
				FileName: fileName,
			})
		},
	)

	maxImageDim := configs.MAX_IMAGE_DIMENSION
	if !configs.ENABLE_IMAGE_PREPROCESSING {
		maxImageDim = 0 // PrepareReceipt passes payloads through untouched
	}
	reconciler := enrich.NewReconciler(extractor, storage.PaymentStore{}, dispatcher,
		configs.ENRICH_QUEUE_SIZE, maxImageDim)
	reconciler.Start(configs.ENRICH_WORKERS)

	// Step 3: Initialize the Gin router
	engine := gin.Default()

	// CORS middleware - configure allowed origins for production
	engine.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", configs.ALLOWED_ORIGINS)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	engine.GET("/", func(c *gin.Context) {
		c.String(200, "ok")
	})

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":             "ok",
			"service":            "bizmanager",
			"enrichment_enabled": extractor.Enabled(),
			"webhook_configured": dispatcher.Configured(),
		})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Step 4: Define the API routes
	handler := api.NewHandler(storage.PaymentStore{}, reconciler)
	engine.POST("/api/v1/payments", handler.CreatePayment)
	engine.GET("/api/v1/payments/:id", handler.GetPayment)
	engine.PUT("/api/v1/payments/:id", handler.UpdatePayment)

	// Step 5: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        engine,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Starting server on :%s", configs.PORT)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown: stop taking requests, then drain the enrichment
	// queue. A hard kill drops whatever is still queued.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	reconciler.Stop()
	log.Println("Server exited")
}
