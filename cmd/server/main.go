package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/stripe/stripe-go/v82"

	"turnero/internal/api"
	"turnero/internal/auth"
	"turnero/internal/conversation"
	"turnero/internal/repository"
	"turnero/internal/secrets"
	"turnero/internal/service"
	"turnero/internal/whatsapp"
)

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}

	codec, err := secrets.NewCodec(os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		log.Fatalf("Invalid ENCRYPTION_KEY: %v", err)
	}

	schedulingRepo := repository.NewSchedulingRepository(db)
	inboxRepo := repository.NewInboxRepository(db)
	messagingRepo := repository.NewMessagingRepository(db)
	adminAuthRepo := repository.NewAdminAuthRepository(db)

	var payments service.PaymentGateway
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		stripe.Key = key
		payments = service.NewStripeService()
	}

	availabilitySvc := service.NewAvailabilityService(schedulingRepo)
	bookingSvc := service.NewBookingService(schedulingRepo, payments)
	ingestSvc := service.NewIngestService(inboxRepo, messagingRepo, codec)
	adminAuthSvc := service.NewAdminAuthService(adminAuthRepo)

	reaper := service.NewHoldReaper(schedulingRepo)
	processor := service.NewInboxProcessor(
		inboxRepo, messagingRepo, schedulingRepo, codec,
		whatsapp.NewGraphClient(), conversation.NewScriptedResponder(), service.NewAlertService(),
	)
	if raw := os.Getenv("INBOX_BATCH_SIZE"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			processor.BatchSize = size
		}
	}

	// A slow cycle must not overlap the next tick; skipped ticks are cheap.
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddJob("@every "+envOr("REAPER_INTERVAL", "30s"), reaper); err != nil {
		log.Fatalf("Failed to schedule hold reaper: %v", err)
	}
	if _, err := scheduler.AddJob("@every "+envOr("INBOX_POLL_INTERVAL", "2s"), processor); err != nil {
		log.Fatalf("Failed to schedule inbox poller: %v", err)
	}
	scheduler.Start()

	webhookHandler := api.NewWebhookHandler(ingestSvc)
	availabilityHandler := api.NewAvailabilityHandler(availabilitySvc)
	bookingHandler := api.NewBookingHandler(bookingSvc)
	adminAuthHandler := api.NewAdminAuthHandler(adminAuthSvc)
	adminHandler := api.NewAdminHandler(bookingSvc, inboxRepo, messagingRepo)

	r := mux.NewRouter()

	// Provider webhook
	r.HandleFunc("/webhooks/whatsapp", webhookHandler.Verify).Methods("GET")
	r.HandleFunc("/webhooks/whatsapp", webhookHandler.Receive).Methods("POST")

	// Public booking endpoints
	r.HandleFunc("/api/availability", availabilityHandler.GetAvailability).Methods("POST")
	r.HandleFunc("/api/appointments", bookingHandler.CreateBooking).Methods("POST")
	r.HandleFunc("/api/appointments/hold", bookingHandler.CreateHold).Methods("POST")
	r.HandleFunc("/api/appointments/{id}", bookingHandler.GetAppointment).Methods("GET")
	r.HandleFunc("/api/appointments/{id}", bookingHandler.CancelBooking).Methods("DELETE")
	r.HandleFunc("/api/appointments/{id}/reschedule", bookingHandler.RescheduleBooking).Methods("POST")

	// Admin endpoints (protected)
	r.HandleFunc("/admin/login", adminAuthHandler.Login).Methods("POST")
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.AdminAuthMiddleware)
	admin.HandleFunc("/users", adminAuthHandler.CreateAdminUser).Methods("POST")
	admin.HandleFunc("/appointments", adminHandler.ListAppointments).Methods("GET")
	admin.HandleFunc("/inbox/poison", adminHandler.ListPoisonEvents).Methods("GET")
	admin.HandleFunc("/threads", adminHandler.ListThreads).Methods("GET")
	admin.HandleFunc("/threads/{id}/messages", adminHandler.ListThreadMessages).Methods("GET")
	admin.HandleFunc("/busy-blocks", adminHandler.ListBusyBlocks).Methods("GET")
	admin.HandleFunc("/busy-blocks", adminHandler.CreateBusyBlock).Methods("POST")
	admin.HandleFunc("/busy-blocks/{id}", adminHandler.DeleteBusyBlock).Methods("DELETE")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{envOr("CORS_ALLOWED_ORIGIN", "*")}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	srv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: handlers.LoggingHandler(os.Stdout, cors(r)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	cronCtx := scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	<-cronCtx.Done()
	db.Close()
}
