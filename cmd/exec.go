package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"eventpass/config"
	"eventpass/handlers"
	_ "eventpass/migrations"
	"eventpass/models"
	"eventpass/monitoring"
	"eventpass/security"
	"eventpass/services"
	"eventpass/utils"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(pubnub.GenerateUUID()))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	} else {
		slog.Warn("pubnub keys not set, realtime notifications disabled")
	}

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	capacityService := services.NewCapacityService(app)
	tokenService := services.NewTokenService(cfg)
	renderService := services.NewRenderService(cfg.BaseURL)
	notifyService := services.NewNotifyService(app, pn, renderService, cfg.BaseURL)
	eventService := services.NewEventService(app)
	requestService := services.NewRequestService(app, notifyService, cfg.MaxTicketsPerRequest)
	ticketService := services.NewTicketService(app, capacityService, tokenService, notifyService, cfg.EntryGracePeriod)

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(app, eventService)
	requestHandler := handlers.NewRequestHandler(app, requestService, ticketService, redisClient)
	ticketHandler := handlers.NewTicketHandler(app, ticketService, eventService, renderService)
	scanHandler := handlers.NewScanHandler(app, ticketService, security.NewScannerKeyGuard(cfg.ScannerKeyHash))

	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncActiveEventsToRedis(app, redisClient)

		if cfg.EnableMetrics {
			monitoring.NewMonitor(app, redisClient, cfg.MetricsInterval)
			go startMetricsServer(cfg.MetricsPort)
		}

		// Public catalog
		e.Router.GET("/api/v1/events", eventHandler.List)
		e.Router.GET("/api/v1/events/{eventId}", eventHandler.Get)

		// Public request submission, rate limited per IP
		e.Router.POST("/api/v1/events/{eventId}/requests", requestHandler.Submit).
			BindFunc(rateLimiter.PublicLimit(cfg.PublicRequestsPerMinute))
		e.Router.POST("/api/v1/requests/{requestId}/cancel", requestHandler.Cancel).
			BindFunc(rateLimiter.PublicLimit(cfg.PublicRequestsPerMinute))

		// Organizer event management
		e.Router.POST("/api/v1/events", eventHandler.Create)
		e.Router.PUT("/api/v1/events/{eventId}", eventHandler.Update)
		e.Router.POST("/api/v1/events/{eventId}/cancel", eventHandler.Cancel)
		e.Router.DELETE("/api/v1/events/{eventId}", eventHandler.Delete)
		e.Router.GET("/api/v1/my/events", eventHandler.ListMine)

		// Request arbitration
		e.Router.GET("/api/v1/events/{eventId}/requests", requestHandler.ListByEvent)
		e.Router.GET("/api/v1/requests/{requestId}", requestHandler.Get)
		e.Router.POST("/api/v1/requests/{requestId}/approve", requestHandler.Approve)
		e.Router.POST("/api/v1/requests/{requestId}/reject", requestHandler.Reject)
		e.Router.GET("/api/v1/my/requests", requestHandler.ListMine)
		e.Router.GET("/api/v1/my/dashboard", requestHandler.Dashboard)

		// Tickets
		e.Router.POST("/api/v1/events/{eventId}/purchase", ticketHandler.Purchase)
		e.Router.GET("/api/v1/events/{eventId}/tickets", ticketHandler.ListByEvent)
		e.Router.GET("/api/v1/my/tickets", ticketHandler.ListMine)
		e.Router.POST("/api/v1/tickets/{ticketId}/cancel", ticketHandler.Cancel)
		e.Router.GET("/api/v1/tickets/{ticketCode}/qr", ticketHandler.Qr)
		e.Router.GET("/api/v1/tickets/{ticketCode}/document", ticketHandler.Document)

		// Entry gate, rate limited per scanner
		e.Router.POST("/api/v1/scan", scanHandler.Validate).
			BindFunc(rateLimiter.ScanLimit(cfg.ScanRequestsPerMinute))
		e.Router.GET("/api/v1/scan/info", scanHandler.Info).
			BindFunc(rateLimiter.ScanLimit(cfg.ScanRequestsPerMinute))

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

		setupEventHooks(app, redisClient)

		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// startMetricsServer exposes prometheus metrics on a separate listener so the
// scrape endpoint never shares the public port.
func startMetricsServer(port string) {
	e := echo.New()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + port, Handler: e}
	slog.Info("metrics server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server stopped", "error", err)
	}
}

// syncActiveEventsToRedis rebuilds the active-events set on startup. The set
// feeds the availability gauges and survives restarts only approximately, so
// a full rebuild keeps it honest.
func syncActiveEventsToRedis(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT id FROM events WHERE status = {:status}",
	).Bind(dbx.Params{"status": models.EventStatusActive}).All(&records); err != nil {
		log.Printf("Error fetching active events: %v", err)
		return
	}

	redisClient.Del(ctx, "events:active")

	if len(records) > 0 {
		var eventIDs []interface{}
		for _, record := range records {
			if id := record["id"].String; id != "" {
				eventIDs = append(eventIDs, id)
			}
		}

		if len(eventIDs) > 0 {
			redisClient.SAdd(ctx, "events:active", eventIDs...)
			log.Printf("Synced %d active events to Redis", len(eventIDs))
		}
	}
}

// setupEventHooks keeps the redis active-events set in lockstep with event
// writes, regardless of whether they came through the API or the admin UI.
func setupEventHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	app.OnRecordAfterCreateSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()

		if e.Record.GetString("status") == models.EventStatusActive {
			if err := redisClient.SAdd(ctx, "events:active", e.Record.Id).Err(); err != nil {
				slog.Error("redis active-events add failed", "event_id", e.Record.Id, "error", err)
			}
		}
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()

		if e.Record.GetString("status") == models.EventStatusActive {
			if err := redisClient.SAdd(ctx, "events:active", e.Record.Id).Err(); err != nil {
				slog.Error("redis active-events add failed", "event_id", e.Record.Id, "error", err)
			}
		} else {
			if err := redisClient.SRem(ctx, "events:active", e.Record.Id).Err(); err != nil {
				slog.Error("redis active-events remove failed", "event_id", e.Record.Id, "error", err)
			}
		}
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()

		if err := redisClient.SRem(ctx, "events:active", e.Record.Id).Err(); err != nil {
			slog.Error("redis active-events remove failed", "event_id", e.Record.Id, "error", err)
		}
		return e.Next()
	})
}

func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
