package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/fiberzerolog"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/RuntimeErrorGr/Serverless-HostScanner/db"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/kvb"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/orchestrator"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/scanner"
	"github.com/RuntimeErrorGr/Serverless-HostScanner/pkg/watcher"
)

// StartServer wires every collaborator (storage, bus, scanner client,
// orchestrator, watcher) and starts the Fiber app — generalized from the
// teacher's StartAPI, which wires its scan engine and interactions manager
// the same way before calling app.Listen.
func StartServer() {
	apiLogger := log.With().Str("type", "api").Logger()
	apiLogger.Info().Msg("Initializing...")

	database := db.Connection()

	bus := kvb.New(kvb.Config{
		Addr:        viper.GetString("kvb.addr"),
		Password:    viper.GetString("kvb.password"),
		DB:          viper.GetInt("kvb.db"),
		OutputTTL:   viper.GetDuration("kvb.output_ttl"),
		ProgressTTL: viper.GetDuration("kvb.progress_ttl"),
	})

	scannerClient := scanner.New(scanner.Config{
		BaseURL:        viper.GetString("scanner.base_url"),
		CallbackURL:    viper.GetString("scanner.callback_base_url") + "/api/v1/scans/hook",
		ConnectTimeout: viper.GetDuration("scanner.connect_timeout"),
	})

	watchInstance := watcher.New(
		database,
		bus,
		viper.GetDuration("watcher.subscribe_timeout"),
		viper.GetDuration("watcher.inactivity_timeout"),
	)
	watchFunc := func(scanID uuid.UUID) {
		watchInstance.Watch(context.Background(), scanID)
	}

	orch := orchestrator.New(database, bus, scannerClient, watchFunc)

	scanHandlers := NewScanHandlers(database, bus, orch)
	scanStream := NewScanStreamHandler(database, bus)
	listStream := NewScanListStreamHandler(database, bus)

	apiLogger.Info().Msg("Initialized everything. Starting the API...")

	app := fiber.New(fiber.Config{
		ServerHeader: "ReconCtl",
		AppName:      "ReconCtl API",
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(viper.GetStringSlice("api.cors.origins"), ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders: "Content-Disposition",
	}))

	app.Use(fiberzerolog.New(fiberzerolog.Config{
		Logger: &apiLogger,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("API Running")
	})

	if viper.GetBool("api.metrics.enabled") {
		app.Get(fmt.Sprintf("%v/*", viper.GetString("api.metrics.path")), monitor.New(monitor.Config{Title: "ReconCtl Metrics"}))
	}

	v1 := app.Group("/api/v1")

	scans := v1.Group("/scans", JWTProtected(), ResolveUser(database))
	scans.Post("/start", scanHandlers.StartScan)
	scans.Get("/", scanHandlers.ListScans)
	scans.Post("/bulk-delete", scanHandlers.BulkDeleteScans)
	scans.Get("/:uuid", scanHandlers.GetScan)
	scans.Get("/:uuid/status", scanHandlers.GetScanStatus)
	scans.Get("/:uuid/findings", scanHandlers.GetFindings)
	scans.Delete("/:uuid", scanHandlers.DeleteScan)
	scans.Post("/:uuid/report", scanHandlers.CreateReport)

	// The webhook is the external scanner's callback — unauthenticated,
	// rate-limited instead (§6.1/§6.4).
	hook := v1.Group("/scans")
	hook.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        30 * time.Second,
		LimiterMiddleware: limiter.SlidingWindow{},
	}))
	hook.Post("/hook", scanHandlers.Webhook)

	// Both WS routes carry the same bearer-token + ownership requirement as
	// the REST routes above (§4.4, §6.1's authorization note) — only the
	// token's source differs, since a browser WebSocket client cannot set
	// an Authorization header on the handshake (see JWTProtectedWS).
	v1.Get("/scans/ws/:uuid", JWTProtectedWS(), ResolveUser(database), scanStream.Upgrade, websocket.New(scanStream.Stream))
	v1.Get("/scans/ws", JWTProtectedWS(), ResolveUser(database), websocket.New(listStream.Stream))

	listenAddress := fmt.Sprintf("%v:%v", viper.Get("api.listen.host"), viper.Get("api.listen.port"))
	if err := app.Listen(listenAddress); err != nil {
		apiLogger.Warn().Err(err).Msg("Error starting server")
	}
}
