package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalbridge/src/auth"
	"signalbridge/src/connectors"
	"signalbridge/src/database"
	"signalbridge/src/dispatch"
	"signalbridge/src/executor"
	"signalbridge/src/handler"
	"signalbridge/src/registry"
	"signalbridge/src/repository"
	"signalbridge/src/security"
)

// App bundles the wired components the router and the CLI share.
type App struct {
	Strategies  registry.StrategyStore
	Subscribers registry.SubscriberStore
	Webhooks    registry.WebhookStore
	History     *registry.SignalHistory
	Dispatcher  *dispatch.Dispatcher
	Prices      executor.PriceSource
	Feed        *connectors.MarkPriceFeed
	Sealer      *security.Sealer
	AdminToken  string
}

// BuildApp assembles the registries (memory or gorm, per DB_DRIVER), the
// exchange client, the price feed and the dispatch pipeline.
func BuildApp() (*App, error) {
	cfg := GetConfig()
	secCfg := security.GetConfig()
	connCfg := connectors.GetConfig()
	dbCfg := database.GetConfig()

	sealer, err := security.NewSealer(secCfg.ExchangeCRKey)
	if err != nil {
		return nil, fmt.Errorf("init credential sealer: %w", err)
	}

	app := &App{
		History:    registry.NewSignalHistory(cfg.HistoryCapacity),
		Sealer:     sealer,
		AdminToken: secCfg.AdminToken,
	}

	if dbCfg.Driver == "memory" {
		app.Strategies = registry.NewMemoryStrategyStore()
		app.Subscribers = registry.NewMemorySubscriberStore()
		app.Webhooks = registry.NewMemoryWebhookStore()
	} else {
		app.Strategies = repository.NewStrategyRepository()
		app.Subscribers = repository.NewSubscriberRepository()
		app.Webhooks = repository.NewWebhookRepository()
	}

	client, err := connectors.NewGateClient(connCfg.GateAPIKey, connCfg.GateAPISecret, connCfg.GateBaseURL, connCfg.SignScheme)
	if err != nil {
		return nil, fmt.Errorf("init gate client: %w", err)
	}

	if cfg.EnableFeed {
		app.Feed = connectors.NewMarkPriceFeed(connCfg.GateWSURL, connCfg.FeedContracts)
	}
	app.Prices = &connectors.PriceOracle{Feed: app.Feed, Client: client, Settle: connCfg.Settle}

	exec := executor.New(
		logger.WithField("component", "executor"),
		app.Subscribers,
		app.Prices,
		sealer,
		executor.NewGateTraderFactory(connCfg),
		connCfg.Settle,
		cfg.DryRun,
	)

	app.Dispatcher = dispatch.NewDispatcher(
		logger.WithField("component", "dispatcher"),
		app.Strategies,
		app.Subscribers,
		app.Webhooks,
		app.History,
		exec,
	)

	return app, nil
}

// NewRouter wires the HTTP surface.
func NewRouter(app *App) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	// Inbound TradingView alerts.
	r.Post("/webhook", handler.WebhookHandler(app.Dispatcher))
	r.Post("/webhook/{secret}", handler.WebhookHandler(app.Dispatcher))

	// Subscriber surface, query-authenticated by uid+key.
	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", handler.RegisterUserHandler(app.Subscribers))
		r.Get("/status", handler.UserStatusHandler(app.Subscribers))
		r.Get("/signals", handler.UserSignalsHandler(app.Subscribers, app.History))
		r.Post("/auto-trading", handler.AutoTradingHandler(app.Subscribers))
		r.Post("/exchange", handler.ConnectExchangeHandler(app.Subscribers, app.Sealer))
		r.Post("/config", handler.TradeConfigHandler(app.Subscribers))
	})
	r.Get("/api/positions", handler.UserPositionsHandler(app.Subscribers, app.Prices))

	// Admin surface behind the x-admin-token gate.
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth.AdminOnly(app.AdminToken))
		r.Get("/overview", handler.AdminOverviewHandler(app.Strategies, app.Subscribers, app.Webhooks))
		r.Get("/signals", handler.AdminSignalsHandler(app.History))
		r.Get("/webhook", handler.AdminWebhookGetHandler(app.Webhooks))
		r.Post("/webhook", handler.AdminWebhookRotateHandler(app.Webhooks))
		r.Put("/webhook/routes", handler.AdminWebhookRoutesHandler(app.Webhooks, app.Strategies))
		r.Post("/users/approve", handler.AdminApproveUserHandler(app.Subscribers, app.Strategies))
		r.Post("/users/deny", handler.AdminDenyUserHandler(app.Subscribers))
		r.Patch("/users/{uid}/strategies", handler.AdminPatchUserStrategiesHandler(app.Subscribers, app.Strategies))
		r.Post("/strategies", handler.AdminCreateStrategyHandler(app.Strategies))
		r.Patch("/strategies/{id}", handler.AdminPatchStrategyHandler(app.Strategies))
	})

	return r
}

// StartServer runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully. The mark price feed runs alongside and stops with the server.
func StartServer(port string, app *App) {
	feedCtx, cancelFeed := context.WithCancel(context.Background())
	defer cancelFeed()
	if app.Feed != nil {
		go app.Feed.Run(feedCtx)
	}

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(app),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	cancelFeed()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
