package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"sentinel-server-go/internal/domain/eventbus"
	"sentinel-server-go/internal/domain/events"
	"sentinel-server-go/internal/domain/ratelimit"
	"sentinel-server-go/internal/platform/config"
	"sentinel-server-go/internal/platform/errors"
	"sentinel-server-go/internal/platform/logging"
	"sentinel-server-go/internal/platform/storage"
	"sentinel-server-go/internal/relay"
	httptransport "sentinel-server-go/internal/transport/http"
	"sentinel-server-go/internal/transport/ws"
)

const shutdownTimeout = 15 * time.Second

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      errors.Kind
	Execute   stepFn
}

type appState struct {
	config     *config.Config
	configPath string
	logger     *logging.Logger
	db         *gorm.DB
	eventRepo  *storage.EventRepository
	stateRepo  *storage.StateRepository
	bus        *eventbus.Bus
	relay      *relay.Client
	dispatcher *events.Logger
	rateStore  ratelimit.Store
	limiter    *ratelimit.Limiter
	wsService  *ws.Service
}

// Run drives the whole service lifecycle: init steps, server startup and
// graceful shutdown on SIGINT/SIGTERM.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}
	logger := state.logger

	defer func() {
		if state.rateStore != nil {
			_ = state.rateStore.Close(context.Background())
		}
		if state.bus != nil {
			state.bus.Close()
		}
		logger.Close()
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

// InitGraph declares the ordered initialisation steps and their dependencies.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    errors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init",
			Title:     "Initialise logging",
			DependsOn: []string{"config:load"},
			Kind:      errors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "storage:open",
			Title:     "Open storage",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      errors.KindStorage,
			Execute:   openStorageStep,
		},
		{
			ID:        "eventbus:start",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init"},
			Kind:      errors.KindBootstrap,
			Execute:   startEventBusStep,
		},
		{
			ID:        "relay:init",
			Title:     "Initialise relay client",
			DependsOn: []string{"config:load", "logging:init"},
			Kind:      errors.KindBootstrap,
			Execute:   initRelayStep,
		},
		{
			ID:        "events:init",
			Title:     "Initialise event dispatcher",
			DependsOn: []string{"storage:open", "eventbus:start", "relay:init"},
			Kind:      errors.KindBootstrap,
			Execute:   initDispatcherStep,
		},
		{
			ID:        "ratelimit:init",
			Title:     "Initialise rate limiter",
			DependsOn: []string{"events:init"},
			Kind:      errors.KindBootstrap,
			Execute:   initRateLimitStep,
		},
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return errors.New(errors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return errors.New(errors.KindBootstrap, step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return errors.New(errors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *errors.Error
			if stderrors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = errors.KindBootstrap
			}
			return errors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := config.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	logger, err := logging.New(logging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger

	source := state.configPath
	if source == "" {
		source = "defaults"
	}
	logger.InfoTag("Bootstrap", "logging ready [%s] config from %s", state.config.Log.Level, source)
	return nil
}

func openStorageStep(_ context.Context, state *appState) error {
	db, err := storage.Open(state.config.Storage.Dir, state.config.Storage.File)
	if err != nil {
		return err
	}
	state.db = db
	state.eventRepo = storage.NewEventRepository(db)
	state.stateRepo = storage.NewStateRepository(db)
	state.logger.InfoTag("Bootstrap", "storage ready at %s/%s",
		state.config.Storage.Dir, state.config.Storage.File)
	return nil
}

func startEventBusStep(_ context.Context, state *appState) error {
	state.bus = eventbus.New(0)
	return nil
}

func initRelayStep(_ context.Context, state *appState) error {
	state.relay = relay.NewClient(nil)

	if state.config.Relay.SecurityWebhookURL == "" {
		state.logger.WarnTag("Bootstrap",
			"SECURITY_WEBHOOK_URL not set, security events stay local")
	}
	if state.config.Relay.PaymentWebhookURL == "" {
		state.logger.WarnTag("Bootstrap",
			"PAYMENT_WEBHOOK_URL not set, payment receipts will be rejected")
	}
	return nil
}

func initDispatcherStep(_ context.Context, state *appState) error {
	state.dispatcher = events.NewLogger(events.Options{
		Logger:     state.logger,
		Events:     state.eventRepo,
		Bus:        state.bus,
		Relay:      state.relay,
		WebhookURL: state.config.Relay.SecurityWebhookURL,
		Username:   state.config.Relay.Username,
	})
	return nil
}

func initRateLimitStep(_ context.Context, state *appState) error {
	store, err := ratelimit.NewStore(state.config.RateLimit.Store)
	if err != nil {
		return err
	}
	state.rateStore = store
	state.limiter = ratelimit.NewLimiter(store,
		state.config.RateLimit.Limit, state.config.RateLimit.Window, state.dispatcher)
	state.logger.InfoTag("Bootstrap", "rate limiter ready: %d per %s (%s store)",
		state.config.RateLimit.Limit, state.config.RateLimit.Window,
		state.config.RateLimit.Store.Type)
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	cfg := state.config
	logger := state.logger

	router, err := httptransport.Build(httptransport.Options{
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	wsService, err := ws.NewService(ws.Dependencies{
		Config:  cfg,
		Logger:  logger,
		State:   state.stateRepo,
		Events:  state.dispatcher,
		Limiter: state.limiter,
	})
	if err != nil {
		return err
	}
	if err := wsService.Register(groupCtx, router.Engine); err != nil {
		return err
	}
	state.wsService = wsService

	relayService, err := httptransport.NewService(cfg, logger, state.relay, state.eventRepo, wsService.Hub().Count)
	if err != nil {
		return err
	}
	if err := relayService.Register(groupCtx, router.API); err != nil {
		return err
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not found"})
	})

	addr := cfg.Server.IP + ":" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", addr)
		logger.InfoTag("HTTP", "telemetry endpoint ws://%s%s", addr, ws.TelemetryPath)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			wsService.Hub().CloseAll()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *logging.Logger,
	g *errgroup.Group,
) error {
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	// a service failing at startup must end the process, not just its group
	select {
	case err := <-done:
		cancel()
		if err != nil {
			logger.ErrorTag("Bootstrap", "service failed: %v", err)
		}
		return err
	case <-ctx.Done():
	}

	logger.InfoTag("Bootstrap", "shutdown signal received, cleaning up")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Bootstrap", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("Bootstrap", "all services stopped")
	case <-time.After(shutdownTimeout):
		logger.ErrorTag("Bootstrap", "shutdown timed out, forcing exit")
		return errors.New(errors.KindBootstrap, "bootstrap.shutdown", "shutdown timed out")
	}
	return nil
}
