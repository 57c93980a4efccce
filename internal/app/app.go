// Package app wires hibernaut's components together: it builds the site
// registry from config, boots the wake coordinator and hibernation loop,
// and serves both the intercepting front proxy and the dashboard JSON API
// on a single listener, per SPEC_FULL.md's package map.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hibernaut/hibernaut/internal/classifier"
	"github.com/hibernaut/hibernaut/internal/clock"
	"github.com/hibernaut/hibernaut/internal/config"
	"github.com/hibernaut/hibernaut/internal/frontproxy"
	"github.com/hibernaut/hibernaut/internal/hibernation"
	"github.com/hibernaut/hibernaut/internal/history"
	"github.com/hibernaut/hibernaut/internal/logger"
	"github.com/hibernaut/hibernaut/internal/logtail"
	"github.com/hibernaut/hibernaut/internal/prober"
	"github.com/hibernaut/hibernaut/internal/proxyconfig"
	"github.com/hibernaut/hibernaut/internal/router"
	"github.com/hibernaut/hibernaut/internal/security"
	"github.com/hibernaut/hibernaut/internal/site"
	"github.com/hibernaut/hibernaut/internal/svcmgr"
)

// Application owns hibernaut's lifecycle: boot-time reconciliation,
// the hibernation sweep, and the HTTP listener serving both the front
// proxy and the dashboard API.
type Application struct {
	config *config.Config
	log    *logger.StyledLogger
	clock  clock.Clock

	registry    *site.Registry
	coordinator *site.Coordinator
	history     *history.Sink
	hibernation *hibernation.Loop
	security    *security.Services

	server *http.Server

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New builds an Application from cfg. It constructs every site Runtime,
// wires the coordinator's collaborators (service manager, proxy
// switcher, TCP prober, history sink), and registers the dashboard API
// routes — but does not yet start anything; call Start for that.
func New(cfg *config.Config, log *logger.StyledLogger) (*Application, error) {
	sites, err := cfg.Sites()
	if err != nil {
		return nil, fmt.Errorf("app: building sites: %w", err)
	}

	registry := site.NewRegistry()
	for _, s := range sites {
		if err := registry.Add(site.NewRuntime(s)); err != nil {
			return nil, fmt.Errorf("app: registering site %q: %w", s.Name, err)
		}
	}

	slogLog := log.GetUnderlying()
	historySink := history.New(history.DefaultCapacity)

	services := svcmgr.New(cfg.ServiceManager.Binary, slogLog, svcmgr.WithArgs(serviceManagerArgOrder(cfg.ServiceManager.ArgOrder)))
	switcher := proxyconfig.New(slogLog,
		proxyconfig.WithValidateCmd(cfg.ReverseProxy.ValidateCmd),
		proxyconfig.WithReloadCmd(cfg.ReverseProxy.ReloadCmd),
	)
	tcpProber := prober.New(slogLog)

	coordinator := site.NewCoordinator(services, switcher, tcpProber, historySink, clock.Default, slogLog)
	hibernationLoop := hibernation.New(registry, coordinator, logtail.New(), cfg.HibernationCheckInterval(), slogLog)

	securityServices := security.NewServices(cfg, log)

	cl := classifier.New(registry)
	front := frontproxy.New(cl, coordinator, historySink, slogLog)

	mux := http.NewServeMux()
	routes := router.NewRouteRegistry(log)

	a := &Application{
		config:      cfg,
		log:         log,
		clock:       clock.Default,
		registry:    registry,
		coordinator: coordinator,
		history:     historySink,
		hibernation: hibernationLoop,
		security:    securityServices,
	}

	routes.Register("GET /hibernator-api/health", a.handleHealth, "dashboard health check")
	routes.Register("GET /hibernator-api/services", a.handleServices, "list every configured site and its runtime state")
	routes.Register("GET /hibernator-api/services/{name}/config", a.handleServiceConfig, "a site's effective configuration")
	routes.Register("GET /hibernator-api/services/{name}/metrics", a.handleServiceMetrics, "uptime/hibernation/ETA metrics for a site")
	routes.Register("GET /hibernator-api/history", a.handleHistory, "recent request history")
	routes.Register("GET /hibernator-api/state-history", a.handleStateHistory, "recent state-transition history")
	routes.WireUp(mux, a.security.CreateMiddleware())

	// Everything not matched by a dashboard route falls through to the
	// front proxy, which classifies the request by Host header per
	// spec.md §4.H.
	mux.Handle("/", front)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HibernatorPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func serviceManagerArgOrder(mode string) func(op, unit string) []string {
	if mode == "unit-verb" {
		return func(op, unit string) []string { return []string{unit, op} }
	}
	return func(op, unit string) []string { return []string{op, unit} }
}

// Start reconciles every site's boot-time state, then launches the
// hibernation loop and HTTP listener. It returns once both are running;
// call Stop (or cancel ctx) to shut them down.
func (a *Application) Start(ctx context.Context) error {
	for _, rt := range a.registry.All() {
		reconcileCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.coordinator.Reconcile(reconcileCtx, rt)
		cancel()
		if err != nil {
			a.log.Warn("app: boot-time reconcile failed", "site", rt.Site.Name, "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	a.group = group

	group.Go(func() error {
		a.hibernation.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		a.log.InfoWithCount("app: dashboard and front proxy listening", a.config.HibernatorPort)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	return nil
}

// Stop gracefully shuts down the HTTP server and signals the hibernation
// loop to exit, waiting for both.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(shutdownCtx)

	if a.cancel != nil {
		a.cancel()
	}
	var groupErr error
	if a.group != nil {
		groupErr = a.group.Wait()
	}

	a.security.Stop()
	a.history.Shutdown()

	if shutdownErr != nil {
		return fmt.Errorf("app: http server shutdown: %w", shutdownErr)
	}
	return groupErr
}
