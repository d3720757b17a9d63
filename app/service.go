package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/fleetcmd/api/commands"
	"github.com/kilianp07/fleetcmd/api/history"
	"github.com/kilianp07/fleetcmd/api/vehicles"
	"github.com/kilianp07/fleetcmd/config"
	"github.com/kilianp07/fleetcmd/core/dispatch"
	"github.com/kilianp07/fleetcmd/core/events"
	"github.com/kilianp07/fleetcmd/core/journal"
	coremetrics "github.com/kilianp07/fleetcmd/core/metrics"
	coremon "github.com/kilianp07/fleetcmd/core/monitoring"
	"github.com/kilianp07/fleetcmd/core/registry"
	"github.com/kilianp07/fleetcmd/core/token"
	"github.com/kilianp07/fleetcmd/infra/logger"
	"github.com/kilianp07/fleetcmd/infra/metrics"
	"github.com/kilianp07/fleetcmd/infra/monitoring"
	"github.com/kilianp07/fleetcmd/infra/mqtt"
	"github.com/kilianp07/fleetcmd/infra/ws"
	"github.com/kilianp07/fleetcmd/internal/eventbus"
)

const eventBuffer = 256

// Service wires the coordinator: token authority, dispatcher, vehicle hub
// and the HTTP surface, plus the optional journal and MQTT mirror.
type Service struct {
	Authority  *token.Authority
	Dispatcher *dispatch.Dispatcher
	Hub        *ws.Hub

	cfg     *config.Config
	router  chi.Router
	bus     *eventbus.TypedBus[events.CommandEvent]
	sink    coremetrics.MetricsSink
	journal journal.Journal
	mirror  *mqtt.Mirror
	subs    []<-chan events.CommandEvent
	log     logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)

	auth, err := token.NewAuthority(cfg.Auth.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("token authority: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	bus := eventbus.NewTyped[events.CommandEvent](eventBuffer)
	d, err := dispatch.NewDispatcher(auth, registry.New(), bus, sink, logger.New("dispatcher"))
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	d.SetSendTimeout(cfg.Dispatch.SendTimeout())

	svc := &Service{
		Authority:  auth,
		Dispatcher: d,
		cfg:        cfg,
		bus:        bus,
		sink:       sink,
		log:        logg,
	}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		svc.journal = j
	}
	if cfg.MQTT.Enabled {
		m, err := mqtt.NewMirror(cfg.MQTT, logger.New("mqtt_mirror"))
		if err != nil {
			svc.closeJournal()
			return nil, fmt.Errorf("mqtt mirror: %w", err)
		}
		svc.mirror = m
	}

	svc.Hub = ws.NewHub(d, ws.Options{
		SendQueue: cfg.Server.SendQueue,
		PongWait:  cfg.Server.PongWait(),
	}, logger.New("ws"))
	svc.router = svc.routes()
	return svc, nil
}

func (s *Service) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	commands.Routes(r, s.Dispatcher)
	r.Method(http.MethodGet, "/vehicles", vehicles.NewListHandler(s.Dispatcher))
	if s.journal != nil {
		r.Method(http.MethodGet, "/commands/log", history.NewLogHandler(s.journal, s.Authority))
	}
	r.Handle(s.cfg.Server.WSPath, s.Hub)
	return r
}

// Handler returns the HTTP surface: command endpoints, vehicle listing,
// journal queries and the vehicle WebSocket.
func (s *Service) Handler() http.Handler { return s.router }

// Start launches the background workers: journal recorder, MQTT mirror,
// expiry sweeper and the Prometheus listener. They stop with ctx.
func (s *Service) Start(ctx context.Context) {
	if s.journal != nil {
		ch := s.subscribe()
		coremon.Go("journal", func() { journal.Record(ctx, s.journal, ch, logger.New("journal")) })
	}
	if s.mirror != nil {
		ch := s.subscribe()
		coremon.Go("mqtt_mirror", func() { s.mirror.Run(ctx, ch) })
	}
	if interval := s.cfg.Dispatch.SweepInterval(); interval > 0 {
		coremon.Go("sweeper", func() { s.Dispatcher.RunSweeper(ctx, interval) })
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		coremon.Go("prom_server", func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
				coremon.CaptureException(err, map[string]string{"component": "prom_server"})
			}
		})
	}
}

func (s *Service) subscribe() <-chan events.CommandEvent {
	ch := s.bus.Subscribe()
	s.subs = append(s.subs, ch)
	return ch
}

// Run starts the workers and serves HTTP until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)
	srv := &http.Server{
		Addr:              s.cfg.Server.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("coordinator listening on %s", s.cfg.Server.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	// hijacked websocket connections are not tracked by Shutdown
	s.Hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Hub.Close()
	// closing the subscriptions stops the journal and mirror workers
	for _, ch := range s.subs {
		s.bus.Unsubscribe(ch)
	}
	s.subs = nil
	s.bus.Close()
	if s.mirror != nil {
		s.mirror.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return s.closeJournal()
}

func (s *Service) closeJournal() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}
