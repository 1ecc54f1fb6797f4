package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"candle-stream/internal/config"
	"candle-stream/internal/fetch"
	"candle-stream/internal/metrics"
	"candle-stream/internal/server"
	"candle-stream/internal/state"
	"candle-stream/internal/state/sqlite"
	"candle-stream/internal/tracing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	store   state.Store
	tracer  *tracing.Tracer
	prom    *metrics.Prometheus
	metrics *metrics.Metrics
	gateway *fetch.Gateway
	server  *server.Server
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tracer, err := tracing.New(cfg.Trace)
	if err != nil {
		return nil, err
	}
	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	gateway, err := fetch.New(cfg.Fetch, log.Named("fetch"), m, tracer)
	if err != nil {
		return nil, err
	}
	var store state.Store
	if cfg.State.Enabled {
		sqliteStore, err := sqlite.New(cfg.State.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = sqliteStore
	}
	return &App{
		cfg:     cfg,
		log:     log,
		store:   store,
		tracer:  tracer,
		prom:    prom,
		metrics: m,
		gateway: gateway,
		server:  server.New(cfg, gateway, store, log.Named("stream"), m),
	}, nil
}

// Run serves until ctx is cancelled, then drains HTTP servers and open
// sessions within the shutdown budget.
func (a *App) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.cfg.Server.Address)
	if err != nil {
		a.close()
		return err
	}
	return a.serve(ctx, listener)
}

func (a *App) serve(ctx context.Context, listener net.Listener) error {
	defer a.close()

	servers := []*http.Server{a.httpServer(ctx, a.server.Handler())}
	listeners := []net.Listener{listener}
	if a.prom != nil {
		metricsListener, err := net.Listen("tcp", a.cfg.Metrics.Address)
		if err != nil {
			_ = listener.Close()
			return err
		}
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
		servers = append(servers, a.httpServer(ctx, mux))
		listeners = append(listeners, metricsListener)
		a.log.Info("metrics listening", zap.String("address", metricsListener.Addr().String()), zap.String("path", a.cfg.Metrics.Path))
	}
	a.log.Info("websocket server listening",
		zap.String("address", listener.Addr().String()),
		zap.String("path", a.cfg.Server.Path),
		zap.Strings("fetch_command", a.cfg.Fetch.Command),
		zap.Duration("fetch_interval", a.cfg.Fetch.Interval),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	for i := range servers {
		srv, ln := servers[i], listeners[i]
		group.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := a.server.Wait(shutdownCtx); err != nil {
			a.log.Warn("sessions still open at shutdown", zap.Error(err))
		}
		return errors.Join(errs...)
	})

	err := group.Wait()
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// httpServer ties request contexts to ctx so hijacked websocket sessions
// see shutdown.
func (a *App) httpServer(ctx context.Context, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func (a *App) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tracer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("tracer shutdown failed", zap.Error(err))
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("state store close failed", zap.Error(err))
		}
	}
}
