package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"candle-stream/internal/config"
	"candle-stream/internal/metrics"
	"candle-stream/internal/state"
	"candle-stream/internal/stream"
	"candle-stream/internal/wire"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const journalTimeout = 5 * time.Second

// Server upgrades clients to websockets and runs one stream.Session per
// connection. Sessions share nothing but the fetcher.
type Server struct {
	server  config.ServerConfig
	fetch   config.FetchConfig
	fetcher stream.Fetcher
	store   state.Store
	log     *zap.Logger
	metrics *metrics.Metrics

	sessions sync.WaitGroup
}

func New(cfg *config.Config, fetcher stream.Fetcher, store state.Store, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		server:  cfg.Server,
		fetch:   cfg.Fetch,
		fetcher: fetcher,
		store:   store,
		log:     log,
		metrics: metrics.OrNoop(m),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.server.Path, s.ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.store != nil {
		mux.HandleFunc("GET /sessions", s.listSessions)
		mux.HandleFunc("GET /sessions/{id}", s.getSession)
	}
	return withCORS(mux)
}

// ServeWS accepts any origin. Clients may negotiate candles.msgpack; the
// default is JSON text frames.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		Subprotocols:       wire.Subprotocols(),
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	if s.server.ReadLimit > 0 {
		conn.SetReadLimit(s.server.ReadLimit)
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	id := uuid.NewString()
	session := stream.NewSession(conn, s.fetcher, stream.Options{
		ID:             id,
		RemoteAddr:     r.RemoteAddr,
		Codec:          wire.ForSubprotocol(conn.Subprotocol()),
		Timeout:        s.fetch.Timeout,
		InitialTimeout: s.fetch.InitialTimeout,
		Interval:       s.fetch.Interval,
		WriteTimeout:   s.server.WriteTimeout,
		Log:            s.log.With(zap.String("conn_id", id), zap.String("remote", r.RemoteAddr)),
		Metrics:        s.metrics,
	})
	summary := session.Run(r.Context())
	s.journal(summary)
}

// Wait blocks until every running session has returned or ctx ends.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) journal(summary stream.Summary) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	record := state.SessionRecord{
		ID:            summary.ID,
		RemoteAddr:    summary.RemoteAddr,
		Subprotocol:   summary.Subprotocol,
		OpenedAt:      summary.OpenedAt,
		ClosedAt:      summary.ClosedAt,
		Reason:        summary.Reason,
		Updates:       summary.Updates,
		FetchFailures: summary.FetchFailures,
	}
	if err := state.SaveSession(ctx, s.store, record); err != nil {
		s.log.Warn("session journal write failed", zap.String("conn_id", summary.ID), zap.Error(err))
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := state.ListSessions(r.Context(), s.store)
	if err != nil {
		s.log.Warn("session list failed", zap.Error(err))
		http.Error(w, "session journal unavailable", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	record, ok, err := state.LoadSession(r.Context(), s.store, r.PathValue("id"))
	if err != nil {
		s.log.Warn("session load failed", zap.Error(err))
		http.Error(w, "session journal unavailable", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
