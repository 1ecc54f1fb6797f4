package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"candle-stream/internal/market"
	"candle-stream/internal/metrics"
	"candle-stream/internal/wire"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	ReasonSendFailed  = "send_failed"
	ReasonClientClose = "client_close"
	ReasonStreamEnd   = "stream_end"
	ReasonSocketError = "socket_error"
	ReasonShutdown    = "shutdown"
)

// Fetcher is the bounded-time market data source a session polls.
type Fetcher interface {
	Fetch(ctx context.Context, budget time.Duration) ([]market.Candle, error)
}

// Conn is the subset of *websocket.Conn a session drives.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type Options struct {
	ID             string
	RemoteAddr     string
	Codec          wire.Codec
	Timeout        time.Duration
	InitialTimeout time.Duration
	Interval       time.Duration
	WriteTimeout   time.Duration
	Log            *zap.Logger
	Metrics        *metrics.Metrics
}

// Summary describes a finished connection.
type Summary struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	Subprotocol   string    `json:"subprotocol"`
	OpenedAt      time.Time `json:"opened_at"`
	ClosedAt      time.Time `json:"closed_at"`
	Reason        string    `json:"reason"`
	Updates       int       `json:"updates"`
	FetchFailures int       `json:"fetch_failures"`
}

// Session supervises one client connection: ack, detached initial fetch,
// then periodic fetches raced against inbound frames until the socket goes
// away.
type Session struct {
	conn    Conn
	fetcher Fetcher
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics
	machine *StateMachine
}

type fetchResult struct {
	candles []market.Candle
	err     error
}

func NewSession(conn Conn, fetcher Fetcher, opts Options) *Session {
	if opts.Codec == nil {
		opts.Codec = wire.JSON{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialTimeout < opts.Timeout {
		opts.InitialTimeout = opts.Timeout
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		conn:    conn,
		fetcher: fetcher,
		opts:    opts,
		log:     log,
		metrics: metrics.OrNoop(opts.Metrics),
		machine: NewStateMachine(),
	}
}

func (s *Session) State() State {
	return s.machine.State()
}

// Run blocks until the connection is closed. Fetch errors never end it;
// only a failed send, socket closure or ctx cancellation do.
func (s *Session) Run(ctx context.Context) Summary {
	summary := Summary{
		ID:          s.opts.ID,
		RemoteAddr:  s.opts.RemoteAddr,
		Subprotocol: s.opts.Codec.Name(),
		OpenedAt:    time.Now().UTC(),
	}
	s.metrics.ConnectionsOpened.Inc()
	s.metrics.ActiveConnections.Inc()
	s.log.Info("connection opened", zap.String("subprotocol", summary.Subprotocol))

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reason := s.loop(ctx, sessionCtx, cancel, &summary)

	s.machine.Apply(EventClosed)
	if err := s.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		s.log.Debug("close after session end", zap.Error(err))
	}
	summary.Reason = reason
	summary.ClosedAt = time.Now().UTC()
	s.metrics.ActiveConnections.Dec()
	s.metrics.ConnectionsClosed.Inc()
	s.log.Info("connection closed",
		zap.String("reason", reason),
		zap.Int("updates", summary.Updates),
		zap.Int("fetch_failures", summary.FetchFailures),
		zap.Duration("duration", summary.ClosedAt.Sub(summary.OpenedAt)),
	)
	return summary
}

func (s *Session) loop(parent, ctx context.Context, cancel context.CancelFunc, summary *Summary) string {
	if err := s.send(ctx, market.EmptyUpdate()); err != nil {
		s.log.Warn("ack send failed", zap.Error(err))
		return ReasonSendFailed
	}
	summary.Updates++
	s.machine.Apply(EventAcked)

	// The initial fetch outlives the session; a late result lands in the
	// buffered channel and is dropped.
	initial := make(chan fetchResult, 1)
	go func() {
		candles, err := s.fetcher.Fetch(context.WithoutCancel(ctx), s.opts.InitialTimeout)
		initial <- fetchResult{candles: candles, err: err}
	}()

	readErr := make(chan error, 1)
	go s.readLoop(ctx, cancel, readErr)

	var tick <-chan time.Time
	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-parent.Done():
			return ReasonShutdown
		case res := <-initial:
			initial = nil
			if !s.handleFetch(ctx, "initial", res.candles, res.err, summary) {
				return ReasonSendFailed
			}
			if s.machine.Apply(EventInitialSettled) == StateStreaming {
				ticker = time.NewTicker(s.opts.Interval)
				tick = ticker.C
				s.log.Debug("streaming", zap.Duration("interval", s.opts.Interval))
			}
		case <-tick:
			candles, err := s.fetcher.Fetch(ctx, s.opts.Timeout)
			if ctx.Err() != nil {
				continue
			}
			if !s.handleFetch(ctx, "periodic", candles, err, summary) {
				return ReasonSendFailed
			}
		case err := <-readErr:
			if parent.Err() != nil {
				return ReasonShutdown
			}
			reason := closeReason(err)
			s.logClose(reason, err)
			return reason
		}
	}
}

// handleFetch sends non-empty results and logs the rest. It reports false
// only when the send failed. Nothing is sent once the socket is gone.
func (s *Session) handleFetch(ctx context.Context, kind string, candles []market.Candle, err error, summary *Summary) bool {
	if ctx.Err() != nil {
		s.log.Debug("discarding fetch result after close", zap.String("fetch", kind))
		return true
	}
	if err != nil {
		summary.FetchFailures++
		s.log.Warn("fetch failed", zap.String("fetch", kind), zap.Error(err))
		return true
	}
	if len(candles) == 0 {
		// Empty periodic results are not pushed; clients keep their last
		// known candles.
		s.log.Info("fetch returned no candles", zap.String("fetch", kind))
		return true
	}
	if sendErr := s.send(ctx, market.NewPriceUpdate(candles)); sendErr != nil {
		s.log.Warn("update send failed", zap.String("fetch", kind), zap.Error(sendErr))
		return false
	}
	summary.Updates++
	return true
}

func (s *Session) send(ctx context.Context, update market.PriceUpdate) error {
	data, err := s.opts.Codec.Encode(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := s.conn.Write(writeCtx, s.opts.Codec.MessageType(), data); err != nil {
		s.metrics.SendFailed.Inc()
		return err
	}
	s.metrics.UpdatesSent.Inc()
	return nil
}

// readLoop keeps a Read outstanding for the whole session so pings are
// answered and closes noticed even while the main loop awaits a fetch. Data
// frames are dropped here. The first read error cancels the session context
// before it is reported.
func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc, readErr chan<- error) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			cancel()
			readErr <- err
			return
		}
		s.log.Debug("ignoring client frame", zap.Int("type", int(typ)), zap.Int("bytes", len(data)))
	}
}

func (s *Session) logClose(reason string, err error) {
	switch reason {
	case ReasonClientClose:
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			s.log.Info("client closed connection", zap.Int("status", int(closeErr.Code)), zap.String("close_reason", closeErr.Reason))
			return
		}
		s.log.Info("client closed connection")
	case ReasonStreamEnd:
		s.log.Info("client stream ended")
	default:
		s.log.Warn("socket error", zap.Error(err))
	}
}

func closeReason(err error) string {
	if websocket.CloseStatus(err) != -1 {
		return ReasonClientClose
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ReasonStreamEnd
	}
	return ReasonSocketError
}
