package fetch

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"candle-stream/internal/config"
	"candle-stream/internal/market"
	"candle-stream/internal/metrics"
	"candle-stream/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	maxStderrBytes = 4 << 10
	// pipe drain allowance after the process is killed, for children that
	// inherited stdout/stderr
	waitDelay = time.Second
)

// Gateway runs the external market data command with a hard time bound.
// Each Fetch spawns one process; nothing is retried or cached.
type Gateway struct {
	command        []string
	dir            string
	processTimeout time.Duration
	log            *zap.Logger
	metrics        *metrics.Metrics
	tracer         *tracing.Tracer
}

type result struct {
	candles []market.Candle
	err     error
}

func New(cfg config.FetchConfig, log *zap.Logger, m *metrics.Metrics, tracer *tracing.Tracer) (*Gateway, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, errors.New("fetch command is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	processTimeout := cfg.ProcessTimeout
	if processTimeout <= 0 {
		processTimeout = 10 * time.Second
	}
	return &Gateway{
		command:        append([]string(nil), cfg.Command...),
		dir:            cfg.Dir,
		processTimeout: processTimeout,
		log:            log,
		metrics:        metrics.OrNoop(m),
		tracer:         tracer,
	}, nil
}

// Fetch runs the command once and returns its candles. The call returns
// within budget: ErrTimeout when it elapses, ctx.Err() when ctx ends first.
// In both cases the process is left to finish on its own timeout.
func (g *Gateway) Fetch(ctx context.Context, budget time.Duration) ([]market.Candle, error) {
	if budget <= 0 {
		budget = g.processTimeout
	}
	ctx, span := g.tracer.Start(ctx, "fetch.market_data", trace.WithAttributes(
		attribute.String("fetch.command", g.command[0]),
		attribute.Int64("fetch.budget_ms", budget.Milliseconds()),
	))
	defer span.End()

	start := time.Now()
	candles, err := g.await(ctx, budget)
	g.observe(span, candles, err, time.Since(start))
	return candles, err
}

func (g *Gateway) await(ctx context.Context, budget time.Duration) ([]market.Candle, error) {
	done := make(chan result, 1)
	go func() {
		done <- g.run()
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.candles, res.err
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) run() result {
	ctx, cancel := context.WithTimeout(context.Background(), g.processTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.command[0], g.command[1:]...)
	cmd.Dir = g.dir
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result{err: ErrTimeout}
	}
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return result{err: &ProcessError{ExitCode: exitCode, Stderr: stderrText(stderr.Bytes()), Err: err}}
	}
	candles, err := Decode(stdout.Bytes())
	if err != nil {
		return result{err: err}
	}
	return result{candles: candles}
}

func (g *Gateway) observe(span trace.Span, candles []market.Candle, err error, elapsed time.Duration) {
	kind := Kind(err)
	switch kind {
	case "ok":
		if len(candles) == 0 {
			g.metrics.FetchEmpty.Inc()
		} else {
			g.metrics.FetchSucceeded.Inc()
		}
	case "timeout":
		g.metrics.FetchTimedOut.Inc()
	case "process":
		g.metrics.FetchProcessFailed.Inc()
	case "decode":
		g.metrics.FetchDecodeFailed.Inc()
	}
	span.SetAttributes(
		attribute.String("fetch.outcome", kind),
		attribute.Int("fetch.candles", len(candles)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	g.log.Debug("fetch finished",
		zap.String("outcome", kind),
		zap.Int("candles", len(candles)),
		zap.Duration("elapsed", elapsed),
	)
}

func stderrText(b []byte) string {
	if len(b) > maxStderrBytes {
		b = b[:maxStderrBytes]
	}
	return strings.TrimSpace(string(bytes.ToValidUTF8(b, []byte("�"))))
}
