package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Inc()
	Dec()
}

type Metrics struct {
	ConnectionsOpened  Counter
	ConnectionsClosed  Counter
	ActiveConnections  Gauge
	FetchSucceeded     Counter
	FetchEmpty         Counter
	FetchTimedOut      Counter
	FetchProcessFailed Counter
	FetchDecodeFailed  Counter
	UpdatesSent        Counter
	SendFailed         Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Inc() {}
func (noopGauge) Dec() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		ConnectionsOpened:  n,
		ConnectionsClosed:  n,
		ActiveConnections:  noopGauge{},
		FetchSucceeded:     n,
		FetchEmpty:         n,
		FetchTimedOut:      n,
		FetchProcessFailed: n,
		FetchDecodeFailed:  n,
		UpdatesSent:        n,
		SendFailed:         n,
	}
}

// OrNoop lets components accept a nil *Metrics.
func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
