package market

// Candle is one OHLCV sample as produced by the external fetch command.
// OHLC ordering is not validated.
type Candle struct {
	Timestamp uint64  `json:"timestamp" msgpack:"timestamp"`
	Open      float64 `json:"open" msgpack:"open"`
	High      float64 `json:"high" msgpack:"high"`
	Low       float64 `json:"low" msgpack:"low"`
	Close     float64 `json:"close" msgpack:"close"`
	Volume    float64 `json:"volume" msgpack:"volume"`
}

// PriceUpdate is the envelope pushed to clients. An empty Candles slice is
// a valid message: it acknowledges a connection or signals no fresh data.
type PriceUpdate struct {
	Candles []Candle `json:"candles" msgpack:"candles"`
}

// NewPriceUpdate never returns a nil Candles slice, so the wire form is
// always an array.
func NewPriceUpdate(candles []Candle) PriceUpdate {
	if candles == nil {
		candles = []Candle{}
	}
	return PriceUpdate{Candles: candles}
}

// EmptyUpdate is the ack placeholder sent on connect.
func EmptyUpdate() PriceUpdate {
	return NewPriceUpdate(nil)
}
