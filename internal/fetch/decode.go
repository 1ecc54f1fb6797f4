package fetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"candle-stream/internal/market"
)

// wireCandle mirrors market.Candle with pointer fields so absent keys can be
// told apart from zero values.
type wireCandle struct {
	Timestamp *uint64  `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
	Volume    *float64 `json:"volume"`
}

func (w wireCandle) candle() (market.Candle, error) {
	switch {
	case w.Timestamp == nil:
		return market.Candle{}, errors.New("missing field timestamp")
	case w.Open == nil:
		return market.Candle{}, errors.New("missing field open")
	case w.High == nil:
		return market.Candle{}, errors.New("missing field high")
	case w.Low == nil:
		return market.Candle{}, errors.New("missing field low")
	case w.Close == nil:
		return market.Candle{}, errors.New("missing field close")
	case w.Volume == nil:
		return market.Candle{}, errors.New("missing field volume")
	}
	return market.Candle{
		Timestamp: *w.Timestamp,
		Open:      *w.Open,
		High:      *w.High,
		Low:       *w.Low,
		Close:     *w.Close,
		Volume:    *w.Volume,
	}, nil
}

// Decode parses the fetch command's stdout: a JSON array of candle objects.
// Unknown keys are ignored; every candle field is required.
func Decode(data []byte) ([]market.Candle, error) {
	if !utf8.Valid(data) {
		return nil, &DecodeError{Err: errors.New("output is not valid UTF-8")}
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Err: errors.New("output is empty")}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var raw []wireCandle
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if raw == nil {
		return nil, &DecodeError{Err: errors.New("output is null")}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DecodeError{Err: errors.New("trailing data after candle array")}
	}
	candles := make([]market.Candle, 0, len(raw))
	for i, w := range raw {
		c, err := w.candle()
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("candle %d: %w", i, err)}
		}
		candles = append(candles, c)
	}
	return candles, nil
}
