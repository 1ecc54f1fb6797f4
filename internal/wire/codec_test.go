package wire

import (
	"encoding/json"
	"testing"

	"candle-stream/internal/market"

	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"
)

func TestJSONEncodesEmptyAsArray(t *testing.T) {
	data, err := JSON{}.Encode(market.PriceUpdate{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"candles":[]}` {
		t.Fatalf("unexpected payload %s", data)
	}
}

func TestJSONWireShape(t *testing.T) {
	update := market.NewPriceUpdate([]market.Candle{{Timestamp: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}})
	data, err := JSON{}.Encode(update)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"candles":[{"timestamp":1000,"open":1,"high":2,"low":0.5,"close":1.5,"volume":100}]}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}
}

func TestMsgpackUsesSameFieldNames(t *testing.T) {
	update := market.NewPriceUpdate([]market.Candle{{Timestamp: 1000, Close: 1.5}})
	data, err := Msgpack{}.Encode(update)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded map[string][]map[string]any
	if err := msgpack.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	candles := decoded["candles"]
	if len(candles) != 1 {
		t.Fatalf("expected one candle, got %v", decoded)
	}
	if candles[0]["close"] != 1.5 {
		t.Fatalf("expected close 1.5, got %v", candles[0]["close"])
	}
}

func TestForSubprotocol(t *testing.T) {
	if c := ForSubprotocol(""); c.MessageType() != websocket.MessageText || c.Name() != SubprotocolJSON {
		t.Fatalf("expected JSON text codec by default, got %s", c.Name())
	}
	if c := ForSubprotocol(SubprotocolMsgpack); c.MessageType() != websocket.MessageBinary {
		t.Fatalf("expected binary frames for msgpack")
	}
	if c := ForSubprotocol("unknown"); c.Name() != SubprotocolJSON {
		t.Fatalf("expected JSON for unknown subprotocol, got %s", c.Name())
	}
}

func TestJSONDecodesBack(t *testing.T) {
	in := market.NewPriceUpdate([]market.Candle{{Timestamp: 7, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}})
	data, err := JSON{}.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out market.PriceUpdate
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Candles) != 1 || out.Candles[0] != in.Candles[0] {
		t.Fatalf("unexpected decoded update %+v", out)
	}
}

func TestDecodeByFrameType(t *testing.T) {
	in := market.NewPriceUpdate([]market.Candle{{Timestamp: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}})
	for _, codec := range []Codec{JSON{}, Msgpack{}} {
		data, err := codec.Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", codec.Name(), err)
		}
		out, err := Decode(codec.MessageType(), data)
		if err != nil {
			t.Fatalf("%s decode: %v", codec.Name(), err)
		}
		if len(out.Candles) != 1 || out.Candles[0] != in.Candles[0] {
			t.Fatalf("%s: unexpected update %+v", codec.Name(), out)
		}
	}
}

func TestDecodeEmptyAckIsNonNil(t *testing.T) {
	out, err := Decode(websocket.MessageText, []byte(`{"candles":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Candles == nil || len(out.Candles) != 0 {
		t.Fatalf("expected empty non-nil candles, got %#v", out.Candles)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(websocket.MessageText, []byte("{")); err == nil {
		t.Fatalf("expected JSON error")
	}
	if _, err := Decode(websocket.MessageBinary, []byte{0xc1}); err == nil {
		t.Fatalf("expected msgpack error")
	}
}
