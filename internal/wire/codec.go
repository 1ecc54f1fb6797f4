package wire

import (
	"encoding/json"
	"fmt"

	"candle-stream/internal/market"

	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"
)

const (
	SubprotocolJSON    = "candles.json"
	SubprotocolMsgpack = "candles.msgpack"
)

// Codec turns a price update into one websocket message.
type Codec interface {
	Name() string
	MessageType() websocket.MessageType
	Encode(update market.PriceUpdate) ([]byte, error)
}

// Subprotocols lists what the server offers during the upgrade, in
// preference order.
func Subprotocols() []string {
	return []string{SubprotocolJSON, SubprotocolMsgpack}
}

// ForSubprotocol picks the codec for a negotiated subprotocol. Clients that
// negotiated nothing get JSON text frames.
func ForSubprotocol(name string) Codec {
	if name == SubprotocolMsgpack {
		return Msgpack{}
	}
	return JSON{}
}

type JSON struct{}

func (JSON) Name() string { return SubprotocolJSON }

func (JSON) MessageType() websocket.MessageType { return websocket.MessageText }

func (JSON) Encode(update market.PriceUpdate) ([]byte, error) {
	return json.Marshal(market.NewPriceUpdate(update.Candles))
}

type Msgpack struct{}

func (Msgpack) Name() string { return SubprotocolMsgpack }

func (Msgpack) MessageType() websocket.MessageType { return websocket.MessageBinary }

func (Msgpack) Encode(update market.PriceUpdate) ([]byte, error) {
	return msgpack.Marshal(market.NewPriceUpdate(update.Candles))
}

// Decode parses a server message by frame type: binary frames are msgpack,
// text frames JSON.
func Decode(typ websocket.MessageType, data []byte) (market.PriceUpdate, error) {
	var update market.PriceUpdate
	var err error
	switch typ {
	case websocket.MessageBinary:
		err = msgpack.Unmarshal(data, &update)
	case websocket.MessageText:
		err = json.Unmarshal(data, &update)
	default:
		err = fmt.Errorf("unsupported message type %d", typ)
	}
	if err != nil {
		return market.PriceUpdate{}, err
	}
	return market.NewPriceUpdate(update.Candles), nil
}
