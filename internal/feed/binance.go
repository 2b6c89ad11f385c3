package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"candle-alerts/internal/model"

	"github.com/tidwall/gjson"
)

// ErrNotKline is returned by ParseKline for well-formed payloads that are not
// kline events (subscription acks, other event types).
var ErrNotKline = errors.New("feed: not a kline payload")

// StreamName returns the Binance kline stream name for an instrument.
func StreamName(instrument, interval string) string {
	return strings.ToLower(instrument) + "@kline_" + interval
}

// SubscribePayload builds the Binance SUBSCRIBE request for the instruments.
func SubscribePayload(instruments []string, interval string, id int) ([]byte, error) {
	params := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		params = append(params, StreamName(inst, interval))
	}
	return json.Marshal(struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int      `json:"id"`
	}{"SUBSCRIBE", params, id})
}

// ParseKline decodes a Binance kline event, bare or wrapped in a combined
// stream envelope ({"stream":..., "data":{...}}).
func ParseKline(raw []byte) (model.Candle, error) {
	if !gjson.ValidBytes(raw) {
		return model.Candle{}, fmt.Errorf("feed: invalid json payload")
	}
	ev := gjson.ParseBytes(raw)
	if data := ev.Get("data"); data.IsObject() {
		ev = data
	}
	if ev.Get("e").String() != "kline" {
		return model.Candle{}, ErrNotKline
	}

	k := ev.Get("k")
	if !k.IsObject() {
		return model.Candle{}, fmt.Errorf("feed: kline payload missing k")
	}

	instrument := ev.Get("s").String()
	if instrument == "" {
		instrument = k.Get("s").String()
	}

	c := model.Candle{
		Instrument: strings.ToUpper(instrument),
		OpenTime:   k.Get("t").Int(),
		Open:       k.Get("o").Float(),
		High:       k.Get("h").Float(),
		Low:        k.Get("l").Float(),
		Close:      k.Get("c").Float(),
		Volume:     k.Get("v").Float(),
		IsClosed:   k.Get("x").Bool(),
	}
	if !c.Valid() {
		return model.Candle{}, fmt.Errorf("feed: invalid kline for %q at %d", c.Instrument, c.OpenTime)
	}
	return c, nil
}
