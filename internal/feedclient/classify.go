// classify.go: shape-based classification of inbound feed frames
package feedclient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// The vendor does not tag frames with an explicit type. Control frames are
// recognized first (auth response, subscription ack, system message, symbol
// mapping), then market data is classified by which fields are present.
// Quote fields are a subset of depth fields, so depth is checked before
// quote; the order below is load-bearing.

// frame is a parsed inbound JSON object. Numbers are kept as json.Number so
// prices survive with exact precision and nanosecond timestamps do not lose
// bits to float64.
type frame map[string]interface{}

func parseFrame(data []byte) (frame, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m frame
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func (f frame) has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f frame) str(key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}

func (f frame) boolean(key string) (bool, bool) {
	v, ok := f[key].(bool)
	return v, ok
}

func (f frame) dec(key string) decimal.Decimal {
	switch v := f[key].(type) {
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	case string:
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func (f frame) int64(key string) int64 {
	switch v := f[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// classifyMarketData returns the message kind a market-data frame's field
// shape implies, or false when no known shape matches.
func classifyMarketData(f frame) (MessageKind, bool) {
	switch {
	case f.has("price") && f.has("size") && !f.has("bidPrice"):
		return KindTrade, true
	case f.has("bidPrice") && f.has("askPrice") && f.has("levels"):
		return KindDepth, true
	case f.has("bidPrice") && f.has("askPrice"):
		return KindQuote, true
	case f.has("open") && f.has("high"):
		return KindBar, true
	default:
		return "", false
	}
}

func decodeTrade(f frame, symbol string) *TradeMessage {
	return &TradeMessage{
		EventTimeNs: f.int64("eventTimeNs"),
		Symbol:      symbol,
		Price:       f.dec("price"),
		Size:        f.dec("size"),
		Side:        f.str("side"),
	}
}

func decodeQuote(f frame, symbol string) *QuoteMessage {
	return &QuoteMessage{
		EventTimeNs: f.int64("eventTimeNs"),
		Symbol:      symbol,
		BidPrice:    f.dec("bidPrice"),
		AskPrice:    f.dec("askPrice"),
		BidSize:     f.dec("bidSize"),
		AskSize:     f.dec("askSize"),
	}
}

func decodeDepth(f frame, symbol string) *DepthMessage {
	msg := &DepthMessage{
		EventTimeNs: f.int64("eventTimeNs"),
		Symbol:      symbol,
	}

	raw, ok := f["levels"].([]interface{})
	if !ok {
		return msg
	}
	msg.Levels = make([]DepthLevel, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		lf := frame(obj)
		msg.Levels = append(msg.Levels, DepthLevel{
			BidPrice: lf.dec("bidPrice"),
			AskPrice: lf.dec("askPrice"),
			BidSize:  lf.dec("bidSize"),
			AskSize:  lf.dec("askSize"),
		})
	}
	return msg
}

func decodeBar(f frame, symbol string) *BarMessage {
	return &BarMessage{
		EventTimeNs: f.int64("eventTimeNs"),
		Symbol:      symbol,
		Open:        f.dec("open"),
		High:        f.dec("high"),
		Low:         f.dec("low"),
		Close:       f.dec("close"),
		Volume:      f.dec("volume"),
	}
}

func decodeSystem(f frame) *SystemMessage {
	text := f.str("msg")
	return &SystemMessage{
		Text:        text,
		Code:        int(f.int64("code")),
		IsHeartbeat: strings.Contains(strings.ToLower(text), "heartbeat"),
	}
}
