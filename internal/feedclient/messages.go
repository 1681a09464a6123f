// messages.go: typed domain messages decoded from vendor feed frames
package feedclient

import "github.com/shopspring/decimal"

// MessageKind classifies a decoded market-data message.
type MessageKind string

const (
	KindTrade  MessageKind = "trade"
	KindQuote  MessageKind = "quote"
	KindDepth  MessageKind = "depth"
	KindBar    MessageKind = "bar"
	KindSystem MessageKind = "system"
)

// TradeMessage is a single executed trade.
type TradeMessage struct {
	EventTimeNs int64           `json:"eventTimeNs"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Size        decimal.Decimal `json:"size"`
	Side        string          `json:"side,omitempty"`
}

// QuoteMessage is a top-of-book best bid/offer update.
type QuoteMessage struct {
	EventTimeNs int64           `json:"eventTimeNs"`
	Symbol      string          `json:"symbol"`
	BidPrice    decimal.Decimal `json:"bidPrice"`
	AskPrice    decimal.Decimal `json:"askPrice"`
	BidSize     decimal.Decimal `json:"bidSize"`
	AskSize     decimal.Decimal `json:"askSize"`
}

// DepthLevel is one price level of an order-book snapshot.
type DepthLevel struct {
	BidPrice decimal.Decimal `json:"bidPrice"`
	AskPrice decimal.Decimal `json:"askPrice"`
	BidSize  decimal.Decimal `json:"bidSize"`
	AskSize  decimal.Decimal `json:"askSize"`
}

// DepthMessage is a 10-level order-book snapshot.
type DepthMessage struct {
	EventTimeNs int64        `json:"eventTimeNs"`
	Symbol      string       `json:"symbol"`
	Levels      []DepthLevel `json:"levels"`
}

// BarMessage is one OHLCV aggregate.
type BarMessage struct {
	EventTimeNs int64           `json:"eventTimeNs"`
	Symbol      string          `json:"symbol"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
}

// SystemMessage is an informational message from the vendor, heartbeats
// included.
type SystemMessage struct {
	Text        string `json:"msg"`
	Code        int    `json:"code,omitempty"`
	IsHeartbeat bool   `json:"isHeartbeat"`
}
