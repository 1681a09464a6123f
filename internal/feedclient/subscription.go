package feedclient

import (
	"sort"
	"strings"
)

// DefaultDataset is the venue used when a subscription does not name one.
const DefaultDataset = "EQUS.MINI"

// Schema names the message kind of a subscription on the wire.
type Schema string

const (
	SchemaMBO     Schema = "mbo"      // order-by-order
	SchemaMBP1    Schema = "mbp-1"    // top of book
	SchemaMBP10   Schema = "mbp-10"   // 10-level depth
	SchemaTBBO    Schema = "tbbo"     // trade with best bid/offer
	SchemaTrades  Schema = "trades"
	SchemaOHLCV1S Schema = "ohlcv-1s"
	SchemaOHLCV1M Schema = "ohlcv-1m"
	SchemaOHLCV1H Schema = "ohlcv-1h"
	SchemaOHLCV1D Schema = "ohlcv-1d"
)

// SType names the symbology a subscription's symbols are expressed in.
type SType string

const (
	STypeRawSymbol    SType = "raw_symbol"
	STypeInstrumentID SType = "instrument_id"
	STypeParent       SType = "parent"
	STypeContinuous   SType = "continuous"
)

// SubscriptionRequest describes one subscription to the vendor feed. It is
// immutable once submitted; the client retains it verbatim so the exact same
// request can be replayed after a reconnect.
type SubscriptionRequest struct {
	Dataset  string   `json:"dataset"`
	Schema   Schema   `json:"schema"`
	Symbols  []string `json:"symbols"`
	SType    SType    `json:"stype"`
	Snapshot bool     `json:"snapshot"`
}

// key identifies a subscription in the active-subscription registry. Symbols
// are sorted so the same request always maps to the same entry regardless of
// symbol order.
func (r SubscriptionRequest) key() string {
	symbols := make([]string, len(r.Symbols))
	copy(symbols, r.Symbols)
	sort.Strings(symbols)
	return r.Dataset + "|" + string(r.Schema) + "|" + strings.Join(symbols, ",")
}

// matches reports whether this registry entry is hit by an unsubscribe for
// the given dataset and symbols: the dataset must be equal and the symbol
// sets must intersect.
func (r SubscriptionRequest) matches(dataset string, symbols []string) bool {
	if r.Dataset != dataset {
		return false
	}
	for _, want := range symbols {
		for _, have := range r.Symbols {
			if want == have {
				return true
			}
		}
	}
	return false
}
