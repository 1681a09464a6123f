// adapter.go: in-memory latest-quote cache fed by the protocol client
package quotecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/quotefeed/internal/feedclient"
	"github.com/Aidin1998/quotefeed/internal/pubsub"
	"github.com/Aidin1998/quotefeed/pkg/metrics"
)

// QuoteClient is the slice of the protocol client the adapter depends on.
type QuoteClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(req feedclient.SubscriptionRequest) error
	On(l feedclient.Listener)
	Off(l feedclient.Listener)
	State() feedclient.ConnectionState
}

// CachedQuote is the latest best-bid/ask/last-trade snapshot for one symbol.
// Last stays nil until a trade is observed and survives quote overwrites;
// the whole record is replaced on update, never mutated in place.
type CachedQuote struct {
	Symbol       string           `json:"symbol"`
	Bid          decimal.Decimal  `json:"bid"`
	Ask          decimal.Decimal  `json:"ask"`
	BidSize      decimal.Decimal  `json:"bidSize"`
	AskSize      decimal.Decimal  `json:"askSize"`
	Last         *decimal.Decimal `json:"last,omitempty"`
	ObservedAtNs int64            `json:"observedAtNs"`
}

// HistoricalBarsFunc is the external collaborator that serves historical bar
// ranges. Left nil in this subsystem; lookups then return empty results.
type HistoricalBarsFunc func(ctx context.Context, symbol string, start, end time.Time) ([]feedclient.BarMessage, error)

// AdapterConfig carries the cache policy settings.
type AdapterConfig struct {
	// Dataset used when Connect is not given one.
	Dataset string

	// StaleThreshold ages out cached quotes at read time; zero disables the
	// check.
	StaleThreshold time.Duration

	// PublishUpdates mirrors every cache update to the pub/sub backend.
	PublishUpdates bool

	// BackendName labels published-update metrics.
	BackendName string

	// HistoricalBars optionally serves GetHistoricalBars.
	HistoricalBars HistoricalBarsFunc
}

// Adapter subscribes to quotes and trades for a symbol set and answers
// point/batch lookups from an in-memory snapshot per symbol. All cache
// mutation happens on the client's event-delivery path; reads only take the
// read lock. The cache is cleared wholesale whenever the feed disconnects so
// an outage can never serve unflagged stale data.
type Adapter struct {
	client QuoteClient
	cfg    AdapterConfig
	pub    pubsub.Backend
	logger *zap.Logger
	clock  clock.Clock

	mu     sync.RWMutex
	quotes map[string]CachedQuote

	authCh chan struct{}
	errCh  chan error
}

// New creates an adapter with the wall clock. pub may be nil when
// distribution is disabled.
func New(client QuoteClient, cfg AdapterConfig, pub pubsub.Backend, logger *zap.Logger) *Adapter {
	return NewWithClock(client, cfg, pub, logger, clock.New())
}

// NewWithClock creates an adapter with an injected clock for deterministic
// staleness tests.
func NewWithClock(client QuoteClient, cfg AdapterConfig, pub pubsub.Backend, logger *zap.Logger, clk clock.Clock) *Adapter {
	if cfg.Dataset == "" {
		cfg.Dataset = feedclient.DefaultDataset
	}
	if cfg.BackendName == "" {
		cfg.BackendName = "none"
	}
	return &Adapter{
		client: client,
		cfg:    cfg,
		pub:    pub,
		logger: logger.Named("quote-cache"),
		clock:  clk,
		quotes: make(map[string]CachedQuote),
		authCh: make(chan struct{}, 1),
		errCh:  make(chan error, 1),
	}
}

// Connect registers the adapter as a listener, connects the client, waits
// for authentication, and subscribes the given symbols to top-of-book quotes
// and trades. Registration happens before the socket opens so no events are
// missed once the subscriptions are live.
func (a *Adapter) Connect(ctx context.Context, symbols []string, dataset string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("quote cache: no symbols given")
	}
	if dataset == "" {
		dataset = a.cfg.Dataset
	}

	// Drop signals left over from a previous session.
	select {
	case <-a.authCh:
	default:
	}
	select {
	case <-a.errCh:
	default:
	}

	a.client.On(a)
	if err := a.client.Connect(ctx); err != nil {
		a.client.Off(a)
		return err
	}

	if err := a.waitAuthenticated(ctx); err != nil {
		_ = a.client.Disconnect()
		a.client.Off(a)
		return fmt.Errorf("quote cache: waiting for authentication: %w", err)
	}

	for _, req := range []feedclient.SubscriptionRequest{
		{Dataset: dataset, Schema: feedclient.SchemaMBP1, Symbols: symbols, SType: feedclient.STypeRawSymbol, Snapshot: true},
		{Dataset: dataset, Schema: feedclient.SchemaTrades, Symbols: symbols, SType: feedclient.STypeRawSymbol, Snapshot: false},
	} {
		if err := a.client.Subscribe(req); err != nil {
			_ = a.client.Disconnect()
			a.client.Off(a)
			return fmt.Errorf("quote cache: subscribe %s: %w", req.Schema, err)
		}
	}

	a.logger.Info("Quote cache connected",
		zap.Strings("symbols", symbols),
		zap.String("dataset", dataset))
	return nil
}

func (a *Adapter) waitAuthenticated(ctx context.Context) error {
	select {
	case <-a.authCh:
		return nil
	case err := <-a.errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect tears the client down and clears the cache synchronously; the
// caller does not have to wait for the Disconnected event.
func (a *Adapter) Disconnect() error {
	err := a.client.Disconnect()
	a.clear()
	return err
}

// GetQuote returns the cached snapshot for symbol. Absent entries and
// entries older than the staleness threshold read as not present.
func (a *Adapter) GetQuote(symbol string) (CachedQuote, bool) {
	a.mu.RLock()
	q, ok := a.quotes[symbol]
	a.mu.RUnlock()
	if !ok {
		return CachedQuote{}, false
	}
	if a.cfg.StaleThreshold > 0 {
		age := a.clock.Now().UnixNano() - q.ObservedAtNs
		if age > a.cfg.StaleThreshold.Nanoseconds() {
			return CachedQuote{}, false
		}
	}
	return q, true
}

// GetQuotes returns fresh quotes for the given symbols; symbols without a
// fresh entry are omitted from the result.
func (a *Adapter) GetQuotes(symbols []string) map[string]CachedQuote {
	result := make(map[string]CachedQuote, len(symbols))
	for _, symbol := range symbols {
		if q, ok := a.GetQuote(symbol); ok {
			result[symbol] = q
		}
	}
	return result
}

// IsReady reports whether the underlying client holds an authenticated
// session.
func (a *Adapter) IsReady() bool {
	s := a.client.State()
	return s == feedclient.StateAuthenticated || s == feedclient.StateSubscribed
}

// Type identifies this adapter as the live-feed implementation.
func (a *Adapter) Type() string { return "live" }

// SnapshotPrice serves one-off price lookups for analytics callers: the last
// trade when one was seen, otherwise the bid/ask mid.
func (a *Adapter) SnapshotPrice(symbol string) (decimal.Decimal, bool) {
	q, ok := a.GetQuote(symbol)
	if !ok {
		return decimal.Decimal{}, false
	}
	if q.Last != nil {
		return *q.Last, true
	}
	if q.Bid.IsPositive() && q.Ask.IsPositive() {
		return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2)), true
	}
	return decimal.Decimal{}, false
}

// GetHistoricalBars delegates to the injected collaborator; without one it
// returns an empty range.
func (a *Adapter) GetHistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]feedclient.BarMessage, error) {
	if a.cfg.HistoricalBars == nil {
		return []feedclient.BarMessage{}, nil
	}
	return a.cfg.HistoricalBars(ctx, symbol, start, end)
}

// OnEvent consumes the client's event stream. Quote and trade messages
// update the cache; a disconnect clears it.
func (a *Adapter) OnEvent(evt feedclient.Event) {
	switch evt.Type {
	case feedclient.EventAuthenticated:
		select {
		case a.authCh <- struct{}{}:
		default:
		}
	case feedclient.EventError:
		if evt.Err != nil {
			select {
			case a.errCh <- evt.Err:
			default:
			}
		}
	case feedclient.EventDisconnected:
		a.clear()
		a.logger.Warn("Feed disconnected, cache cleared", zap.String("reason", evt.Reason))
	case feedclient.EventMessage:
		switch evt.Kind {
		case feedclient.KindQuote:
			a.applyQuote(evt.Quote)
		case feedclient.KindTrade:
			a.applyTrade(evt.Trade)
		}
	}
}

// applyQuote replaces the symbol's snapshot, carrying the previous last
// trade forward.
func (a *Adapter) applyQuote(q *feedclient.QuoteMessage) {
	if q == nil || q.Symbol == "" {
		return
	}

	entry := CachedQuote{
		Symbol:       q.Symbol,
		Bid:          q.BidPrice,
		Ask:          q.AskPrice,
		BidSize:      q.BidSize,
		AskSize:      q.AskSize,
		ObservedAtNs: a.observedAt(q.EventTimeNs),
	}

	a.mu.Lock()
	if prev, ok := a.quotes[q.Symbol]; ok {
		entry.Last = prev.Last
	}
	a.quotes[q.Symbol] = entry
	size := len(a.quotes)
	a.mu.Unlock()

	metrics.CachedSymbols.Set(float64(size))
	a.publish(q.Symbol, entry)
}

// applyTrade updates only the last trade price and timestamp, creating a
// bare entry when the symbol has no quote yet.
func (a *Adapter) applyTrade(t *feedclient.TradeMessage) {
	if t == nil || t.Symbol == "" {
		return
	}

	price := t.Price

	a.mu.Lock()
	entry, ok := a.quotes[t.Symbol]
	if !ok {
		entry = CachedQuote{Symbol: t.Symbol}
	}
	entry.Last = &price
	entry.ObservedAtNs = a.observedAt(t.EventTimeNs)
	a.quotes[t.Symbol] = entry
	size := len(a.quotes)
	a.mu.Unlock()

	metrics.CachedSymbols.Set(float64(size))
	a.publish(t.Symbol, entry)
}

func (a *Adapter) clear() {
	a.mu.Lock()
	a.quotes = make(map[string]CachedQuote)
	a.mu.Unlock()
	metrics.CachedSymbols.Set(0)
}

// observedAt prefers the event's exchange timestamp and falls back to
// receive time.
func (a *Adapter) observedAt(eventTimeNs int64) int64 {
	if eventTimeNs > 0 {
		return eventTimeNs
	}
	return a.clock.Now().UnixNano()
}

// publish mirrors a cache update downstream, best-effort.
func (a *Adapter) publish(symbol string, q CachedQuote) {
	if !a.cfg.PublishUpdates || a.pub == nil {
		return
	}
	if err := a.pub.Publish(context.Background(), "quotes."+symbol, q); err != nil {
		a.logger.Debug("Publish failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	metrics.PublishedUpdates.WithLabelValues(a.cfg.BackendName).Inc()
}
