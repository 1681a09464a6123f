package feedclient

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingListener) OnEvent(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingListener) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingListener) ofType(t EventType) []Event {
	var out []Event
	for _, evt := range r.snapshot() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type panickingListener struct{}

func (*panickingListener) OnEvent(Event) {
	panic("listener blew up")
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return New(Config{URL: "ws://localhost:0", APIKey: "test-key"}, zap.NewNop())
}

func TestListenerRegistrationIsIdentityBased(t *testing.T) {
	c := newTestClient(t)
	l := &recordingListener{}

	c.On(l)
	c.On(l) // duplicate registration is a no-op
	c.emit(Event{Type: EventConnected})
	assert.Len(t, l.snapshot(), 1)

	c.Off(l)
	c.emit(Event{Type: EventConnected})
	assert.Len(t, l.snapshot(), 1)

	// removing an unknown listener is harmless
	c.Off(&recordingListener{})
}

func TestListenerPanicDoesNotStopDelivery(t *testing.T) {
	c := newTestClient(t)
	second := &recordingListener{}

	c.On(&panickingListener{})
	c.On(second)

	c.emit(Event{Type: EventConnected})
	c.emit(Event{Type: EventAuthenticated, SessionID: "sess-1"})

	events := second.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventConnected, events[0].Type)
	assert.Equal(t, EventAuthenticated, events[1].Type)
	assert.Equal(t, "sess-1", events[1].SessionID)
}

func TestDeliveryFollowsRegistrationOrder(t *testing.T) {
	c := newTestClient(t)

	var order []string
	var mu sync.Mutex
	first := listenerFunc{fn: func(Event) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	}}
	second := listenerFunc{fn: func(Event) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	}}

	c.On(&first)
	c.On(&second)
	c.emit(Event{Type: EventConnected})

	assert.Equal(t, []string{"first", "second"}, order)
}

type listenerFunc struct {
	fn func(Event)
}

func (l *listenerFunc) OnEvent(evt Event) { l.fn(evt) }

func TestHandleFrameResolvesSymbolsThroughMappingTable(t *testing.T) {
	c := newTestClient(t)
	l := &recordingListener{}
	c.On(l)

	c.handleFrame([]byte(`{"instrumentId":12345,"rawSymbol":"AAPL"}`))
	c.handleFrame([]byte(`{"instrumentId":12345,"price":150.05,"size":50}`))

	trades := l.ofType(EventMessage)
	require.Len(t, trades, 1)
	require.Equal(t, KindTrade, trades[0].Kind)
	assert.Equal(t, "AAPL", trades[0].Trade.Symbol)
}

func TestHandleFrameFallsBackToInstrumentID(t *testing.T) {
	c := newTestClient(t)
	l := &recordingListener{}
	c.On(l)

	c.handleFrame([]byte(`{"instrumentId":999,"price":10.5,"size":1}`))

	msgs := l.ofType(EventMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "999", msgs[0].Trade.Symbol)
}

func TestHandleFrameDropsUnknownShapes(t *testing.T) {
	c := newTestClient(t)
	l := &recordingListener{}
	c.On(l)

	c.handleFrame([]byte(`this is not json`))
	c.handleFrame([]byte(`{"mystery":"frame"}`))

	assert.Empty(t, l.snapshot())
}

func TestHandleFrameEmitsSystemMessages(t *testing.T) {
	c := newTestClient(t)
	l := &recordingListener{}
	c.On(l)

	c.handleFrame([]byte(`{"msg":"heartbeat","code":0}`))

	msgs := l.ofType(EventMessage)
	require.Len(t, msgs, 1)
	require.Equal(t, KindSystem, msgs[0].Kind)
	assert.True(t, msgs[0].System.IsHeartbeat)
}
