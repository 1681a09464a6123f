// events.go: lifecycle/data events and listener fan-out
package feedclient

import (
	"go.uber.org/zap"

	"github.com/Aidin1998/quotefeed/pkg/metrics"
)

// EventType tags the variant carried by an Event.
type EventType int

const (
	EventConnected EventType = iota
	EventAuthenticated
	EventSubscribed
	EventMessage
	EventError
	EventDisconnected
	EventReconnecting
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventAuthenticated:
		return "authenticated"
	case EventSubscribed:
		return "subscribed"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Event is the tagged union delivered to listeners. Only the fields named by
// the Type are set. Listeners observe events; they never mutate client state
// through them.
type Event struct {
	Type EventType

	// EventAuthenticated
	SessionID string

	// EventSubscribed
	SubscriptionID string

	// EventMessage; exactly one payload pointer is set, matching Kind.
	Kind   MessageKind
	Trade  *TradeMessage
	Quote  *QuoteMessage
	Depth  *DepthMessage
	Bar    *BarMessage
	System *SystemMessage

	// EventError
	Err error

	// EventDisconnected
	Reason string

	// EventReconnecting
	Attempt int
}

// Listener receives client events. Register pointer types so On/Off identity
// comparison is meaningful. OnEvent is called synchronously from the client's
// delivery path and must not block.
type Listener interface {
	OnEvent(evt Event)
}

// On registers a listener. Registering the same listener twice is a no-op;
// delivery order follows registration order.
func (c *Client) On(l Listener) {
	if l == nil {
		return
	}
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for _, existing := range c.listeners {
		if existing == l {
			return
		}
	}
	c.listeners = append(c.listeners, l)
}

// Off removes a previously registered listener. Unknown listeners are
// ignored.
func (c *Client) Off(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// emit delivers an event to every registered listener in registration order.
// A panicking listener is recovered and logged so the remaining listeners and
// subsequent events still get delivered.
func (c *Client) emit(evt Event) {
	c.listenersMu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		c.deliver(l, evt)
	}
}

func (c *Client) deliver(l Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerPanics.Inc()
			c.logger.Error("listener panicked",
				zap.String("event", evt.Type.String()),
				zap.Any("panic", r))
		}
	}()
	l.OnEvent(evt)
}
