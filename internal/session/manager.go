package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ehrlich-b/wingterm/internal/config"
	"github.com/ehrlich-b/wingterm/internal/logger"
	"github.com/ehrlich-b/wingterm/internal/protocol"
	"github.com/ehrlich-b/wingterm/internal/ws"
)

// Transport is the socket the manager drives. ws.Client implements it.
// Implementations must report events through the NotifyFunc they were
// built with, never synchronously from Connect or Disconnect.
type Transport interface {
	Connect(endpoint string, header http.Header) uint64
	Send(ctx context.Context, data []byte) error
	Disconnect()
}

// TransportFactory builds the manager's transport around its notify hook.
type TransportFactory func(notify ws.NotifyFunc) Transport

func defaultTransport(notify ws.NotifyFunc) Transport {
	return ws.NewClient(notify)
}

type subscription struct {
	id uint64
	o  Observer
}

// Manager owns one transport and the connection state machine:
//
//	Disconnected --Connect--> Connecting --opened--> Connected
//	Connected --Disconnect|closed--> Disconnected
//	any --bad endpoint|transport error--> Failed(reason)
//	Failed --Connect--> Connecting
//
// Inbound frames are decoded and observers notified on the goroutine
// running Run, one frame at a time. There is no automatic reconnect.
type Manager struct {
	transport Transport
	events    chan ws.Event
	wake      chan struct{}
	done      chan struct{}

	mu        sync.Mutex
	state     State
	sessionID string
	connID    uint64 // 0 when no connection is live
	pending   []notification

	sendMu sync.Mutex

	obsMu     sync.Mutex
	observers []subscription
	nextObs   uint64
}

// NewManager creates a manager. A nil factory uses the WebSocket transport.
func NewManager(newTransport TransportFactory) *Manager {
	if newTransport == nil {
		newTransport = defaultTransport
	}
	m := &Manager{
		events: make(chan ws.Event, 64),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.transport = newTransport(m.notify)
	return m
}

// Run processes transport events and delivers notifications until ctx is
// done, then disconnects. Call it exactly once.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.Disconnect()
			m.flush()
			return ctx.Err()
		case <-m.wake:
		case ev := <-m.events:
			m.handle(ev)
		}
		m.flush()
	}
}

// Subscribe registers o and returns a function that removes it. Observers
// only see what happens after they subscribe.
func (m *Manager) Subscribe(o Observer) (unsubscribe func()) {
	m.obsMu.Lock()
	m.nextObs++
	id := m.nextObs
	m.observers = append(m.observers, subscription{id: id, o: o})
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, s := range m.observers {
			if s.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the cached server session id, empty if none yet.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Connect starts a connection attempt with cfg, tearing down any current
// one. Bad settings move straight to Failed("invalid endpoint") and the
// error is returned; otherwise the state becomes Connecting and the
// result of the dial arrives asynchronously.
func (m *Manager) Connect(cfg config.Connection) error {
	targets, err := cfg.Targets()

	m.mu.Lock()
	defer m.kick()
	defer m.mu.Unlock()

	if err != nil {
		// A Failed state never sits on top of a live socket.
		if m.connID != 0 {
			m.transport.Disconnect()
			m.connID = 0
		}
		m.clearSession()
		m.setState(State{Kind: Failed, Reason: ReasonInvalidEndpoint})
		logger.Warn("connect rejected", "host", cfg.Host, "port", cfg.Port, "err", err)
		return err
	}

	if m.connID != 0 {
		m.transport.Disconnect()
		m.connID = 0
	}
	m.clearSession()
	m.setState(State{Kind: Connecting})

	header := http.Header{}
	header.Set("Authorization", targets.AuthHeader())
	m.connID = m.transport.Connect(targets.StreamURL, header)
	logger.Info("connecting", "endpoint", targets.StreamURL, "user", cfg.Username, "conn", m.connID)
	return nil
}

// Disconnect closes the transport and moves to Disconnected, whatever the
// current state. Partially streamed replies are left as they are.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.kick()
	defer m.mu.Unlock()

	m.transport.Disconnect()
	if m.connID != 0 {
		logger.Info("disconnected", "conn", m.connID)
	}
	m.connID = 0
	m.clearSession()
	m.setState(State{Kind: Disconnected})
}

// Send encodes cmd with the cached session id and writes it. Errors are
// returned to the caller; the connection state is left alone.
func (m *Manager) Send(ctx context.Context, cmd protocol.Command) error {
	m.mu.Lock()
	sid := m.sessionID
	m.mu.Unlock()

	data, err := protocol.EncodeCommand(cmd, sid)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if err := m.transport.Send(ctx, data); err != nil {
		return fmt.Errorf("send command %s: %w", cmd.ID, err)
	}
	logger.Debug("command sent", "id", cmd.ID, "kind", cmd.Payload.Kind(), "session", sid)
	return nil
}

// notify is the transport's hook. It hands events to Run.
func (m *Manager) notify(ev ws.Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) handle(ev ws.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Conn == 0 || ev.Conn != m.connID {
		logger.Debug("stale transport event", "kind", ev.Kind, "conn", ev.Conn, "current", m.connID)
		return
	}

	switch ev.Kind {
	case ws.EventOpened:
		if m.state.Kind == Connecting {
			m.setState(State{Kind: Connected})
			logger.Info("connected", "conn", ev.Conn)
		}
	case ws.EventFrame:
		m.handleFrame(ev.Data)
	case ws.EventClosed:
		m.connID = 0
		m.clearSession()
		if ev.Err != nil {
			logger.Warn("connection lost", "conn", ev.Conn, "err", ev.Err)
			m.setState(State{Kind: Failed, Reason: ev.Err.Error()})
		} else {
			logger.Info("connection closed", "conn", ev.Conn)
			m.setState(State{Kind: Disconnected})
		}
	}
}

// handleFrame decodes one frame. Bad frames are dropped here and never
// affect the connection.
func (m *Manager) handleFrame(data []byte) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			logger.Debug("ignoring frame", "err", err)
		} else {
			logger.Warn("dropping malformed frame", "err", err, "bytes", len(data))
		}
		return
	}

	// Last writer wins: no ordering check between session ids.
	if sid := ev.Session(); sid != "" && sid != m.sessionID {
		m.sessionID = sid
		m.queue(notification{kind: noteSessionID, sessionID: sid})
	}
	m.queue(notification{kind: noteEvent, event: ev})
}

// setState records a transition. Caller holds m.mu.
func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	logger.Debug("state change", "from", m.state, "to", s)
	m.state = s
	m.queue(notification{kind: noteState, state: s})
}

// clearSession forgets the session id. Caller holds m.mu.
func (m *Manager) clearSession() {
	if m.sessionID == "" {
		return
	}
	m.sessionID = ""
	m.queue(notification{kind: noteSessionID})
}

func (m *Manager) queue(n notification) {
	m.pending = append(m.pending, n)
}

// kick wakes Run so notifications queued outside it get delivered.
func (m *Manager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// flush delivers queued notifications. Only Run calls it, so observers
// are never invoked concurrently.
func (m *Manager) flush() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	m.obsMu.Lock()
	subs := make([]subscription, len(m.observers))
	copy(subs, m.observers)
	m.obsMu.Unlock()

	for _, n := range pending {
		for _, s := range subs {
			n.deliver(s.o)
		}
	}
}
