package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ehrlich-b/wingterm/internal/logger"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("not connected")

const (
	writeTimeout = 10 * time.Second
	readLimit    = 512 * 1024 // 512KB
)

// EventKind identifies a transport notification.
type EventKind int

const (
	EventOpened EventKind = iota
	EventFrame
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventFrame:
		return "frame"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification from the transport to its owner. Conn is the
// id returned by the Connect call that produced it, so the owner can
// discard notifications from a connection it already replaced.
type Event struct {
	Kind   EventKind
	Conn   uint64
	Data   []byte // EventFrame only
	Binary bool   // EventFrame only
	Err    error  // EventClosed only; nil on graceful or requested close
}

// NotifyFunc receives transport events. It is called from the receive
// goroutine of the connection; it may block to apply backpressure.
type NotifyFunc func(Event)

// Client owns at most one live WebSocket connection.
//
// For every connection it emits Opened (if the dial succeeds), zero or
// more Frames, then exactly one Closed. Nothing follows Closed.
type Client struct {
	notify NotifyFunc

	mu     sync.Mutex
	nextID uint64
	cur    *connection
}

type connection struct {
	id     uint64
	cancel context.CancelFunc
	conn   *websocket.Conn // nil while dialing
}

// NewClient returns a transport that reports to notify.
func NewClient(notify NotifyFunc) *Client {
	return &Client{notify: notify}
}

// Connect tears down any current connection and starts dialing endpoint
// in the background. It returns immediately with the new connection id;
// the outcome arrives as Opened or Closed.
func (c *Client) Connect(endpoint string, header http.Header) uint64 {
	c.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.nextID++
	cn := &connection{id: c.nextID, cancel: cancel}
	c.cur = cn
	c.mu.Unlock()

	go c.run(ctx, cn, endpoint, header.Clone())
	return cn.id
}

// Disconnect closes the current connection immediately. Safe to call when
// nothing is open.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cn := c.cur
	c.cur = nil
	var conn *websocket.Conn
	if cn != nil {
		conn = cn.conn
	}
	c.mu.Unlock()
	if cn == nil {
		return
	}
	cn.cancel()
	if conn != nil {
		conn.CloseNow()
	}
}

// Send writes data as one text frame on the current connection.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	var conn *websocket.Conn
	if c.cur != nil {
		conn = c.cur.conn
	}
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, cn *connection, endpoint string, header http.Header) {
	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		c.closed(ctx, cn, fmt.Errorf("dial: %w", err))
		return
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	live := c.cur == cn
	if live {
		cn.conn = conn
	}
	c.mu.Unlock()
	if !live {
		// Disconnected while the handshake was in flight.
		conn.CloseNow()
		c.closed(ctx, cn, nil)
		return
	}
	defer conn.CloseNow()

	logger.Debug("transport opened", "conn", cn.id, "endpoint", endpoint)
	c.notify(Event{Kind: EventOpened, Conn: cn.id})

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			c.closed(ctx, cn, fmt.Errorf("read: %w", err))
			return
		}
		c.notify(Event{Kind: EventFrame, Conn: cn.id, Data: data, Binary: typ == websocket.MessageBinary})
	}
}

// closed emits the single Closed event for cn. Requested closes and
// normal close handshakes report no error.
func (c *Client) closed(ctx context.Context, cn *connection, err error) {
	if ctx.Err() != nil || isGraceful(err) {
		err = nil
	}
	c.mu.Lock()
	if c.cur == cn {
		c.cur = nil
	}
	c.mu.Unlock()
	cn.cancel()

	logger.Debug("transport closed", "conn", cn.id, "err", err)
	c.notify(Event{Kind: EventClosed, Conn: cn.id, Err: err})
}

func isGraceful(err error) bool {
	if err == nil {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
