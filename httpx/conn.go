package httpx

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// ConnState is the lifecycle position of a pooled connection.
type ConnState int

const (
	StateIdle ConnState = iota
	StateInUse
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in-use"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one byte stream to a (host, port). While InUse it belongs to
// exactly one request/response pair and the pool holds no reference to it.
type Connection struct {
	id   uint64
	key  Key
	c    net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
	uses int

	// Guarded by the pool mutex while Idle; owned by the borrower while InUse.
	state      ConnState
	checkedOut bool
	lastUsed   time.Time

	closeOnce sync.Once
	closeErr  error
}

func newConnection(id uint64, key Key, c net.Conn, now time.Time) *Connection {
	return &Connection{
		id:       id,
		key:      key,
		c:        c,
		br:       bufio.NewReader(c),
		bw:       bufio.NewWriter(c),
		state:    StateInUse,
		lastUsed: now,
	}
}

func (c *Connection) ID() uint64           { return c.id }
func (c *Connection) Key() Key             { return c.key }
func (c *Connection) State() ConnState     { return c.state }
func (c *Connection) LastUsed() time.Time  { return c.lastUsed }
func (c *Connection) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

// Reused reports whether this connection has served an earlier exchange.
func (c *Connection) Reused() bool { return c.uses > 1 }

// markClosed closes the stream and pins the state to Closed. Safe to call
// more than once.
func (c *Connection) markClosed() error {
	c.state = StateClosed
	c.closeOnce.Do(func() { c.closeErr = c.c.Close() })
	return c.closeErr
}

func (c *Connection) expired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(c.lastUsed) > timeout
}
