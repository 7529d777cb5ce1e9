package httpx

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"dqx0.com/go/minihttp/internal/obs"
)

const (
	DefaultMaxIdlePerHost = 2
	DefaultIdleTimeout    = 15 * time.Second
	DefaultDialTimeout    = 5 * time.Second
)

// Dialer provisions byte streams. *net.Dialer satisfies it; TLS or proxy
// dialers plug in here.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PoolConfig bounds a ConnectionPool. Zero values select defaults;
// a negative IdleTimeout disables expiry.
type PoolConfig struct {
	MaxIdlePerHost  int           `yaml:"max_idle_per_host"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"` // 0 = unlimited
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	DialRate        float64       `yaml:"dial_rate"` // dials per second, 0 = unlimited
	DialBurst       int           `yaml:"dial_burst"`
	PruneInterval   time.Duration `yaml:"prune_interval"` // 0 = expire lazily on Acquire only
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxIdlePerHost <= 0 {
		c.MaxIdlePerHost = DefaultMaxIdlePerHost
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.DialRate > 0 && c.DialBurst <= 0 {
		c.DialBurst = 1
	}
	return c
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Hosts     int
	Idle      int
	Open      int // idle + in use + dialing
	Dials     uint64
	Reuses    uint64
	Evictions uint64
	Expired   uint64
	Discards  uint64
}

// PoolOption configures optional collaborators of a ConnectionPool.
type PoolOption func(*ConnectionPool)

func WithPoolLogger(l obs.Logger) PoolOption { return func(p *ConnectionPool) { p.logger = l } }

func WithPoolMeter(m obs.Meter) PoolOption { return func(p *ConnectionPool) { p.meter = m } }

// WithClock replaces time.Now for idle bookkeeping.
func WithClock(now func() time.Time) PoolOption { return func(p *ConnectionPool) { p.now = now } }

// ConnectionPool keeps idle connections per (host, port) and dials on a miss.
// Acquire and Release are serialized by one mutex, so no idle connection is
// ever handed to two callers.
type ConnectionPool struct {
	cfg     PoolConfig
	dialer  Dialer
	logger  obs.Logger
	meter   obs.Meter
	now     func() time.Time
	limiter *rate.Limiter

	mu     sync.Mutex
	hosts  map[Key]*hostConns
	closed bool
	nextID uint64
	stats  PoolStats
	stop   chan struct{}
	done   chan struct{}
}

type hostConns struct {
	idle    []*Connection // oldest first
	open    int
	waiting int
	sem     *semaphore.Weighted // nil when MaxConnsPerHost is unlimited
	ready   chan struct{}       // closed when an idle conn or a slot appears
}

// wakeLocked releases every caller parked in Acquire for this host; each
// retries the idle store and the slot count.
func (h *hostConns) wakeLocked() {
	if h.ready != nil {
		close(h.ready)
		h.ready = nil
	}
}

// NewConnectionPool returns a pool dialing through d (a *net.Dialer if nil).
func NewConnectionPool(cfg PoolConfig, d Dialer, opts ...PoolOption) *ConnectionPool {
	cfg = cfg.withDefaults()
	if d == nil {
		d = &net.Dialer{}
	}
	p := &ConnectionPool{
		cfg:    cfg,
		dialer: d,
		logger: obs.NopLogger{},
		meter:  obs.NopMeter{},
		now:    time.Now,
		hosts:  make(map[Key]*hostConns),
	}
	if cfg.DialRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.DialRate), cfg.DialBurst)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if cfg.PruneInterval > 0 {
		p.startPruner(cfg.PruneInterval)
	}
	return p
}

// Config returns the effective configuration.
func (p *ConnectionPool) Config() PoolConfig { return p.cfg }

// Acquire returns an InUse connection for key: the freshest unexpired idle
// one, or a newly dialed one. Expired idle connections are closed on the way.
// With MaxConnsPerHost reached it waits, honoring ctx, until a connection is
// released to the idle store or a slot frees up.
func (p *ConnectionPool) Acquire(ctx context.Context, key Key) (*Connection, error) {
	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, connectError(key.String(), ErrPoolClosed)
		}
		h := p.hostLocked(key)
		if c := p.takeIdleLocked(h); c != nil {
			c.state = StateInUse
			c.checkedOut = true
			c.uses++
			p.stats.Reuses++
			p.mu.Unlock()
			p.meter.Counter("minihttp_conn_reuse_total", 1)
			return c, nil
		}
		if h.sem == nil || h.sem.TryAcquire(1) {
			return p.dialLocked(ctx, key, h)
		}
		if h.ready == nil {
			h.ready = make(chan struct{})
		}
		ready := h.ready
		h.waiting++
		p.mu.Unlock()
		select {
		case <-ready:
			p.mu.Lock()
			h.waiting--
		case <-ctx.Done():
			p.mu.Lock()
			h.waiting--
			p.forgetHostLocked(key, h)
			p.mu.Unlock()
			return nil, connectError(key.String(), ctx.Err())
		}
	}
}

// dialLocked opens a connection for h, which already holds a slot. It is
// called with p.mu held and returns with it released.
func (p *ConnectionPool) dialLocked(ctx context.Context, key Key, h *hostConns) (*Connection, error) {
	h.open++
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	nc, err := p.dial(ctx, key)
	if err != nil {
		p.mu.Lock()
		p.dropLocked(h)
		p.forgetHostLocked(key, h)
		p.mu.Unlock()
		p.logger.Logf(obs.Error, "dial %s failed: %v", key, err)
		return nil, connectError(key.String(), err)
	}
	c := newConnection(id, key, nc, p.now())
	c.checkedOut = true
	c.uses = 1
	p.mu.Lock()
	p.stats.Dials++
	p.mu.Unlock()
	p.meter.Counter("minihttp_conn_dial_total", 1)
	p.logger.Logf(obs.Debug, "conn %d dialed %s", id, key)
	return c, nil
}

func (p *ConnectionPool) dial(ctx context.Context, key Key) (net.Conn, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if p.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()
	}
	return p.dialer.DialContext(ctx, "tcp", key.String())
}

// Release hands c back. It is pooled only when keepAlive is set, c is still
// open and the pool is open; otherwise c is closed. A full idle store evicts
// its oldest entry. Callers waiting in Acquire for that host are woken either
// way. Releasing a connection that is not checked out is a no-op.
func (p *ConnectionPool) Release(c *Connection, keepAlive bool) {
	if c == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !c.checkedOut {
		return
	}
	c.checkedOut = false
	h := p.hostLocked(c.key)
	if !keepAlive || c.state == StateClosed || p.closed {
		c.markClosed()
		p.dropLocked(h)
		p.forgetHostLocked(c.key, h)
		p.stats.Discards++
		p.meter.Counter("minihttp_conn_discard_total", 1)
		p.logger.Logf(obs.Debug, "conn %d to %s discarded (keepAlive=%t state=%s)", c.id, c.key, keepAlive, c.state)
		return
	}
	if len(h.idle) >= p.cfg.MaxIdlePerHost {
		old := h.idle[0]
		h.idle[0] = nil
		h.idle = h.idle[1:]
		old.markClosed()
		p.dropLocked(h)
		p.stats.Evictions++
		p.meter.Counter("minihttp_conn_evict_total", 1)
		p.logger.Logf(obs.Debug, "conn %d to %s evicted for conn %d", old.id, old.key, c.id)
	}
	_ = c.c.SetDeadline(time.Time{})
	c.state = StateIdle
	c.lastUsed = p.now()
	h.idle = append(h.idle, c)
	h.wakeLocked()
}

// takeIdleLocked drops expired entries (always a prefix, since the list is
// ordered by release time) and pops the freshest survivor.
func (p *ConnectionPool) takeIdleLocked(h *hostConns) *Connection {
	p.expireLocked(h, p.now())
	n := len(h.idle)
	if n == 0 {
		return nil
	}
	c := h.idle[n-1]
	h.idle[n-1] = nil
	h.idle = h.idle[:n-1]
	return c
}

func (p *ConnectionPool) expireLocked(h *hostConns, now time.Time) int {
	n := 0
	for len(h.idle) > 0 && h.idle[0].expired(now, p.cfg.IdleTimeout) {
		c := h.idle[0]
		h.idle[0] = nil
		h.idle = h.idle[1:]
		c.markClosed()
		p.dropLocked(h)
		n++
	}
	if n > 0 {
		p.stats.Expired += uint64(n)
		p.meter.Counter("minihttp_conn_expired_total", float64(n))
	}
	return n
}

func (p *ConnectionPool) hostLocked(key Key) *hostConns {
	h := p.hosts[key]
	if h == nil {
		h = &hostConns{}
		if p.cfg.MaxConnsPerHost > 0 {
			h.sem = semaphore.NewWeighted(int64(p.cfg.MaxConnsPerHost))
		}
		p.hosts[key] = h
	}
	return h
}

// dropLocked forgets one open connection of h and frees its slot.
func (p *ConnectionPool) dropLocked(h *hostConns) {
	if h.open > 0 {
		h.open--
	}
	if h.sem != nil {
		h.sem.Release(1)
	}
	h.wakeLocked()
}

func (p *ConnectionPool) forgetHostLocked(key Key, h *hostConns) {
	if h.open == 0 && h.waiting == 0 && len(h.idle) == 0 && p.hosts[key] == h {
		delete(p.hosts, key)
	}
}

// IdleCount returns the number of idle connections stored for key.
func (p *ConnectionPool) IdleCount(key Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h := p.hosts[key]; h != nil {
		return len(h.idle)
	}
	return 0
}

// Stats returns a snapshot of pool counters.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Hosts = len(p.hosts)
	for _, h := range p.hosts {
		s.Idle += len(h.idle)
		s.Open += h.open
	}
	return s
}

// Prune closes idle connections past IdleTimeout and returns how many.
func (p *ConnectionPool) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	n := 0
	for key, h := range p.hosts {
		n += p.expireLocked(h, now)
		p.forgetHostLocked(key, h)
	}
	return n
}

func (p *ConnectionPool) startPruner(every time.Duration) {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := p.Prune(); n > 0 {
					p.logger.Logf(obs.Debug, "pruned %d idle connections", n)
				}
			case <-p.stop:
				return
			}
		}
	}()
}

// CloseIdle closes all idle pooled connections immediately.
func (p *ConnectionPool) CloseIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, h := range p.hosts {
		for i, c := range h.idle {
			c.markClosed()
			p.dropLocked(h)
			h.idle[i] = nil
		}
		h.idle = nil
		p.forgetHostLocked(key, h)
	}
}

// Close stops background pruning and closes idle connections. Connections
// still checked out are closed when they are released.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, h := range p.hosts {
		h.wakeLocked()
	}
	stop, done := p.stop, p.done
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	p.CloseIdle()
}
