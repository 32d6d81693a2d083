package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus" // Logrus for structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// ErrRouterClosed is returned by Acquire after Shutdown.
var ErrRouterClosed = errors.New("connection router is shut down")

// Dialer opens a database handle for a DSN.
type Dialer func(ctx context.Context, dsn string) (*gorm.DB, error)

// DefaultDialTimeout bounds opening a tenant connection when no timeout is configured.
const DefaultDialTimeout = 5 * time.Second

// Option configures a Router
type Option func(*Router)

// WithDialTimeout bounds how long Acquire waits for a new connection.
// Non-positive values keep the default.
func WithDialTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.dialTimeout = d
		}
	}
}

// Handle is a tenant database connection leased from the Router.
// Every successful Acquire must be paired with one Release.
type Handle struct {
	DB *gorm.DB

	key    string
	dsn    string
	router *Router

	mu       sync.Mutex
	refs     int
	lastUsed time.Time
	retired  bool // replaced or evicted; disposed once refs drops to zero
	disposed bool
}

// Key returns the routing key the handle serves
func (h *Handle) Key() string {
	return h.key
}

// Release ends a lease and refreshes the last-used timestamp.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.refs > 0 {
		h.refs--
	}
	h.lastUsed = h.router.now()
	dispose := h.retired && h.refs == 0 && !h.disposed
	if dispose {
		h.disposed = true
	}
	h.mu.Unlock()

	if dispose {
		h.router.forget(h)
		h.router.disposeAsync(h)
	}
}

func (h *Handle) idle(now time.Time, maxIdle time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs == 0 && now.Sub(h.lastUsed) >= maxIdle
}

type entry struct {
	mu     sync.Mutex // serialises create, replace and evict for one key
	handle *Handle
	dead   bool // removed from the map; acquirers must look the key up again
}

// Router caches one live database handle per tenant routing key.
// Tenants never wait on each other: the map lock is only held for lookups,
// dialing happens under the per-key lock.
type Router struct {
	dial        Dialer
	dialTimeout time.Duration
	log         logrus.FieldLogger
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	retired map[*Handle]struct{} // replaced handles still leased by a request
	closed  bool

	disposals sync.WaitGroup
}

// NewRouter builds a router. A nil dialer defaults to Open.
func NewRouter(dial Dialer, log logrus.FieldLogger, opts ...Option) *Router {
	if dial == nil {
		dial = Open
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Router{
		dial:        dial,
		dialTimeout: DefaultDialTimeout,
		log:         log.WithField("component", "connection_router"),
		now:         time.Now,
		entries:     make(map[string]*entry),
		retired:     make(map[*Handle]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the cached handle for key, dialing a new one when none is
// cached or when dsn differs from the cached handle's DSN. The stale handle is
// disposed in the background once no request holds it.
func (r *Router) Acquire(ctx context.Context, key, dsn string) (*Handle, error) {
	if key == "" {
		return nil, errors.New("routing key is required")
	}
	for {
		e, err := r.entryFor(key)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if e.dead {
			// Evicted between lookup and lock; take the fresh entry.
			e.mu.Unlock()
			continue
		}
		h, err := r.acquireLocked(ctx, e, key, dsn)
		e.mu.Unlock()
		return h, err
	}
}

func (r *Router) entryFor(key string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRouterClosed
	}
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	return e, nil
}

func (r *Router) acquireLocked(ctx context.Context, e *entry, key, dsn string) (*Handle, error) {
	if h := e.handle; h != nil {
		if h.dsn == dsn {
			h.mu.Lock()
			h.refs++
			h.lastUsed = r.now()
			h.mu.Unlock()
			return h, nil
		}
		e.handle = nil
		r.log.WithField("routing_key", key).Info("Tenant connection string changed, replacing handle")
		r.retire(h)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gdb, err := r.dialWithin(ctx, key, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect tenant store %q: %w", key, err)
	}
	h := &Handle{DB: gdb, key: key, dsn: dsn, router: r, refs: 1, lastUsed: r.now()}
	e.handle = h
	r.log.WithField("routing_key", key).Debug("Tenant connection opened")
	return h, nil
}

// dialWithin runs the dialer under the dial timeout. The per-key lock is held
// while dialing, so a dialer that ignores ctx must not hold it past the
// deadline: the late handle is closed when it eventually arrives.
func (r *Router) dialWithin(ctx context.Context, key, dsn string) (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, r.dialTimeout)
	defer cancel()

	type result struct {
		db  *gorm.DB
		err error
	}
	done := make(chan result, 1)
	go func() {
		gdb, err := r.dial(ctx, dsn)
		done <- result{gdb, err}
	}()

	select {
	case res := <-done:
		return res.db, res.err
	case <-ctx.Done():
		r.disposals.Add(1)
		go func() {
			defer r.disposals.Done()
			if res := <-done; res.err == nil && res.db != nil {
				_ = r.dispose(&Handle{DB: res.db, key: key})
			}
		}()
		return nil, ctx.Err()
	}
}

// retire disposes h now if unused, or marks it for disposal on its last Release.
func (r *Router) retire(h *Handle) {
	h.mu.Lock()
	h.retired = true
	dispose := h.refs == 0 && !h.disposed
	if dispose {
		h.disposed = true
	} else if !h.disposed {
		// tracked while h.mu is held so the last Release cannot forget it first
		r.mu.Lock()
		r.retired[h] = struct{}{}
		r.mu.Unlock()
	}
	h.mu.Unlock()

	if dispose {
		r.disposeAsync(h)
	}
}

func (r *Router) forget(h *Handle) {
	r.mu.Lock()
	delete(r.retired, h)
	r.mu.Unlock()
}

func (r *Router) disposeAsync(h *Handle) {
	r.disposals.Add(1)
	go func() {
		defer r.disposals.Done()
		_ = r.dispose(h)
	}()
}

func (r *Router) dispose(h *Handle) error {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"routing_key": h.key,
			"error":       err.Error(),
		}).Warn("Failed to close tenant connection")
		return err
	}
	r.log.WithField("routing_key", h.key).Debug("Tenant connection closed")
	return nil
}

// EvictIdle disposes every handle that no request holds and that has been
// idle for at least maxIdle. It returns the number of evicted handles.
func (r *Router) EvictIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	snapshot := make(map[string]*entry, len(r.entries))
	for k, e := range r.entries {
		snapshot[k] = e
	}
	r.mu.Unlock()

	now := r.now()
	evicted := 0
	for key, e := range snapshot {
		e.mu.Lock()
		h := e.handle
		if !e.dead && (h == nil || h.idle(now, maxIdle)) {
			e.handle = nil
			e.dead = true
			r.mu.Lock()
			if r.entries[key] == e {
				delete(r.entries, key)
			}
			r.mu.Unlock()
			if h != nil {
				r.retire(h)
				evicted++
			}
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		r.log.WithField("evicted", evicted).Info("Evicted idle tenant connections")
	}
	return evicted
}

// Len returns the number of live cached handles
func (r *Router) Len() int {
	r.mu.Lock()
	snapshot := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.Unlock()

	n := 0
	for _, e := range snapshot {
		e.mu.Lock()
		if e.handle != nil {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Shutdown disposes every handle, in use or not, and refuses new acquisitions.
// A failing disposal does not stop the others; all failures are joined.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	snapshot := r.entries
	r.entries = make(map[string]*entry)
	leased := make([]*Handle, 0, len(r.retired))
	for h := range r.retired {
		leased = append(leased, h)
	}
	r.retired = make(map[*Handle]struct{})
	r.mu.Unlock()

	var handles []*Handle
	claim := func(h *Handle) {
		h.mu.Lock()
		if !h.disposed {
			h.disposed = true
			h.retired = true
			handles = append(handles, h)
		}
		h.mu.Unlock()
	}
	for _, e := range snapshot {
		e.mu.Lock()
		if e.handle != nil {
			claim(e.handle)
			e.handle = nil
		}
		e.dead = true
		e.mu.Unlock()
	}
	for _, h := range leased {
		claim(h)
	}

	errs := make([]error, len(handles))
	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h *Handle) {
			defer wg.Done()
			errs[i] = r.dispose(h)
		}(i, h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		r.disposals.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("connection router shutdown: %w", ctx.Err())
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("connection router shutdown: %w", err)
	}
	r.log.WithField("closed", len(handles)).Info("Connection router shut down")
	return nil
}
