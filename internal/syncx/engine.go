// Package syncx reconciles push events, manual refresh and locally cached
// state into one consistent view of "my current order" per outlet, persisted
// across restarts.
package syncx

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
	"github.com/ariefcatur/go-menu-orders.git/internal/pushc"
)

const (
	defaultPollInterval    = 15 * time.Second
	defaultDisconnectGrace = 10 * time.Second
)

type Config struct {
	OutletID string
	Store    *Store
	API      *APIClient

	// Push may be nil when live updates are unavailable; the engine then
	// relies on polling alone.
	Push *pushc.Client

	// PollInterval drives the fallback poller; DisconnectGrace is how long
	// the push client may stay disconnected before polling kicks in.
	PollInterval    time.Duration
	DisconnectGrace time.Duration

	OnOrderUpdate   func(orders.Order)
	OnOrderComplete func(orders.Order)
}

// Engine is the single source of truth for one outlet's order view.
// Construct exactly one Engine per outlet per process: the persisted state
// is keyed by outlet and two instances would race on it.
type Engine struct {
	cfg Config

	mu           sync.Mutex
	active       *orders.Order
	history      []orders.Order
	lastSync     time.Time
	connStatus   pushc.Status
	disconnected time.Time // when the push client last dropped
	loading      bool
	netErr       bool
	closed       bool
}

// New bootstraps the engine from the store; the returned state is what the
// caller renders before any network activity completes.
func New(cfg Config) (*Engine, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = defaultDisconnectGrace
	}
	st, err := cfg.Store.Load(cfg.OutletID)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		active:     st.ActiveOrder,
		history:    st.OrderHistory,
		lastSync:   st.LastSyncTime,
		connStatus: pushc.StatusDisconnected,
	}, nil
}

func (e *Engine) ActiveOrder() *orders.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return nil
	}
	cp := *e.active
	return &cp
}

func (e *Engine) History() []orders.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]orders.Order, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) LastSyncTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// ConnectionStatus mirrors the push client's state when one is attached, so
// a reconnect kicked off by Refresh shows up here as reconnecting too.
func (e *Engine) ConnectionStatus() pushc.Status {
	if e.cfg.Push != nil {
		return e.cfg.Push.Status()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connStatus
}

func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// NetworkError reports the sticky transport-failure flag; once set it stays
// set so the UI can prompt for a reload instead of retrying invisibly.
func (e *Engine) NetworkError() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.netErr
}

// Run consumes push events and drives the polling fallback until ctx ends.
// The poller only acts while the stream is unsupported or the client has
// been disconnected longer than the grace period.
func (e *Engine) Run(ctx context.Context) {
	if e.cfg.Push == nil {
		e.pollLoop(ctx, nil)
		return
	}
	e.cfg.Push.Connect()
	e.pollLoop(ctx, e.cfg.Push.Events())
}

func (e *Engine) pollLoop(ctx context.Context, events <-chan pushc.Event) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil // push client closed; polling keeps running
				continue
			}
			e.handlePush(ev)
		case <-ticker.C:
			if e.shouldPoll() {
				e.pollOnce(ctx)
			}
		}
	}
}

func (e *Engine) handlePush(ev pushc.Event) {
	switch v := ev.(type) {
	case pushc.Connected:
		e.mu.Lock()
		e.connStatus = pushc.StatusConnected
		e.disconnected = time.Time{}
		e.mu.Unlock()
	case pushc.Disconnected:
		e.mu.Lock()
		e.connStatus = pushc.StatusDisconnected
		e.disconnected = time.Now()
		e.mu.Unlock()
	case pushc.NewOrder:
		e.ingestPushed(v.Order)
	case pushc.OrderUpdated:
		e.ingestPushed(v.Order)
	case pushc.OrderCompleted:
		e.ingestPushed(v.Order)
	case pushc.StreamError:
		log.Printf("syncx: stream error: %s", v.Message)
	}
}

// ingestPushed applies the identity filter: the engine tracks exactly one
// order, so a pushed document about any other order must not leak into this
// client's view even though the stream is already outlet-scoped.
func (e *Engine) ingestPushed(o orders.Order) {
	e.mu.Lock()
	cur := e.active
	e.mu.Unlock()
	if cur == nil || cur.OrderID != o.OrderID {
		return
	}
	e.Ingest(o)
}

// Ingest reconciles one order document from any channel. A completed order
// moves to the head of history (deduplicated by id) and clears the active
// slot; anything else becomes the active order. State is persisted
// synchronously before callbacks fire. Ingest never fails: inputs are
// already-validated order documents and persistence errors are only logged.
func (e *Engine) Ingest(o orders.Order) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	now := time.Now()

	if o.Completed() {
		kept := make([]orders.Order, 0, len(e.history)+1)
		kept = append(kept, o)
		for _, h := range e.history {
			if h.OrderID != o.OrderID {
				kept = append(kept, h)
			}
		}
		if len(kept) > historyCap {
			kept = kept[:historyCap]
		}
		e.history = kept
		e.active = nil
		e.lastSync = now
		e.persistLocked()
		cb := e.cfg.OnOrderComplete
		e.mu.Unlock()
		if cb != nil {
			cb(o)
		}
		return
	}

	cp := o
	e.active = &cp
	e.lastSync = now
	e.persistLocked()
	cb := e.cfg.OnOrderUpdate
	e.mu.Unlock()
	if cb != nil {
		cb(o)
	}
}

// Create places a new order and seeds the active slot from the response.
// Errors are propagated so the UI can show inline failure at the point of
// action; transport failures additionally set the sticky network flag.
func (e *Engine) Create(ctx context.Context, in orders.CreateInput) (*orders.Order, error) {
	e.setLoading(true)
	defer e.setLoading(false)

	in.OutletID = e.cfg.OutletID
	o, err := e.cfg.API.Create(ctx, in)
	if err != nil {
		e.noteNetworkErr(err)
		return nil, err
	}
	e.Ingest(*o)
	return o, nil
}

// Update pushes partial fields for an existing order and ingests the result.
func (e *Engine) Update(ctx context.Context, orderID string, in orders.UpdateInput) (*orders.Order, error) {
	e.setLoading(true)
	defer e.setLoading(false)

	o, err := e.cfg.API.Update(ctx, orderID, in)
	if err != nil {
		e.noteNetworkErr(err)
		return nil, err
	}
	e.Ingest(*o)
	return o, nil
}

// Refresh pulls the active order directly from the API. With no active order
// there is nothing to refetch, so refresh means "try to resume live data"
// and asks the push client to reconnect instead.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	var id string
	if e.active != nil {
		id = e.active.OrderID
	}
	e.mu.Unlock()

	if id == "" {
		if e.cfg.Push != nil {
			e.cfg.Push.Reconnect()
		}
		return nil
	}
	return e.fetch(ctx, id)
}

// ClearActiveOrder drops the active order without touching history.
func (e *Engine) ClearActiveOrder() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.active = nil
	e.persistLocked()
}

// Close marks the engine dead so late async completions cannot touch state,
// and tears down the push client.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	if e.cfg.Push != nil {
		e.cfg.Push.Close()
	}
}

func (e *Engine) fetch(ctx context.Context, orderID string) error {
	e.setLoading(true)
	defer e.setLoading(false)

	o, err := e.cfg.API.Get(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		// the order is gone, not an error: clear without polluting history
		e.ClearActiveOrder()
		return nil
	}
	if err != nil {
		e.noteNetworkErr(err)
		return err
	}
	e.Ingest(*o)
	return nil
}

func (e *Engine) shouldPoll() bool {
	if e.cfg.Push == nil {
		return true
	}
	if e.cfg.Push.Unsupported() {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connStatus != pushc.StatusConnected &&
		!e.disconnected.IsZero() &&
		time.Since(e.disconnected) > e.cfg.DisconnectGrace
}

func (e *Engine) pollOnce(ctx context.Context) {
	e.mu.Lock()
	var id string
	if e.active != nil {
		id = e.active.OrderID
	}
	closed := e.closed
	e.mu.Unlock()
	if closed || id == "" {
		return
	}
	if err := e.fetch(ctx, id); err != nil {
		log.Printf("syncx: poll %s: %v", id, err)
	}
}

func (e *Engine) persistLocked() {
	st := State{ActiveOrder: e.active, OrderHistory: e.history, LastSyncTime: e.lastSync}
	if err := e.cfg.Store.Save(e.cfg.OutletID, st); err != nil {
		log.Printf("syncx: persist outlet=%s: %v", e.cfg.OutletID, err)
	}
}

func (e *Engine) setLoading(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.loading = v
}

func (e *Engine) noteNetworkErr(err error) {
	if !isNetworkErr(err) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.netErr = true
}
