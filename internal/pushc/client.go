// Package pushc is the customer-side half of the live-update transport: one
// SSE connection per outlet, surfaced as a typed event channel.
package pushc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-menu-orders.git/internal/mongox"
	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
)

// Event is the tagged union delivered on Events(). Consumers switch on the
// concrete type instead of wiring optional callbacks.
type Event interface{ pushEvent() }

type Connected struct{}
type Disconnected struct{}
type NewOrder struct{ Order orders.Order }
type OrderUpdated struct{ Order orders.Order }
type OrderCompleted struct{ Order orders.Order }
type StreamError struct{ Message string }

func (Connected) pushEvent()      {}
func (Disconnected) pushEvent()   {}
func (NewOrder) pushEvent()       {}
func (OrderUpdated) pushEvent()   {}
func (OrderCompleted) pushEvent() {}
func (StreamError) pushEvent()    {}

// ErrStreamingUnsupported marks a 501 answer from the stream endpoint; the
// sync engine switches to polling and never retries the stream.
var ErrStreamingUnsupported = errors.New("streaming unsupported in this environment")

const defaultReconnectDelay = time.Second

// Client holds at most one stream at a time. It does not retry on its own:
// a transport drop flips it to disconnected and the owner decides when to
// call Reconnect. Close is safe to call twice.
type Client struct {
	baseURL  string
	outletID string
	httpc    *http.Client

	// ReconnectDelay is the fixed pause before a manual reconnect re-opens
	// the stream. Overridable for tests.
	ReconnectDelay time.Duration

	mu          sync.Mutex
	status      Status
	connecting  bool
	attempts    int
	cancel      context.CancelFunc
	timer       *time.Timer
	unsupported bool
	closed      bool

	events chan Event
}

func New(baseURL, outletID string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		outletID:       outletID,
		httpc:          &http.Client{}, // no timeout: the stream is long-lived
		ReconnectDelay: defaultReconnectDelay,
		status:         StatusDisconnected,
		events:         make(chan Event, 64),
	}
}

func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Unsupported reports whether the endpoint answered 501; sticky.
func (c *Client) Unsupported() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsupported
}

// Connect opens the stream. No-op without an outlet id, with a malformed
// outlet id, or while an attempt is already in flight, so rapid repeated
// calls never stack duplicate streams.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.closed || c.unsupported ||
		c.outletID == "" || !mongox.ValidObjectID(c.outletID) ||
		c.connecting || c.status == StatusConnected {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	c.status = StatusConnecting
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Reconnect resets the attempt counter, tears down any live stream and
// re-opens after a short fixed delay. The reconnecting status is the UI's
// "trying again" signal.
func (c *Client) Reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.connecting = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.status = StatusReconnecting
	c.timer = time.AfterFunc(c.ReconnectDelay, c.Connect)
	c.mu.Unlock()
}

// Close tears down the stream, cancels any pending reconnect and closes the
// event channel. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	close(c.events)
}

func (c *Client) run(ctx context.Context) {
	url := fmt.Sprintf("%s/orders/stream?outletId=%s", c.baseURL, c.outletID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.dropped(ctx)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.mu.Lock()
		c.attempts++
		c.mu.Unlock()
		c.dropped(ctx)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		c.handleUnsupported(resp.Body)
		return
	}
	if resp.StatusCode != http.StatusOK {
		c.emit(StreamError{Message: fmt.Sprintf("stream request failed: %s", resp.Status)})
		c.dropped(ctx)
		return
	}

	c.mu.Lock()
	c.connecting = false
	c.attempts = 0
	c.status = StatusConnected
	c.mu.Unlock()
	c.emit(Connected{})

	c.readFrames(resp.Body)
	c.dropped(ctx)
}

// readFrames splits the body into `data:` frames. A frame that fails to
// parse is logged and dropped; it is not a connection error.
func (c *Client) readFrames(body io.Reader) {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if data.Len() > 0 {
				c.dispatch(data.String())
				data.Reset()
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimSpace(rest))
		}
		// other SSE fields (event:, id:, comments) are not used by the server
	}
}

func (c *Client) dispatch(raw string) {
	var ev orders.StreamEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		log.Printf("pushc: dropping malformed frame: %v", err)
		return
	}
	switch ev.Type {
	case orders.StreamConnection:
		// consumed internally; the Connected event already fired on open
	case orders.StreamNewOrder:
		if ev.Order != nil {
			c.emit(NewOrder{Order: *ev.Order})
		}
	case orders.StreamOrderUpdated:
		if ev.Order != nil {
			c.emit(OrderUpdated{Order: *ev.Order})
		}
	case orders.StreamOrderCompleted:
		if ev.Order != nil {
			c.emit(OrderCompleted{Order: *ev.Order})
		}
	case orders.StreamErrorEvent:
		msg := ev.Error
		if msg == "" {
			msg = ev.Message
		}
		c.emit(StreamError{Message: msg})
	default:
		log.Printf("pushc: dropping frame with unknown type %q", ev.Type)
	}
}

func (c *Client) handleUnsupported(body io.Reader) {
	var payload struct {
		Message  string `json:"message"`
		Fallback string `json:"fallback"`
	}
	_ = json.NewDecoder(body).Decode(&payload)
	msg := payload.Message
	if msg == "" {
		msg = ErrStreamingUnsupported.Error()
	}

	c.mu.Lock()
	c.unsupported = true
	c.connecting = false
	c.status = StatusDisconnected
	c.mu.Unlock()
	c.emit(StreamError{Message: msg})
	c.emit(Disconnected{})
}

// dropped handles a transport-level end of stream. When the teardown was
// initiated locally (Reconnect/Close already cancelled the context) the
// state is owned by that caller and nothing is emitted.
func (c *Client) dropped(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connecting = false
	c.status = StatusDisconnected
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.emit(Disconnected{})
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		log.Printf("pushc: event buffer full, dropping %T", ev)
	}
}
