package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ariefcatur/go-menu-orders.git/internal/mongox"
	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
)

var ErrBadOutletID = errors.New("invalid outlet id format")

// Subscription is one outlet-scoped view of the order change feed. Events()
// is closed after the feed ends; Close is safe to call more than once and
// safe to call concurrently with the feed erroring out server-side.
type Subscription interface {
	Events() <-chan orders.StreamEvent
	Close()
}

// Subscriber opens change-feed subscriptions. The HTTP stream handler only
// depends on this interface.
type Subscriber interface {
	Subscribe(ctx context.Context, outletID string) (Subscription, error)
}

// Notifier turns the order collection's change stream into typed, per-outlet
// events. Each subscriber drives its own watch handle; there is no cross-
// subscriber fan-out.
type Notifier struct {
	Orders *mongo.Collection
}

func (n *Notifier) Subscribe(ctx context.Context, outletID string) (Subscription, error) {
	if !mongox.ValidObjectID(outletID) {
		return nil, fmt.Errorf("%w: %q", ErrBadOutletID, outletID)
	}

	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.D{
		{Key: "fullDocument.outletId", Value: outletID},
		{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
	}}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	watchCtx, cancel := context.WithCancel(ctx)
	cs, err := n.Orders.Watch(watchCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open change stream: %w", err)
	}

	s := &subscription{
		outletID: outletID,
		events:   make(chan orders.StreamEvent, 16),
		cancel:   cancel,
	}
	go s.run(watchCtx, cs)
	return s, nil
}

type subscription struct {
	outletID  string
	events    chan orders.StreamEvent
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *subscription) Events() <-chan orders.StreamEvent { return s.events }

func (s *subscription) Close() {
	s.closeOnce.Do(s.cancel)
}

// changeDoc is the slice of a change-stream document we care about.
type changeDoc struct {
	OperationType string        `bson:"operationType"`
	FullDocument  *orders.Order `bson:"fullDocument"`
}

func (s *subscription) run(ctx context.Context, cs *mongo.ChangeStream) {
	defer close(s.events)
	defer func() {
		// the stream must not outlive the subscription under any exit path
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = cs.Close(closeCtx)
		s.Close()
	}()

	// synthetic hello so clients can tell "open, quiet" from "never opened"
	s.send(ctx, orders.StreamEvent{
		Type:      orders.StreamConnection,
		Message:   "Connected to order stream",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		OutletID:  s.outletID,
	})

	for cs.Next(ctx) {
		var ch changeDoc
		if err := cs.Decode(&ch); err != nil {
			log.Printf("notifier: decode change outlet=%s: %v", s.outletID, err)
			continue
		}
		if ch.FullDocument == nil {
			continue
		}
		s.send(ctx, orders.StreamEvent{
			Type:          Classify(ch.OperationType, ch.FullDocument),
			Order:         ch.FullDocument,
			OperationType: ch.OperationType,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
	}

	// a feed error is reported in-band, then the stream terminates
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		log.Printf("notifier: change stream outlet=%s: %v", s.outletID, err)
		s.send(ctx, orders.StreamEvent{
			Type:      orders.StreamErrorEvent,
			Message:   "Stream error occurred",
			Error:     err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *subscription) send(ctx context.Context, ev orders.StreamEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Classify maps a store operation onto a stream event type: inserts are
// new orders; updates and replaces are completions when the resulting
// document satisfies the completion predicate, plain updates otherwise.
func Classify(operationType string, o *orders.Order) string {
	if operationType == "insert" {
		return orders.StreamNewOrder
	}
	if o != nil && o.Completed() {
		return orders.StreamOrderCompleted
	}
	return orders.StreamOrderUpdated
}
