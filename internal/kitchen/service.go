package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-menu-orders.git/internal/kafka"
	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
	"github.com/ariefcatur/go-menu-orders.git/internal/redisx"
)

// Service is the staff-side consumer of order lifecycle events: it warms the
// order cache and writes the kitchen display log.
type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderEvent is wired as the consumer handler for every order topic.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderUpdated, orders.EventOrderCompleted:
	default:
		return nil // ignore
	}

	// dedup by event id; redeliveries after a rebalance are expected
	dkey := fmt.Sprintf(redisx.KeyDedup, "kitchen", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		return err
	}
	o := p.Order

	ckey := fmt.Sprintf(redisx.KeyOrder, o.OrderID)
	_ = s.Redis.Set(ctx, ckey, kafkax.MustMarshal(o), redisx.TTLOrderCache).Err()

	log.Printf("kitchen: %s order=%s outlet=%s status=%s/%s items=%d total=%.2f",
		env.EventType, o.OrderID, o.OutletID, o.OrderStatus, o.PaymentStatus, len(o.Items), o.TotalAmount)
	return nil
}
