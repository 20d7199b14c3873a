package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-menu-orders.git/internal/kafka"
	"github.com/ariefcatur/go-menu-orders.git/internal/mongox"
	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
	"github.com/ariefcatur/go-menu-orders.git/internal/redisx"
)

type OrdersHandler struct {
	Repo     *orders.Repo
	Producer *kafkax.Producer
	Redis    *redis.Client
	Service  string
}

type orderResp struct {
	Message string        `json:"message,omitempty"`
	Order   *orders.Order `json:"order"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/orders", h.listOrders)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}", h.updateOrder)
	})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if in.OutletID == "" || !mongox.ValidObjectID(in.OutletID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid outlet ID"})
		return
	}
	if len(in.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid order data"})
		return
	}
	seen := make(map[string]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity < 1 || it.Price < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid order data"})
			return
		}
		// one line per menu item; quantity carries multiples
		if _, dup := seen[it.ID]; dup {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Duplicate item in order"})
			return
		}
		seen[it.ID] = struct{}{}
	}
	// totalAmount is trusted from the client and only sanity-checked for
	// sign; it is not recomputed from items.
	if in.TotalAmount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid total amount"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.Create(ctx, in)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	h.cacheOrder(ctx, o)
	h.publish(orders.TopicOrderCreated, orders.EventOrderCreated, o, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusCreated, orderResp{Message: "Order created successfully", Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, store second
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrder, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, map[string]json.RawMessage{"order": json.RawMessage(s)})
			return
		}
	}

	o, err := h.Repo.GetByOrderID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, orderResp{Order: o})
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}
	var in orders.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Repo.Update(ctx, orderID, in)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	h.cacheOrder(ctx, o)
	if o.Completed() {
		h.publish(orders.TopicOrderCompleted, orders.EventOrderCompleted, o, r.Header.Get("X-Request-Id"))
	} else {
		h.publish(orders.TopicOrderUpdated, orders.EventOrderUpdated, o, r.Header.Get("X-Request-Id"))
	}

	writeJSON(w, http.StatusOK, orderResp{Message: "Order updated successfully", Order: o})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	outletID := r.URL.Query().Get("outletId")
	if outletID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Outlet ID is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Repo.ListByOutlet(ctx, outletID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]orders.Order{"orders": list})
}

// cacheOrder keeps GET /orders/{id} off the store for hot orders; failures
// are non-fatal.
func (h *OrdersHandler) cacheOrder(ctx context.Context, o *orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrder, o.OrderID)
	_ = h.Redis.Set(ctx, key, kafkax.MustMarshal(o), redisx.TTLOrderCache).Err()
}

func (h *OrdersHandler) publish(topic, eventType string, o *orders.Order, traceID string) {
	if h.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: o.OrderID,
		Payload:       kafkax.MustMarshal(orders.OrderEventPayload{Order: *o}),
	}
	h.Producer.Publish(topic, orders.PartitionKey(o.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
