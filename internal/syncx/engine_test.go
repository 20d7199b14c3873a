package syncx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
	"github.com/ariefcatur/go-menu-orders.git/internal/pushc"
)

// fakeAPI is an in-memory stand-in for the Order Lifecycle API.
type fakeAPI struct {
	mu      sync.Mutex
	byID    map[string]orders.Order
	failPut bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{byID: map[string]orders.Order{}}
}

func (f *fakeAPI) delete(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, orderID)
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.mux(t))
	t.Cleanup(srv.Close)
	return srv
}

// mux exposes the raw routes so stream tests can graft an SSE endpoint on.
func (f *fakeAPI) mux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var in orders.CreateInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		now := time.Now().UTC()
		o := orders.Order{
			OrderID:       orders.NewOrderID(now),
			OutletID:      in.OutletID,
			Items:         in.Items,
			TotalAmount:   in.TotalAmount,
			OrderStatus:   orders.StatusTaken,
			PaymentStatus: orders.PaymentUnpaid,
			Comments:      in.Comments,
			Timestamps:    orders.Timestamps{Created: now, Updated: now},
		}
		f.mu.Lock()
		f.byID[o.OrderID] = o
		f.mu.Unlock()
		writeOrder(w, http.StatusCreated, o)
	})
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		o, ok := f.byID[id]
		f.mu.Unlock()
		if !ok {
			writeErr(w, http.StatusNotFound, "Order not found")
			return
		}
		writeOrder(w, http.StatusOK, o)
	})
	mux.HandleFunc("PUT /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failPut
		f.mu.Unlock()
		if fail {
			writeErr(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		id := r.PathValue("id")
		var in orders.UpdateInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		f.mu.Lock()
		o, ok := f.byID[id]
		if ok {
			if in.OrderStatus != nil {
				o.OrderStatus = *in.OrderStatus
			}
			if in.PaymentStatus != nil {
				o.PaymentStatus = *in.PaymentStatus
			}
			if in.Comments != nil {
				o.Comments = *in.Comments
			}
			if in.Items != nil {
				o.Items = in.Items
			}
			if in.TotalAmount != nil {
				o.TotalAmount = *in.TotalAmount
			}
			o.Timestamps.Updated = time.Now().UTC()
			f.byID[id] = o
		}
		f.mu.Unlock()
		if !ok {
			writeErr(w, http.StatusNotFound, "Order not found")
			return
		}
		writeOrder(w, http.StatusOK, o)
	})
	return mux
}

func (f *fakeAPI) setStatus(orderID string, st orders.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.byID[orderID]
	o.OrderStatus = st
	f.byID[orderID] = o
}

func writeOrder(w http.ResponseWriter, code int, o orders.Order) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]orders.Order{"order": o})
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

type testEngine struct {
	*Engine
	store     *Store
	api       *fakeAPI
	completed []orders.Order
	updated   []orders.Order
}

func newTestEngine(t *testing.T, api *fakeAPI, srvURL string) *testEngine {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	te := &testEngine{store: store, api: api}
	eng, err := New(Config{
		OutletID:        testOutletID,
		Store:           store,
		API:             NewAPIClient(srvURL),
		OnOrderUpdate:   func(o orders.Order) { te.updated = append(te.updated, o) },
		OnOrderComplete: func(o orders.Order) { te.completed = append(te.completed, o) },
	})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	te.Engine = eng
	return te
}

func TestCreateSeedsActiveOrder(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	o, err := te.Create(context.Background(), orders.CreateInput{
		Items: []orders.OrderItem{{
			ID: "x-1", Name: "Tea", Quantity: 2, Price: 20,
			QuantityID: "q1", QuantityDescription: "Regular",
		}},
		TotalAmount: 40,
	})
	require.NoError(t, err)

	active := te.ActiveOrder()
	require.NotNil(t, active)
	assert.Equal(t, o.OrderID, active.OrderID)
	assert.Equal(t, 40.0, active.TotalAmount)
	assert.Equal(t, orders.StatusTaken, active.OrderStatus)
	assert.Equal(t, orders.PaymentUnpaid, active.PaymentStatus)
	assert.Equal(t, testOutletID, active.OutletID)
	assert.False(t, te.LastSyncTime().IsZero())
	assert.False(t, te.Loading())
	require.Len(t, te.updated, 1)
}

func TestServedUnpaidStaysActiveAndIsReadyToFinalize(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	o, err := te.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "x-1", Name: "Tea", Quantity: 2, Price: 20, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 40,
	})
	require.NoError(t, err)

	// pushed update: served but still unpaid -> not completed
	pushed := *o
	pushed.OrderStatus = orders.StatusServed
	te.ingestPushed(pushed)

	active := te.ActiveOrder()
	require.NotNil(t, active)
	assert.Equal(t, orders.StatusServed, active.OrderStatus)
	assert.True(t, active.ReadyToFinalize())
	assert.False(t, active.Completed())
	assert.Empty(t, te.completed)
}

func TestFinalizeMovesOrderToHistory(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	o, err := te.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "x-1", Name: "Tea", Quantity: 2, Price: 20, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 40,
	})
	require.NoError(t, err)

	served := orders.StatusServed
	paid := orders.PaymentPaid
	_, err = te.Update(context.Background(), o.OrderID, orders.UpdateInput{
		OrderStatus:   &served,
		PaymentStatus: &paid,
	})
	require.NoError(t, err)

	assert.Nil(t, te.ActiveOrder())
	hist := te.History()
	require.Len(t, hist, 1)
	assert.Equal(t, o.OrderID, hist[0].OrderID)
	require.Len(t, te.completed, 1)
	assert.Equal(t, o.OrderID, te.completed[0].OrderID)
}

func TestCompletedIngestIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	done := sampleOrder("ORD-9-DDDD0000")
	done.OrderStatus = orders.StatusServed
	done.PaymentStatus = orders.PaymentPaid

	for i := 0; i < 3; i++ {
		te.Ingest(done)
	}

	assert.Nil(t, te.ActiveOrder())
	hist := te.History()
	require.Len(t, hist, 1)
	assert.Equal(t, done.OrderID, hist[0].OrderID)
}

func TestPushedEventForUnrelatedOrderIsIgnored(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	mine, err := te.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "x-1", Name: "Tea", Quantity: 2, Price: 20, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 40,
	})
	require.NoError(t, err)

	other := sampleOrder("ORD-8-EEEE0000")
	other.OrderStatus = orders.StatusServed
	te.ingestPushed(other)

	active := te.ActiveOrder()
	require.NotNil(t, active)
	assert.Equal(t, mine.OrderID, active.OrderID)
	assert.Equal(t, orders.StatusTaken, active.OrderStatus)
}

func TestBootstrapRestoresStateAfterRestart(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)

	store, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := Config{OutletID: testOutletID, Store: store, API: NewAPIClient(srv.URL)}
	eng, err := New(cfg)
	require.NoError(t, err)

	done := sampleOrder("ORD-2-BBBB0000")
	done.OrderStatus = orders.StatusServed
	done.PaymentStatus = orders.PaymentPaid
	eng.Ingest(done)

	active := sampleOrder("ORD-1-AAAA0000")
	eng.Ingest(active)
	eng.Close()

	// a fresh engine for the same outlet boots from local storage alone
	eng2, err := New(cfg)
	require.NoError(t, err)
	defer eng2.Close()

	got := eng2.ActiveOrder()
	require.NotNil(t, got)
	assert.Equal(t, active.OrderID, got.OrderID)
	hist := eng2.History()
	require.Len(t, hist, 1)
	assert.Equal(t, done.OrderID, hist[0].OrderID)
	assert.False(t, eng2.LastSyncTime().IsZero())
}

func TestRefreshNotFoundClearsActiveWithoutHistoryPollution(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	o, err := te.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "x-1", Name: "Tea", Quantity: 2, Price: 20, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 40,
	})
	require.NoError(t, err)

	api.delete(o.OrderID)

	require.NoError(t, te.Refresh(context.Background()))
	assert.Nil(t, te.ActiveOrder())
	assert.Empty(t, te.History())
	assert.False(t, te.NetworkError())
}

func TestRefreshFetchesLatestActiveOrder(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	o, err := te.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "x-1", Name: "Tea", Quantity: 2, Price: 20, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 40,
	})
	require.NoError(t, err)

	// staff moved the order along; this client missed the push
	api.mu.Lock()
	stored := api.byID[o.OrderID]
	stored.OrderStatus = orders.StatusPreparing
	api.byID[o.OrderID] = stored
	api.mu.Unlock()

	require.NoError(t, te.Refresh(context.Background()))
	active := te.ActiveOrder()
	require.NotNil(t, active)
	assert.Equal(t, orders.StatusPreparing, active.OrderStatus)
}

func TestRefreshWithoutActiveOrderAsksPushToReconnect(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)

	store, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	defer store.Close()

	push := pushc.New("http://127.0.0.1:1", testOutletID)
	push.ReconnectDelay = time.Hour // keep it pending for the assertion
	eng, err := New(Config{OutletID: testOutletID, Store: store, API: NewAPIClient(srv.URL), Push: push})
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Refresh(context.Background()))
	assert.Equal(t, pushc.StatusReconnecting, push.Status())
	// the engine's view must mirror the client, not lag at disconnected
	assert.Equal(t, pushc.StatusReconnecting, eng.ConnectionStatus())
}

func TestCreateNetworkFailureIsPropagatedAndSticky(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)
	srv.Close() // take the API away

	_, err := te.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "x-1", Name: "Tea", Quantity: 1, Price: 20, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 20,
	})
	require.Error(t, err)
	assert.True(t, te.NetworkError())
	assert.Nil(t, te.ActiveOrder())
	assert.False(t, te.Loading())
}

func TestUpdateServerErrorIsNotANetworkError(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)
	te := newTestEngine(t, api, srv.URL)

	o, err := te.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "x-1", Name: "Tea", Quantity: 1, Price: 20, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 20,
	})
	require.NoError(t, err)

	api.mu.Lock()
	api.failPut = true
	api.mu.Unlock()
	comments := "extra ice"
	_, err = te.Update(context.Background(), o.OrderID, orders.UpdateInput{Comments: &comments})
	require.Error(t, err)
	assert.False(t, te.NetworkError())
	// the failed update must not clobber local state
	require.NotNil(t, te.ActiveOrder())
}

func TestClearActiveOrderPersists(t *testing.T) {
	api := newFakeAPI()
	srv := api.server(t)

	store, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	defer store.Close()

	cfg := Config{OutletID: testOutletID, Store: store, API: NewAPIClient(srv.URL)}
	eng, err := New(cfg)
	require.NoError(t, err)

	eng.Ingest(sampleOrder("ORD-1-AAAA0000"))
	eng.ClearActiveOrder()
	eng.Close()

	eng2, err := New(cfg)
	require.NoError(t, err)
	defer eng2.Close()
	assert.Nil(t, eng2.ActiveOrder())
}

func TestPollingTakesOverWhenStreamingUnsupported(t *testing.T) {
	api := newFakeAPI()
	mux := api.mux(t)
	mux.HandleFunc("GET /orders/stream", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotImplemented, "Server-Sent Events are not supported in this environment")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	defer store.Close()

	push := pushc.New(srv.URL, testOutletID)
	eng, err := New(Config{
		OutletID:        testOutletID,
		Store:           store,
		API:             NewAPIClient(srv.URL),
		Push:            push,
		PollInterval:    20 * time.Millisecond,
		DisconnectGrace: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer eng.Close()

	o, err := eng.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "c-1", Name: "Latte", Quantity: 1, Price: 30, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 30,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	require.Eventually(t, push.Unsupported, 2*time.Second, 10*time.Millisecond,
		"501 answer should mark the stream unsupported")

	// the stream is gone for good; a staff-side change must arrive by polling
	api.setStatus(o.OrderID, orders.StatusPreparing)
	require.Eventually(t, func() bool {
		a := eng.ActiveOrder()
		return a != nil && a.OrderStatus == orders.StatusPreparing
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollingActivatesAfterSustainedDisconnect(t *testing.T) {
	api := newFakeAPI()
	mux := api.mux(t)
	mux.HandleFunc("GET /orders/stream", func(w http.ResponseWriter, r *http.Request) {
		// open, flush, drop: the client sees connected then disconnected
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	defer store.Close()

	push := pushc.New(srv.URL, testOutletID)
	eng, err := New(Config{
		OutletID:        testOutletID,
		Store:           store,
		API:             NewAPIClient(srv.URL),
		Push:            push,
		PollInterval:    20 * time.Millisecond,
		DisconnectGrace: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer eng.Close()

	o, err := eng.Create(context.Background(), orders.CreateInput{
		Items:       []orders.OrderItem{{ID: "c-1", Name: "Latte", Quantity: 1, Price: 30, QuantityID: "q1", QuantityDescription: "Regular"}},
		TotalAmount: 30,
	})
	require.NoError(t, err)

	api.setStatus(o.OrderID, orders.StatusPreparing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	// once the drop outlasts the grace period the poller picks up the change
	require.Eventually(t, func() bool {
		a := eng.ActiveOrder()
		return a != nil && a.OrderStatus == orders.StatusPreparing
	}, 2*time.Second, 10*time.Millisecond)
}
