package syncx

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
)

const testOutletID = "65f0a1b2c3d4e5f607182930"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleOrder(id string) orders.Order {
	return orders.Order{
		OrderID:  id,
		OutletID: testOutletID,
		Items: []orders.OrderItem{{
			ID: "x-1", Name: "Tea", Quantity: 2, Price: 20,
			QuantityID: "q1", QuantityDescription: "Regular",
		}},
		TotalAmount:   40,
		OrderStatus:   orders.StatusTaken,
		PaymentStatus: orders.PaymentUnpaid,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	active := sampleOrder("ORD-1-AAAA0000")
	done := sampleOrder("ORD-2-BBBB0000")
	done.OrderStatus = orders.StatusServed
	done.PaymentStatus = orders.PaymentPaid
	syncTime := time.Now().Truncate(time.Millisecond)

	require.NoError(t, s.Save(testOutletID, State{
		ActiveOrder:  &active,
		OrderHistory: []orders.Order{done},
		LastSyncTime: syncTime,
	}))

	st, err := s.Load(testOutletID)
	require.NoError(t, err)
	require.NotNil(t, st.ActiveOrder)
	assert.Equal(t, active, *st.ActiveOrder)
	require.Len(t, st.OrderHistory, 1)
	assert.Equal(t, done.OrderID, st.OrderHistory[0].OrderID)
	assert.Equal(t, syncTime.UnixMilli(), st.LastSyncTime.UnixMilli())
}

func TestStoreLoadEmpty(t *testing.T) {
	s := newTestStore(t)
	st, err := s.Load(testOutletID)
	require.NoError(t, err)
	assert.Nil(t, st.ActiveOrder)
	assert.Empty(t, st.OrderHistory)
	assert.True(t, st.LastSyncTime.IsZero())
}

func TestStoreNilActiveDeletesEntry(t *testing.T) {
	s := newTestStore(t)

	active := sampleOrder("ORD-1-AAAA0000")
	require.NoError(t, s.Save(testOutletID, State{ActiveOrder: &active, LastSyncTime: time.Now()}))
	require.NoError(t, s.Save(testOutletID, State{ActiveOrder: nil, LastSyncTime: time.Now()}))

	st, err := s.Load(testOutletID)
	require.NoError(t, err)
	assert.Nil(t, st.ActiveOrder)
}

func TestStoreOutletsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	otherOutlet := "65f0a1b2c3d4e5f607182931"

	a := sampleOrder("ORD-1-AAAA0000")
	require.NoError(t, s.Save(testOutletID, State{ActiveOrder: &a, LastSyncTime: time.Now()}))

	st, err := s.Load(otherOutlet)
	require.NoError(t, err)
	assert.Nil(t, st.ActiveOrder)

	require.NoError(t, s.Clear(otherOutlet))
	st, err = s.Load(testOutletID)
	require.NoError(t, err)
	require.NotNil(t, st.ActiveOrder)
}

func TestStoreHistoryCapped(t *testing.T) {
	s := newTestStore(t)

	var history []orders.Order
	for i := 0; i < historyCap+10; i++ {
		history = append(history, sampleOrder(fmt.Sprintf("ORD-%d-CCCC0000", i)))
	}
	require.NoError(t, s.Save(testOutletID, State{OrderHistory: history, LastSyncTime: time.Now()}))

	st, err := s.Load(testOutletID)
	require.NoError(t, err)
	assert.Len(t, st.OrderHistory, historyCap)
	// newest entries survive the trim
	assert.Equal(t, history[0].OrderID, st.OrderHistory[0].OrderID)
}

func TestStoreClear(t *testing.T) {
	s := newTestStore(t)

	a := sampleOrder("ORD-1-AAAA0000")
	require.NoError(t, s.Save(testOutletID, State{ActiveOrder: &a, OrderHistory: []orders.Order{a}, LastSyncTime: time.Now()}))
	require.NoError(t, s.Clear(testOutletID))

	st, err := s.Load(testOutletID)
	require.NoError(t, err)
	assert.Nil(t, st.ActiveOrder)
	assert.Empty(t, st.OrderHistory)
	assert.True(t, st.LastSyncTime.IsZero())
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")
	s1, err := OpenStore(path)
	require.NoError(t, err)
	a := sampleOrder("ORD-1-AAAA0000")
	require.NoError(t, s1.Save(testOutletID, State{ActiveOrder: &a, LastSyncTime: time.Now()}))
	require.NoError(t, s1.Close())

	s2, err := OpenStore(path)
	require.NoError(t, err)
	defer s2.Close()
	st, err := s2.Load(testOutletID)
	require.NoError(t, err)
	require.NotNil(t, st.ActiveOrder)
	assert.Equal(t, a.OrderID, st.ActiveOrder.OrderID)
}
