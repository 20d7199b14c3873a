package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Validation rejects bad requests before any store/broker side effect, so
// these run with nil Repo/Producer/Redis.
func newOrdersServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := NewRouter()
	h := &OrdersHandler{Service: "order-api-test"}
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateOrderRejectsInvalidJSON(t *testing.T) {
	srv := newOrdersServer(t)
	resp := postJSON(t, srv.URL+"/orders", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderRejectsBadOutletID(t *testing.T) {
	srv := newOrdersServer(t)
	body := `{"outletId":"nope","items":[{"id":"x-1","name":"Tea","quantity":1,"price":20,"quantityId":"q1","quantityDescription":"Regular"}],"totalAmount":20}`
	resp := postJSON(t, srv.URL+"/orders", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	srv := newOrdersServer(t)
	body := `{"outletId":"` + testOutletID + `","items":[],"totalAmount":20}`
	resp := postJSON(t, srv.URL+"/orders", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderRejectsNonPositiveTotal(t *testing.T) {
	srv := newOrdersServer(t)
	body := `{"outletId":"` + testOutletID + `","items":[{"id":"x-1","name":"Tea","quantity":1,"price":20,"quantityId":"q1","quantityDescription":"Regular"}],"totalAmount":0}`
	resp := postJSON(t, srv.URL+"/orders", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderRejectsZeroQuantity(t *testing.T) {
	srv := newOrdersServer(t)
	body := `{"outletId":"` + testOutletID + `","items":[{"id":"x-1","name":"Tea","quantity":0,"price":20,"quantityId":"q1","quantityDescription":"Regular"}],"totalAmount":20}`
	resp := postJSON(t, srv.URL+"/orders", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrderRejectsDuplicateItemIDs(t *testing.T) {
	srv := newOrdersServer(t)
	body := `{"outletId":"` + testOutletID + `","items":[` +
		`{"id":"x-1","name":"Tea","quantity":1,"price":20,"quantityId":"q1","quantityDescription":"Regular"},` +
		`{"id":"x-1","name":"Tea","quantity":2,"price":20,"quantityId":"q2","quantityDescription":"Large"}` +
		`],"totalAmount":60}`
	resp := postJSON(t, srv.URL+"/orders", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListOrdersRequiresOutletID(t *testing.T) {
	srv := newOrdersServer(t)
	resp, err := http.Get(srv.URL + "/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
