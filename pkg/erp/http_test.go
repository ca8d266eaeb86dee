package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewHTTPClient(srv.URL, "key-123", 2*time.Second)
}

func TestCheckConnectionReportsDownAsStatus(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "", time.Second)

	status, err := client.CheckConnection(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.NotEmpty(t, status.Message)
}

func TestCheckConnectionUp(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		json.NewEncoder(w).Encode(ConnectionStatus{Connected: true, Message: "ok"})
	})

	status, err := client.CheckConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
}

func TestConnectStoresSessionToken(t *testing.T) {
	var sawAuth, sawKey string
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/session":
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case r.URL.Path == "/api/warehouses/w1":
			sawAuth = r.Header.Get("Authorization")
			sawKey = r.Header.Get("X-Api-Key")
			json.NewEncoder(w).Encode(WarehouseInfo{ID: "w1", Name: "Main"})
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, client.Connect(context.Background()))

	info, err := client.GetWarehouseByID(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Main", info.Name)
	assert.Equal(t, "Bearer tok-1", sawAuth)
	assert.Equal(t, "key-123", sawKey)
}

func TestDisconnectClearsSession(t *testing.T) {
	var deletes int
	var authAfter string
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/session":
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/session":
			deletes++
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/health":
			authAfter = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(ConnectionStatus{Connected: true})
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Disconnect(context.Background()))
	assert.Equal(t, 1, deletes)

	// A second disconnect has no session to close.
	require.NoError(t, client.Disconnect(context.Background()))
	assert.Equal(t, 1, deletes)

	_, err := client.CheckConnection(context.Background())
	require.NoError(t, err)
	assert.Empty(t, authAfter)
}

func TestGetWarehouseNotFound(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	info, err := client.GetWarehouseByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestGetProductsByWarehouse(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/warehouses/w1/products", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"products": []Product{
				{ExternalID: "e1", Name: "Item e1", WarehouseStock: 12, IsActive: true},
				{ExternalID: "e2", Name: "Item e2", WarehouseStock: 0, IsActive: false},
			},
		})
	})

	products, err := client.GetProductsByWarehouse(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "e1", products[0].ExternalID)
	assert.Equal(t, 12, products[0].WarehouseStock)
	assert.False(t, products[1].IsActive)
}

func TestBulkUpdateStock(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/stock/bulk", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Updates []StockUpdate `json:"updates"`
			ActorID string        `json:"actor_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Updates, 1)
		assert.Equal(t, -3, body.Updates[0].Delta)
		assert.Equal(t, "sale:42", body.ActorID)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []UpdateResult{{ExternalID: "e1", Success: true}},
		})
	})

	results, err := client.BulkUpdateStock(context.Background(), []StockUpdate{
		{ExternalID: "e1", Delta: -3, Reason: "sale S-1"},
	}, "sale:42")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.GetProductsByWarehouse(context.Background(), "w1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "", time.Second)
	err := client.Connect(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}
