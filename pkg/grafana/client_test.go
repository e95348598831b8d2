package grafana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewWithOpts(Opts{
		Endpoints: []string{url},
		Token:     "test-token",
		RPS:       1000,
		Burst:     1000,
	})
}

func TestClientQuery(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		require.Equal(t, queryPath, r.URL.Path)

		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Queries, 1)

		resp := QueryResponse{Results: map[string]QueryResult{
			req.Queries[0].RefID: {Frames: []Frame{{
				Schema: Schema{Fields: []Field{{Name: "country"}, {Name: "node_count"}}},
				Data: FrameData{Values: [][]any{
					{"US", "DE"},
					{float64(600), float64(400)},
				}},
			}}},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	rows, err := c.CountryDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "US", rows[0]["country"])
	assert.Equal(t, "Bearer test-token", gotAuth.Load())
}

func TestClientQueryNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	rows, err := c.NodeTypeDistribution(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClientServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.NodeCountHistory(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClientNoEndpoints(t *testing.T) {
	c := NewWithOpts(Opts{})
	_, err := c.Query(context.Background(), QueryRequest{})
	assert.Error(t, err)
}
