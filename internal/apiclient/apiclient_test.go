package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaller(retries int) *Caller {
	return &Caller{Token: "tok", MaxRetries: retries, BaseBackoff: time.Millisecond}
}

func TestCall_SendsJSONWithBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "b", in["a"])
		_, _ = w.Write([]byte(`{"id":"x1"}`))
	}))
	defer server.Close()

	var out struct {
		ID string `json:"id"`
	}
	err := testCaller(0).Call(context.Background(), http.MethodPost, server.URL, map[string]string{"a": "b"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "x1", out.ID)
}

func TestCall_EmptyBodyIsNotDecoded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var out map[string]any
	require.NoError(t, testCaller(0).Call(context.Background(), http.MethodDelete, server.URL, nil, &out))
	assert.Nil(t, out)
}

func TestCall_StatusClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		wantCalls int32
	}{
		{"server error retried", http.StatusBadGateway, ErrServerError, 3},
		{"rate limited retried", http.StatusTooManyRequests, ErrRateLimited, 3},
		{"client error not retried", http.StatusUnauthorized, ErrRequestFailed, 1},
		{"not found not retried", http.StatusNotFound, ErrRequestFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer server.Close()

			err := testCaller(2).Call(context.Background(), http.MethodGet, server.URL, nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tt.wantCalls, calls.Load())

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Code)
		})
	}
}

func TestCall_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	require.NoError(t, testCaller(1).Call(context.Background(), http.MethodGet, server.URL, nil, nil))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := testCaller(3).Call(ctx, http.MethodGet, server.URL, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCall_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	var out map[string]any
	err := testCaller(2).Call(context.Background(), http.MethodGet, server.URL, nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}
