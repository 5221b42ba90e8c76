package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDownloader(delays *[]time.Duration) *Downloader {
	d := New()
	d.sleep = func(_ context.Context, dur time.Duration) error {
		if delays != nil {
			*delays = append(*delays, dur)
		}
		return nil
	}
	return d
}

func TestDownload_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("clip"))
	}))
	defer server.Close()

	d := newTestDownloader(nil)
	res, err := d.Download(context.Background(), server.URL, Options{MaxAttempts: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte("clip"), res.Data)
	assert.Equal(t, "video/mp4", res.ContentType)
	assert.Empty(t, res.ChecksumSHA256)
}

func TestDownload_ComputeChecksum(t *testing.T) {
	body := []byte("some video bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	d := newTestDownloader(nil)
	res, err := d.Download(context.Background(), server.URL, Options{ComputeChecksum: true, ValidateSize: true})
	require.NoError(t, err)

	sum := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.ChecksumSHA256)
}

func TestDownload_RetriesWithLinearBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	var delays []time.Duration
	d := newTestDownloader(&delays)
	res, err := d.Download(context.Background(), server.URL, Options{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), res.Data)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestDownload_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := newTestDownloader(nil)
	_, err := d.Download(context.Background(), server.URL, Options{MaxAttempts: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownload_SizeMismatchIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, buf, err := hj.Hijack()
		require.NoError(t, err)
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 4\r\nConnection: close\r\n\r\nabc")
		_ = buf.Flush()
	}))
	defer server.Close()

	d := newTestDownloader(nil)
	_, err := d.Download(context.Background(), server.URL, Options{
		MaxAttempts:  3,
		ValidateSize: true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownload_RequiresURL(t *testing.T) {
	d := newTestDownloader(nil)
	_, err := d.Download(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrURLRequired)
}

func TestDownload_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	d := New()
	d.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := d.Download(ctx, server.URL, Options{MaxAttempts: 5, BaseDelay: time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
