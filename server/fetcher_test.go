package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherGetAll(t *testing.T) {
	// Testing server that responds with request URI.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.RequestURI))
	}))
	defer srv.Close()

	f := NewFetcher()

	// Fetch hundred different responses.
	var urls []string
	for i := 0; i < 100; i++ {
		urls = append(urls, fmt.Sprintf("%s/%d", srv.URL, i))
	}

	resps, err := f.GetAll(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, resps, 100)
	for i, resp := range resps {
		require.NoError(t, resp.Err)
		assert.Equal(t, 200, resp.Status)
		assert.Equal(t, fmt.Sprintf("/%d", i), string(resp.Data))
	}
}

func TestFetcherThroughput(t *testing.T) {
	var inflight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
	}))
	defer srv.Close()

	f := NewFetcher()
	f.Throughput = 3

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = srv.URL
	}
	_, err := f.GetAll(context.Background(), urls)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestFetcherGetErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewFetcher()

	resp, err := f.Get(context.Background(), srv.URL+"/x.jpg")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusGone, resp.Status)
	assert.Contains(t, err.Error(), "410")

	_, err = f.Get(context.Background(), "")
	assert.Equal(t, ErrInvalidURL, err)
}

func TestFetcherMaxBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.MaxBodySize = 4

	resp, err := f.Get(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrBodyTooLarge), "%v", err)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Data)

	f = NewFetcher()
	f.MaxBodySize = 10

	resp, err = f.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(resp.Data))
}

func TestFetcherCancelled(t *testing.T) {
	f := NewFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Get(ctx, "http://127.0.0.1:1/never")
	assert.Error(t, err)
}
