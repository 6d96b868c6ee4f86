package rates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"accountmart-api/internal/cache"

	"github.com/andybalholm/brotli"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) (*Client, *cache.MemoryCache) {
	t.Helper()
	mc := cache.NewMemoryCache(time.Hour)
	t.Cleanup(func() { mc.Close() })
	return NewClient(Config{URL: url, Timeout: 200 * time.Millisecond}, mc), mc
}

func TestRate_LiveThenCached(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "br", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"base":"USD","rates":{"EUR":0.92,"TRY":36.12}}`)
	}))
	defer ts.Close()

	client, _ := newTestClient(t, ts.URL)

	rate := client.Rate(context.Background())
	assert.True(t, rate.Equal(decimal.RequireFromString("36.12")), rate.String())

	rate = client.Rate(context.Background())
	assert.True(t, rate.Equal(decimal.RequireFromString("36.12")))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestRate_BrotliResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		fmt.Fprint(bw, `{"rates":{"TRY":35.5}}`)
		bw.Close()
	}))
	defer ts.Close()

	client, _ := newTestClient(t, ts.URL)
	rate, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("35.5")))
}

func TestRate_Fallbacks(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"rates":`)
		},
		"missing currency": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"rates":{"EUR":0.9}}`)
		},
		"non-positive rate": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"rates":{"TRY":0}}`)
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(handler)
			defer ts.Close()

			client, mc := newTestClient(t, ts.URL)
			start := time.Now()
			rate := client.Rate(context.Background())

			assert.True(t, rate.Equal(DefaultFallback), rate.String())
			assert.Less(t, time.Since(start), time.Second)
			// Fallback values are never cached.
			assert.Equal(t, 0, mc.Len())
		})
	}
}

func TestRate_RecoversAfterFailure(t *testing.T) {
	var healthy atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"rates":{"TRY":40}}`)
	}))
	defer ts.Close()

	client, _ := newTestClient(t, ts.URL)
	assert.True(t, client.Rate(context.Background()).Equal(DefaultFallback))

	healthy.Store(true)
	assert.True(t, client.Rate(context.Background()).Equal(decimal.NewFromInt(40)))
}

func TestRate_ConcurrentMissesShareFetch(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		fmt.Fprint(w, `{"rates":{"TRY":34.9}}`)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, Timeout: 2 * time.Second}, nil)

	var wg sync.WaitGroup
	results := make([]decimal.Decimal, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = client.Rate(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.Equal(decimal.RequireFromString("34.9")), r.String())
	}
	assert.Less(t, atomic.LoadInt32(&hits), int32(10))
}

func TestRate_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		fmt.Fprint(w, `{"rates":{"TRY":34.9}}`)
	}))
	defer ts.Close()

	client := NewClient(Config{URL: ts.URL, Timeout: 2 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan decimal.Decimal, 1)
	go func() { first <- client.Rate(ctx) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan decimal.Decimal, 1)
	go func() { second <- client.Rate(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.True(t, (<-first).Equal(DefaultFallback))

	close(release)
	got := <-second
	assert.True(t, got.Equal(decimal.RequireFromString("34.9")), got.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRefresher_WarmsCache(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rates":{"TRY":33.3}}`)
	}))
	defer ts.Close()

	client, mc := newTestClient(t, ts.URL)
	r := NewRefresher(client, time.Hour)
	r.RunNow()
	r.Stop()
	r.Stop()

	assert.Equal(t, 1, mc.Len())
	rate, ok := client.cached(context.Background())
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("33.3")))
}
