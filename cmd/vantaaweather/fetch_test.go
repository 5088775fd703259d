package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/vantaaweather/internal/fmi"
	"github.com/lox/vantaaweather/internal/weather"
)

func newUpstream(t *testing.T, failFirst int32, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failFirst {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func quickBackOff(retries uint64) backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), retries)
}

func TestFetchWithRetry_RecoversAfterFailures(t *testing.T) {
	feed, err := os.ReadFile("../../internal/fmi/testdata/observations.xml")
	if err != nil {
		t.Fatal(err)
	}
	srv, calls := newUpstream(t, 2, feed)
	svc := weather.NewService(fmi.NewClient(srv.URL, time.Second))

	snap, err := fetchWithRetry(context.Background(), svc, newFetchBreaker(5, time.Minute), quickBackOff(5))
	if err != nil {
		t.Fatalf("fetchWithRetry: %v", err)
	}
	if snap.Condition != "Snow" {
		t.Errorf("Condition = %q, want Snow", snap.Condition)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestFetchWithRetry_BreakerStopsRequests(t *testing.T) {
	srv, calls := newUpstream(t, 100, nil)
	svc := weather.NewService(fmi.NewClient(srv.URL, time.Second))

	_, err := fetchWithRetry(context.Background(), svc, newFetchBreaker(3, time.Minute), quickBackOff(10))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3 before the breaker opened", got)
	}
}

func TestFetchWithRetry_MalformedIsPermanent(t *testing.T) {
	srv, calls := newUpstream(t, 0, []byte("<wfs:FeatureCollection"))
	svc := weather.NewService(fmi.NewClient(srv.URL, time.Second))

	_, err := fetchWithRetry(context.Background(), svc, newFetchBreaker(5, time.Minute), quickBackOff(5))
	if !errors.Is(err, fmi.ErrMalformedFeed) {
		t.Fatalf("error = %v, want ErrMalformedFeed", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}
