package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/lox/vantaaweather/internal/fmi"
	"github.com/lox/vantaaweather/internal/weather"
)

// newFetchBreaker stops hammering FMI between retries once it has failed
// tripAfter times in a row. While open, attempts fail without a request until
// openFor has passed.
func newFetchBreaker(tripAfter uint32, openFor time.Duration) *gobreaker.CircuitBreaker[weather.Snapshot] {
	return gobreaker.NewCircuitBreaker[weather.Snapshot](gobreaker.Settings{
		Name:        "fmi-fetch",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("%s: breaker %s -> %s", name, from, to)
		},
	})
}

// fetchWithRetry retries svc.Snapshot under bo. A malformed feed is not retried.
func fetchWithRetry(ctx context.Context, svc *weather.Service, cb *gobreaker.CircuitBreaker[weather.Snapshot], bo backoff.BackOff) (weather.Snapshot, error) {
	var snap weather.Snapshot
	operation := func() error {
		var err error
		snap, err = cb.Execute(func() (weather.Snapshot, error) {
			return svc.Snapshot(ctx)
		})
		if errors.Is(err, fmi.ErrMalformedFeed) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Printf("fetch: %v", err)
		}
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return weather.Snapshot{}, err
	}
	return snap, nil
}
