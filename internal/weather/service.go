package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lox/vantaaweather/internal/fmi"
	"github.com/lox/vantaaweather/internal/metrics"
)

// DefaultTTL is how long a fetched snapshot is served without contacting FMI.
const DefaultTTL = 10 * time.Minute

// ErrUpstreamUnavailable is returned when the feed could not be fetched and no
// cached snapshot exists to fall back on.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// Source provides the raw observation feed.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FetchRecord describes one upstream attempt.
type FetchRecord struct {
	StartedAt time.Time
	Payload   []byte
	Params    int
	Snapshot  *Snapshot
	Err       error
}

// Recorder archives upstream attempts. Errors are logged and otherwise ignored.
type Recorder interface {
	RecordFetch(ctx context.Context, rec FetchRecord) error
}

// cache is the single snapshot slot shared by all requests. Snapshots are
// copied in and out so callers never alias the cached value.
type cache struct {
	mu        sync.RWMutex
	snap      Snapshot
	fetchedAt time.Time
	ok        bool
}

func (c *cache) get() (Snapshot, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone(), c.fetchedAt, c.ok
}

func (c *cache) set(snap Snapshot, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap.Clone()
	c.fetchedAt = at
	c.ok = true
}

// Service fetches, parses and caches the station snapshot.
type Service struct {
	source   Source
	station  string
	ttl      time.Duration
	now      func() time.Time
	recorder Recorder

	cache cache
	group singleflight.Group
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithStation(name string) Option {
	return func(s *Service) { s.station = name }
}

func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source:  source,
		station: DefaultStation,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the cached snapshot while it is younger than the TTL, and
// otherwise refreshes it from FMI. If the refresh fails a previously cached
// snapshot is returned as-is and its timestamp is left alone, so the next call
// tries again.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if snap, at, ok := s.cache.get(); ok && s.fresh(at) {
		metrics.CacheResults.WithLabelValues("hit").Inc()
		return snap, nil
	}

	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if snap, _, ok := s.cache.get(); ok {
			metrics.CacheResults.WithLabelValues("stale").Inc()
			log.Printf("weather: serving stale snapshot: %v", err)
			return snap, nil
		}
		metrics.CacheResults.WithLabelValues("cold_error").Inc()
		return Snapshot{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return v.(Snapshot).Clone(), nil
}

// CacheAge reports how old the cached snapshot is, and false if there is none.
func (s *Service) CacheAge() (time.Duration, bool) {
	_, at, ok := s.cache.get()
	if !ok {
		return 0, false
	}
	return s.now().Sub(at), true
}

func (s *Service) fresh(fetchedAt time.Time) bool {
	return s.now().Sub(fetchedAt) < s.ttl
}

func (s *Service) refresh(ctx context.Context) (Snapshot, error) {
	// Another caller may have refreshed between our cache check and this flight.
	if snap, at, ok := s.cache.get(); ok && s.fresh(at) {
		metrics.CacheResults.WithLabelValues("hit").Inc()
		return snap, nil
	}

	started := s.now()
	rec := FetchRecord{StartedAt: started}

	snap, err := s.fetch(ctx, &rec)
	rec.Err = err
	s.record(ctx, rec)
	if err != nil {
		return Snapshot{}, err
	}

	s.cache.set(snap, started)
	metrics.CacheResults.WithLabelValues("refresh").Inc()
	return snap, nil
}

func (s *Service) fetch(ctx context.Context, rec *FetchRecord) (Snapshot, error) {
	body, err := s.source.Fetch(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch: %w", err)
	}
	rec.Payload = body

	parsed, err := fmi.ParseFeed(body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse: %w", err)
	}
	for name := range parsed {
		metrics.ParametersParsed.WithLabelValues(name).Inc()
	}

	snap := BuildSnapshot(s.station, parsed)
	rec.Params = len(parsed)
	rec.Snapshot = &snap
	return snap, nil
}

func (s *Service) record(ctx context.Context, rec FetchRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordFetch(ctx, rec); err != nil {
		log.Printf("weather: record fetch: %v", err)
	}
}
