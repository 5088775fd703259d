// Package fmi fetches and parses the Finnish Meteorological Institute open data
// WFS observation feed.
package fmi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lox/vantaaweather/internal/httputil"
	"github.com/lox/vantaaweather/internal/metrics"
)

const (
	// VantaaStationID is the fmisid of Helsinki-Vantaa airport.
	VantaaStationID = "100968"

	// DefaultFeedURL requests temperature, 10 minute wind and present weather for
	// the Vantaa station at a 10 minute timestep.
	DefaultFeedURL = "https://opendata.fmi.fi/wfs?service=WFS&version=2.0.0" +
		"&request=GetFeature" +
		"&storedquery_id=fmi::observations::weather::timevaluepair" +
		"&fmisid=" + VantaaStationID +
		"&parameters=t2m,ws_10min,wawa" +
		"&timestep=10" +
		"&maxlocations=1"

	userAgent = "VantaaWeather/1.0"
)

// StatusError reports a non-2xx response from the feed.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// Client fetches the raw observation feed. Each Fetch issues exactly one request.
type Client struct {
	httpClient *http.Client
	feedURL    string
}

// NewClient creates a feed client. An empty feedURL uses DefaultFeedURL.
func NewClient(feedURL string, timeout time.Duration) *Client {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Client{
		httpClient: httputil.NewClient(timeout),
		feedURL:    feedURL,
	}
}

// Fetch retrieves the feed body.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	start := time.Now()
	body, err := c.get(ctx)
	metrics.FMIFetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FMIFetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FMIFetchesTotal.WithLabelValues("ok").Inc()
	return body, nil
}

func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
