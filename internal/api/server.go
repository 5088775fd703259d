package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/vantaaweather/internal/store"
	"github.com/lox/vantaaweather/internal/weather"
)

type Server struct {
	weather *weather.Service
	store   *store.Store // nil when the archive is disabled
	port    string
}

func NewServer(svc *weather.Service, st *store.Store, port string) *Server {
	return &Server{
		weather: svc,
		store:   st,
		port:    port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/weather", s.handleAPIWeather)
	mux.HandleFunc("GET /api/weather/history", s.handleAPIWeatherHistory)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
