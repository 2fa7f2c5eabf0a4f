// Package ofweb exposes a status page and a Prometheus /metrics route,
// adapting device/uapi.go's key=value status-dump idiom (a pooled
// buffer, one sendf-style line per field) to this module's own
// sender/receiver/correspondent state instead of WireGuard peer state.
package ofweb

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oftrelay/covertchan/oflog"
)

// Metrics are the Prometheus series this module tracks.
type Metrics struct {
	BytesSent                 prometheus.Counter
	AdvertisementsEmitted     prometheus.Counter
	FetchWindowsProcessed     prometheus.Counter
	MajorityVoteDisagreements prometheus.Counter
	GapStops                  prometheus.Counter
}

// NewMetrics builds and registers this module's counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covertchan", Name: "bytes_sent_total",
			Help: "Data bytes successfully advertised.",
		}),
		AdvertisementsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covertchan", Name: "advertisements_emitted_total",
			Help: "BLE advertisements emitted by the sender.",
		}),
		FetchWindowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covertchan", Name: "fetch_windows_processed_total",
			Help: "Reports-fetch windows processed by the receiver.",
		}),
		MajorityVoteDisagreements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covertchan", Name: "majority_vote_disagreements_total",
			Help: "Key-hashes whose reports did not unanimously agree on a status byte.",
		}),
		GapStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covertchan", Name: "gap_stops_total",
			Help: "Receive calls terminated by the gap-stop rule.",
		}),
	}
	reg.MustRegister(
		m.BytesSent,
		m.AdvertisementsEmitted,
		m.FetchWindowsProcessed,
		m.MajorityVoteDisagreements,
		m.GapStops,
	)
	return m
}

// StatusLine is one key=value pair the status route renders.
type StatusLine struct {
	Key   string
	Value string
}

// StatusFunc produces the current set of status lines.
type StatusFunc func() []StatusLine

var lineBufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// Server hosts the status page and the /metrics route.
type Server struct {
	mux    *http.ServeMux
	status StatusFunc
	log    *oflog.Logger
}

// NewServer builds a Server. statusFunc may be nil.
func NewServer(reg *prometheus.Registry, statusFunc StatusFunc, log *oflog.Logger) *Server {
	if log == nil {
		log = oflog.NewDiscard()
	}
	if statusFunc == nil {
		statusFunc = func() []StatusLine { return nil }
	}
	s := &Server{mux: http.NewServeMux(), status: statusFunc, log: log}
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	buf := lineBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer lineBufferPool.Put(buf)

	sendf := func(format string, args ...any) {
		fmt.Fprintf(buf, format, args...)
		buf.WriteByte('\n')
	}
	for _, line := range s.status() {
		sendf("%s=%s", line.Key, line.Value)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.Errorf("ofweb: write status response: %v", err)
	}
}

// ListenAndServe starts the HTTP server on addr until ctx is done,
// then shuts it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
