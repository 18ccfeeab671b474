// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package listeners

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mochi-mqtt/conduit/system"
)

// HTTPStats is a listener for presenting the server $SYS stats on a JSON http endpoint,
// and as prometheus metrics on /metrics.
type HTTPStats struct {
	sync.RWMutex
	id       string               // the internal id of the listener
	address  string               // the network address to bind to
	config   Config               // configuration values for the listener
	listen   *http.Server         // the http server
	ln       net.Listener         // the bound network listener
	log      *slog.Logger         // server logger
	sysInfo  *system.Info         // pointers to the server data
	registry *prometheus.Registry // the metrics registry served on /metrics
	end      uint32               // ensure the close methods are only called once
}

// NewHTTPStats initialises and returns a new HTTP listener, listening on an address.
func NewHTTPStats(config Config, sysInfo *system.Info) *HTTPStats {
	return &HTTPStats{
		id:      config.ID,
		address: config.Address,
		config:  config,
		sysInfo: sysInfo,
	}
}

// ID returns the id of the listener.
func (l *HTTPStats) ID() string {
	return l.id
}

// Address returns the address of the listener.
func (l *HTTPStats) Address() string {
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.address
}

// Protocol returns the address of the listener.
func (l *HTTPStats) Protocol() string {
	if l.config.TLSConfig != nil {
		return "https"
	}

	return "http"
}

// Init registers the metrics, binds the address and prepares the http server.
func (l *HTTPStats) Init(log *slog.Logger) error {
	l.log = log

	if l.sysInfo == nil {
		l.sysInfo = new(system.Info)
	}

	l.registry = prometheus.NewRegistry()
	l.sysInfo.RegisterPrometheusMetrics(l.registry)

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.jsonHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(l.registry, promhttp.HandlerOpts{}))
	l.listen = &http.Server{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Addr:         l.address,
		Handler:      mux,
		TLSConfig:    l.config.TLSConfig,
	}

	var err error
	l.ln, err = net.Listen("tcp", l.address)
	return err
}

// Serve starts listening for new connections and serving responses.
func (l *HTTPStats) Serve(establish EstablishFn) {
	var err error
	if l.listen.TLSConfig != nil {
		err = l.listen.ServeTLS(l.ln, "", "")
	} else {
		err = l.listen.Serve(l.ln)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) && l.log != nil {
		l.log.Error("stats listener stopped", "listener", l.id, "error", err)
	}
}

// Close closes the listener and any client connections.
func (l *HTTPStats) Close(closeClients CloseFn) {
	l.Lock()
	defer l.Unlock()

	if atomic.CompareAndSwapUint32(&l.end, 0, 1) && l.listen != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.listen.Shutdown(ctx)
	}

	if l.ln != nil {
		_ = l.ln.Close()
	}

	closeClients(l.id)
}

// jsonHandler is an HTTP handler which outputs the $SYS stats as JSON.
func (l *HTTPStats) jsonHandler(w http.ResponseWriter, req *http.Request) {
	out, err := json.MarshalIndent(l.sysInfo.Clone(), "", "\t")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}
