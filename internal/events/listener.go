// Package events receives UPnP GENA event notifications.
package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/InfraSecConsult/upnp-control-go/lib/helper"
	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

const (
	MethodNotify       = "NOTIFY"
	DefaultBindAddress = "0.0.0.0"

	// ShutdownGrace bounds a graceful shutdown whose context has no deadline.
	ShutdownGrace = 2 * time.Second

	stateStopped   = "stopped"
	stateListening = "listening"
)

func init() {
	chi.RegisterMethod(MethodNotify)
}

// AddressProvider returns the local address devices should call back on.
type AddressProvider func() (net.IP, error)

// Option configures a Listener.
type Option func(*Listener)

// WithListenPort sets the TCP port. 0 lets the kernel pick one.
func WithListenPort(port int) Option {
	return func(l *Listener) { l.port = port }
}

// WithBindAddress sets the address the server binds to.
func WithBindAddress(addr string) Option {
	return func(l *Listener) { l.bindAddress = addr }
}

// WithCallback sets the receiver of parsed notifications.
func WithCallback(cb Callback) Option {
	return func(l *Listener) { l.callback = cb }
}

// WithParser sets how NOTIFY bodies are parsed.
func WithParser(p Parser) Option {
	return func(l *Listener) { l.parser = p }
}

// WithAddressProvider overrides how the callback URL host is chosen.
func WithAddressProvider(p AddressProvider) Option {
	return func(l *Listener) { l.addresses = p }
}

// Listener is an HTTP server accepting NOTIFY requests on "/".
// It is either stopped or listening.
type Listener struct {
	port        int
	bindAddress string
	callback    Callback
	parser      Parser
	addresses   AddressProvider

	mu     sync.Mutex
	server *http.Server
	url    string
	done   chan struct{}
}

// NewListener returns a stopped listener. Without WithCallback notifications
// go to a Recorder, available through Recorder().
func NewListener(opts ...Option) *Listener {
	l := &Listener{
		bindAddress: DefaultBindAddress,
		parser:      DefaultParser,
		addresses:   helper.LocalPrivateIPv4,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.callback == nil {
		l.callback = NewRecorder(DefaultRecorderSize)
	}
	return l
}

// Recorder returns the default callback, or nil when a callback was configured.
func (l *Listener) Recorder() *Recorder {
	r, _ := l.callback.(*Recorder)
	return r
}

// Listen starts the server and returns the callback URL. Calling it again
// while listening returns the same URL.
func (l *Listener) Listen() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server != nil {
		return l.url, nil
	}

	ip, err := l.addresses()
	if err != nil {
		return "", fmt.Errorf("cannot build callback URL: %w", err)
	}

	ln, err := net.Listen("tcp4", net.JoinHostPort(l.bindAddress, strconv.Itoa(l.port)))
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s:%d: %w", l.bindAddress, l.port, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	l.server = &http.Server{
		Handler:           otelhttp.NewHandler(l.routes(), "upnp.notify"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.url = fmt.Sprintf("http://%s/", net.JoinHostPort(ip.String(), strconv.Itoa(port)))
	l.done = make(chan struct{})

	server, done := l.server, l.done
	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Event listener stopped unexpectedly")
		}
	}()

	log.Info().Str("url", l.url).Str("bind", ln.Addr().String()).Msg("Event listener started")
	return l.url, nil
}

// URL returns the callback URL of a listening server.
func (l *Listener) URL() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server == nil {
		return "", &model.IllegalStateError{Op: "query URL", State: stateStopped, Err: model.ErrNotStarted}
	}
	return l.url, nil
}

// Listening reports whether the server is running.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.server != nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx
// expires, or for ShutdownGrace when ctx has no deadline. After that open
// connections are closed without waiting. The listener is stopped as soon as
// Shutdown is called; URL and Listening do not wait for it to return.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	server, done, url := l.server, l.done, l.url
	l.server = nil
	l.url = ""
	l.done = nil
	l.mu.Unlock()

	if server == nil {
		return &model.IllegalStateError{Op: "shut down", State: stateStopped, Err: model.ErrNotStarted}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ShutdownGrace)
		defer cancel()
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Graceful shutdown of event listener failed, closing connections")
		if cerr := server.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close event listener")
		}
	}
	<-done

	log.Info().Str("url", url).Msg("Event listener stopped")
	return nil
}

func (l *Listener) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.MethodFunc(MethodNotify, "/", l.handleNotify)
	return r
}

func (l *Listener) handleNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, helper.MaxBodySize))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	n, err := l.parser.Parse(body)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Rejected event notification")
		http.Error(w, "cannot parse event body", http.StatusBadRequest)
		return
	}

	n.SID = r.Header.Get("SID")
	n.NT = r.Header.Get("NT")
	n.NTS = r.Header.Get("NTS")
	if seq, err := strconv.ParseUint(r.Header.Get("SEQ"), 10, 32); err == nil {
		n.Seq = uint32(seq)
	}
	n.RemoteAddr = r.RemoteAddr
	n.ReceivedAt = time.Now()

	l.callback.Notify(n)
	w.WriteHeader(http.StatusOK)
}
