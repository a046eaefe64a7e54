// Package devserver implements the browser-sync task: a live-reloading
// reverse proxy in front of the theme's backend.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/scheduler"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

// Options configures a Server. Status, Metrics and MetricsHandler are
// optional.
type Options struct {
	Config         config.ServerConfig
	Status         func() []scheduler.TaskStatus
	Metrics        metrics.Recorder
	MetricsHandler http.Handler
}

// Server proxies the backend, injects the live-reload client into HTML
// pages and serves the admin routes under /__assetpipe/.
type Server struct {
	cfg     config.ServerConfig
	target  *url.URL
	hub     *Hub
	status  func() []scheduler.TaskStatus
	metrics http.Handler

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	done chan struct{}
}

// New validates the proxy target and returns a stopped server.
func New(opts Options) (*Server, error) {
	target, err := url.Parse(opts.Config.Proxy)
	if err != nil || target.Host == "" {
		return nil, ferrors.ConfigError("invalid proxy target").
			WithContext("proxy", opts.Config.Proxy).
			WithCause(err).
			Build()
	}
	return &Server{
		cfg:     opts.Config,
		target:  target,
		hub:     NewHub(opts.Metrics),
		status:  opts.Status,
		metrics: opts.MetricsHandler,
	}, nil
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router serving admin routes and the proxy.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route(prefix, func(r chi.Router) {
		r.Use(middleware.Recoverer, middleware.NoCache)
		r.Get("/livereload", s.hub.ServeHTTP)
		r.Get("/client.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			if _, err := w.Write([]byte(clientScript)); err != nil {
				slog.Debug("Client script write failed", logfields.Error(err))
			}
		})
		r.Get("/status", s.handleStatus)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}
	})
	r.Handle("/*", s.proxy())
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var tasks []scheduler.TaskStatus
	if s.status != nil {
		tasks = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	body := struct {
		Proxy   string                 `json:"proxy"`
		Clients int                    `json:"clients"`
		Tasks   []scheduler.TaskStatus `json:"tasks"`
	}{s.target.String(), s.hub.Clients(), tasks}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Status write failed", logfields.Error(err))
	}
}

func (s *Server) proxy() http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(s.target)
			pr.SetXForwarded()
			// Bodies must arrive uncompressed for script injection.
			pr.Out.Header.Del("Accept-Encoding")
		},
		ModifyResponse: func(resp *http.Response) error {
			s.rewriteLocation(resp)
			if resp.Request != nil && resp.Request.Method == http.MethodHead {
				return nil
			}
			return injectResponse(resp)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Warn("Proxy request failed", logfields.URL(r.URL.String()), logfields.Error(err))
			http.Error(w, "assetpipe: backend "+s.target.Host+" unavailable", http.StatusBadGateway)
		},
	}
}

// rewriteLocation keeps backend redirects on the proxy origin.
func (s *Server) rewriteLocation(resp *http.Response) {
	loc, err := resp.Location()
	if err != nil || !strings.EqualFold(loc.Host, s.target.Host) {
		return
	}
	loc.Scheme, loc.Host, loc.User = "", "", nil
	resp.Header.Set("Location", loc.String())
}

// Start binds the listener and serves in the background. Starting a running
// server is a no-op.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to bind dev server").
			WithContext("addr", addr).
			UserAction().
			Build()
	}
	// No write timeout: live-reload streams are long-lived.
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second, IdleTimeout: 300 * time.Second}
	s.srv, s.ln, s.done = srv, ln, make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Dev server stopped", logfields.Error(err))
		}
	}(s.done)

	slog.Info("Dev server listening",
		logfields.URL("http://"+ln.Addr().String()),
		slog.String("proxy", s.target.String()))
	return nil
}

// Addr returns the bound address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop disconnects live-reload clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Shutdown()
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}

// Run is the browser-sync task. It starts the server when enabled and
// returns once the listener is bound.
func (s *Server) Run(ctx context.Context) error {
	if !config.BoolValue(s.cfg.Enabled) {
		slog.Info("Dev server disabled")
		return nil
	}
	return s.Start(ctx)
}

// Notify broadcasts a change of the given output files. CSS changes are
// injected only when inject_changes is on.
func (s *Server) Notify(kind events.ReloadKind, files []string) {
	if kind == events.ReloadCSS && !config.BoolValue(s.cfg.InjectChanges) {
		kind = events.ReloadFull
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if kind == events.ReloadCSS && !strings.HasSuffix(f, ".css") {
			continue
		}
		names = append(names, filepath.Base(f))
	}
	s.hub.Broadcast(Message{Kind: kind, Files: names})
}

// Follow forwards AssetsWritten events from bus to the hub until the bus
// closes or ctx is canceled.
func (s *Server) Follow(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := events.Subscribe[events.AssetsWritten](bus, 16)
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				s.Notify(evt.Kind, evt.Files)
			}
		}
	}()
}

// FilesRule watches the server.files patterns. CSS files are injected,
// anything else reloads the page.
func (s *Server) FilesRule() watch.Rule {
	return watch.Rule{
		Name:     "browser-sync",
		Patterns: s.cfg.Files,
		Fire: func(_ context.Context, rel string) {
			kind := events.ReloadFull
			if strings.EqualFold(filepath.Ext(rel), ".css") {
				kind = events.ReloadCSS
			}
			s.Notify(kind, []string{rel})
		},
	}
}
