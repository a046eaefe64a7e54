package devserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/scheduler"
)

func boolPtr(b bool) *bool { return &b }

func newServer(t *testing.T, backend string, inject bool) *Server {
	t.Helper()
	s, err := New(Options{
		Config: config.ServerConfig{
			Enabled:       boolPtr(true),
			Proxy:         backend,
			Host:          "127.0.0.1",
			Port:          0,
			Files:         []string{"**/*.php", "**/*.css"},
			InjectChanges: boolPtr(inject),
		},
		Status: func() []scheduler.TaskStatus {
			return []scheduler.TaskStatus{{Name: "scripts", State: scheduler.StateSucceeded, Runs: 1}}
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func serve(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// subscribe opens an SSE stream and returns a function reading the next
// data payload.
func subscribe(t *testing.T, url string) func() Message {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	return func() Message {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var msg Message
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &msg))
				return msg
			}
		}
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(hub.Shutdown)
	srv := serve(t, hub)

	next := subscribe(t, srv.URL)
	waitClients(t, hub, 1)

	hub.Broadcast(Message{Kind: events.ReloadCSS, Files: []string{"header.css"}})
	assert.Equal(t, Message{Kind: events.ReloadCSS, Files: []string{"header.css"}}, next())

	hub.Broadcast(Message{Kind: events.ReloadFull})
	assert.Equal(t, events.ReloadFull, next().Kind)
}

func TestHub_ShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	srv := serve(t, hub)

	_ = subscribe(t, srv.URL)
	waitClients(t, hub, 1)
	hub.Shutdown()
	assert.Zero(t, hub.Clients())

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestInjectScript(t *testing.T) {
	out := string(injectScript([]byte("<html><BODY><p>x</p></BODY></html>")))
	assert.Equal(t, `<html><BODY><p>x</p>`+string(scriptTag)+`</BODY></html>`, out)

	out = string(injectScript([]byte("<p>fragment</p>")))
	assert.True(t, strings.HasSuffix(out, string(scriptTag)))
}

func TestInjectScript_Latin1Page(t *testing.T) {
	out := string(injectScript([]byte("<html><body>caf\xe9 na\xefve</body></html>")))
	assert.Equal(t, "<html><body>caf\xe9 na\xefve"+string(scriptTag)+"</body></html>", out)

	page := append(bytes.Repeat([]byte{0xe9}, 20), []byte("</Body>")...)
	out = string(injectScript(page))
	assert.Equal(t, string(bytes.Repeat([]byte{0xe9}, 20))+string(scriptTag)+"</Body>", out)
}

func TestProxy_InjectsIntoHTMLOnly(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, "<html><body>home</body></html>")
		case "/old":
			http.Redirect(w, r, "http://"+r.Host+"/new?x=1", http.StatusFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"ok":true}`)
		}
	}))
	defer backend.Close()

	s := newServer(t, backend.URL, true)
	front := serve(t, s.Handler())

	req, _ := http.NewRequest(http.MethodGet, front.URL+"/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), `src="/__assetpipe/client.js"`)
	assert.Equal(t, int64(len(body)), resp.ContentLength)

	resp, err = http.Get(front.URL + "/api")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.JSONEq(t, `{"ok":true}`, string(body))

	req, _ = http.NewRequest(http.MethodGet, front.URL+"/old", nil)
	resp, err = http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/new?x=1", resp.Header.Get("Location"))
}

func TestProxy_BackendDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	s := newServer(t, url, true)
	front := serve(t, s.Handler())

	resp, err := http.Get(front.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t, "http://127.0.0.1:1", true)
	front := serve(t, s.Handler())

	resp, err := http.Get(front.URL + "/__assetpipe/client.js")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, string(body), "/__assetpipe/livereload")

	resp, err = http.Get(front.URL + "/__assetpipe/status")
	require.NoError(t, err)
	var status struct {
		Proxy string                 `json:"proxy"`
		Tasks []scheduler.TaskStatus `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	_ = resp.Body.Close()
	assert.Equal(t, "http://127.0.0.1:1", status.Proxy)
	require.Len(t, status.Tasks, 1)
	assert.Equal(t, scheduler.StateSucceeded, status.Tasks[0].State)
}

func TestNotify_CSSRespectsInjectChanges(t *testing.T) {
	for _, tc := range []struct {
		name   string
		inject bool
		want   Message
	}{
		{"inject", true, Message{Kind: events.ReloadCSS, Files: []string{"header.css"}}},
		{"reload", false, Message{Kind: events.ReloadFull, Files: []string{"header.css", "header.css.map"}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t, "http://127.0.0.1:1", tc.inject)
			front := serve(t, s.Handler())
			next := subscribe(t, front.URL+"/__assetpipe/livereload")
			waitClients(t, s.Hub(), 1)

			s.Notify(events.ReloadCSS, []string{"/p/build/css/header.css", "/p/build/css/maps/header.css.map"})
			assert.Equal(t, tc.want, next())
		})
	}
}

func TestFollow_ForwardsAssetsWritten(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	s := newServer(t, "http://127.0.0.1:1", true)
	front := serve(t, s.Handler())

	s.Follow(t.Context(), bus)
	require.Eventually(t, func() bool { return events.SubscriberCount[events.AssetsWritten](bus) == 1 }, time.Second, 10*time.Millisecond)

	next := subscribe(t, front.URL+"/__assetpipe/livereload")
	waitClients(t, s.Hub(), 1)

	require.NoError(t, bus.Publish(t.Context(), events.AssetsWritten{Task: "scripts", Kind: events.ReloadFull, Files: []string{"/p/build/js/index.js"}}))
	assert.Equal(t, Message{Kind: events.ReloadFull, Files: []string{"index.js"}}, next())
}

func TestFilesRule(t *testing.T) {
	s := newServer(t, "http://127.0.0.1:1", true)
	front := serve(t, s.Handler())
	next := subscribe(t, front.URL+"/__assetpipe/livereload")
	waitClients(t, s.Hub(), 1)

	rule := s.FilesRule()
	rule.Fire(t.Context(), "templates/page.php")
	assert.Equal(t, Message{Kind: events.ReloadFull, Files: []string{"page.php"}}, next())
	rule.Fire(t.Context(), "vendor/theme.css")
	assert.Equal(t, Message{Kind: events.ReloadCSS, Files: []string{"theme.css"}}, next())
}

func TestRun_StartAndStop(t *testing.T) {
	s := newServer(t, "http://127.0.0.1:1", true)
	require.NoError(t, s.Run(t.Context()))
	addr := s.Addr()
	require.NotEmpty(t, addr)
	require.NoError(t, s.Run(t.Context()))
	assert.Equal(t, addr, s.Addr())

	resp, err := http.Get("http://" + addr + "/__assetpipe/client.js")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Empty(t, s.Addr())
}

func TestRun_Disabled(t *testing.T) {
	s, err := New(Options{Config: config.ServerConfig{Enabled: boolPtr(false), Proxy: "http://localhost:8080"}})
	require.NoError(t, err)
	require.NoError(t, s.Run(t.Context()))
	assert.Empty(t, s.Addr())
}

func TestNew_RejectsInvalidProxy(t *testing.T) {
	_, err := New(Options{Config: config.ServerConfig{Proxy: "not a url"}})
	require.Error(t, err)
}
