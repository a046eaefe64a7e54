package devserver

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const (
	prefix       = "/__assetpipe"
	clientPath   = prefix + "/client.js"
	reloadPath   = prefix + "/livereload"
	maxInjectLen = 4 << 20
)

var scriptTag = []byte(`<script async src="` + clientPath + `"></script>`)

// clientScript connects to the hub. A "css" message re-requests matching
// stylesheets with a cache-busting query; anything else reloads the page.
const clientScript = `(() => {
  if (window.__ASSETPIPE_LR__) return;
  window.__ASSETPIPE_LR__ = true;
  const base = (href) => href.split('?')[0].split('/').pop();
  function swapCSS(files) {
    const stamp = Date.now();
    document.querySelectorAll('link[rel="stylesheet"][href]').forEach((link) => {
      if (files.length && !files.includes(base(link.getAttribute('href')))) return;
      const url = new URL(link.href, location.href);
      url.searchParams.set('assetpipe', stamp);
      link.href = url.toString();
    });
  }
  function connect() {
    const es = new EventSource('` + reloadPath + `');
    es.onmessage = (e) => {
      let msg;
      try { msg = JSON.parse(e.data); } catch (_) { return; }
      if (msg.kind === 'css') { swapCSS(msg.files || []); return; }
      location.reload();
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`

// injectScript inserts the client script tag before the last </body>, or
// appends it when the document has none.
func injectScript(html []byte) []byte {
	i := lastBodyClose(html)
	if i < 0 {
		return append(html, scriptTag...)
	}
	out := make([]byte, 0, len(html)+len(scriptTag))
	out = append(out, html[:i]...)
	out = append(out, scriptTag...)
	return append(out, html[i:]...)
}

// lastBodyClose returns the offset of the last "</body>" in html, matched
// case-insensitively over ASCII only so offsets stay valid for any encoding.
func lastBodyClose(html []byte) int {
	const tag = "</body>"
outer:
	for i := len(html) - len(tag); i >= 0; i-- {
		for j := 0; j < len(tag); j++ {
			c := html[i+j]
			if 'A' <= c && c <= 'Z' {
				c += 'a' - 'A'
			}
			if c != tag[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// injectResponse rewrites an HTML response body to load the client script.
// Encoded or oversized bodies pass through unchanged.
func injectResponse(resp *http.Response) error {
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return nil
	}
	if resp.Header.Get("Content-Encoding") != "" || resp.ContentLength > maxInjectLen {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInjectLen+1))
	if err != nil {
		return err
	}
	if len(body) > maxInjectLen {
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return nil
	}
	_ = resp.Body.Close()

	body = injectScript(body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}
