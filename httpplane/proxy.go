package httpplane

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
)

var proxyPathRe = regexp.MustCompile(`^/proxy/(\d+)(/.*)?$`)

// ProxyMiddleware is the dev-server proxy: it relays real HTTP requests
// at /proxy/<port>/<rest> into the virtual handler registered at <port>,
// the same "receive real HTTP, call a
// synchronous handler, relay its response" shape as a serveHTTP/writeJSON
// dispatcher, generalized from JSON-RPC
// verbs to an arbitrary virtual request/response pair.
type ProxyMiddleware struct {
	Registry *Registry
}

// NewProxyMiddleware wraps reg as an http.Handler.
func NewProxyMiddleware(reg *Registry) *ProxyMiddleware {
	return &ProxyMiddleware{Registry: reg}
}

func (p *ProxyMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.Registry == nil {
		http.Error(w, "503 Lifo not loaded", http.StatusServiceUnavailable)
		return
	}

	m := proxyPathRe.FindStringSubmatch(r.URL.Path)
	if m == nil {
		http.NotFound(w, r)
		return
	}
	port, err := strconv.Atoi(m[1])
	if err != nil {
		http.Error(w, "bad port", http.StatusBadRequest)
		return
	}
	rest := m[2]
	if rest == "" {
		rest = "/"
	}
	if r.URL.RawQuery != "" {
		rest = rest + "?" + r.URL.RawQuery
	}

	bodyBytes, _ := io.ReadAll(r.Body)
	headers := map[string]string{}
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	req := &Request{
		Method:  r.Method,
		URL:     rest,
		Headers: headers,
		Body:    bodyBytes,
	}

	res, ok := p.Registry.Dispatch(port, req)
	if !ok {
		ports := p.Registry.List()
		sort.Ints(ports)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "502 no handler listening on port %d. Available ports: %v", port, ports)
		return
	}

	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}
