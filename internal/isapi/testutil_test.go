package isapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fixtureServer is a canned ISAPI device: request "METHOD /ISAPI/path" keys
// map to response bodies, anything else is a 404. Every request is recorded.
type fixtureServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	fixtures map[string]string
	requests []recordedRequest
}

func newFixtureServer(t *testing.T, fixtures map[string]string) *fixtureServer {
	t.Helper()
	f := &fixtureServer{t: t, fixtures: fixtures}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixtureServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	resp, ok := f.fixtures[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if strings.HasPrefix(strings.TrimSpace(resp), "{") {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/xml")
	}
	io.WriteString(w, resp)
}

func (f *fixtureServer) set(key, body string) {
	f.mu.Lock()
	f.fixtures[key] = body
	f.mu.Unlock()
}

func (f *fixtureServer) client(opts ...Option) *Client {
	return New(f.srv.URL, "admin", "secret12", opts...)
}

func (f *fixtureServer) requestsTo(method, path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, req := range f.requests {
		if req.Method == method && req.Path == path {
			out = append(out, req)
		}
	}
	return out
}
