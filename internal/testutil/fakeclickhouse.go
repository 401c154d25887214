package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Request is a query received by the fake ClickHouse server
type Request struct {
	Query  string
	Params url.Values
}

// Param returns a bound query parameter without its param_ prefix
func (r Request) Param(name string) string {
	return r.Params.Get("param_" + name)
}

// Responder produces the status and body for a query
type Responder func(req Request) (int, string)

// FakeClickHouse is an httptest server speaking enough of the ClickHouse HTTP
// interface for client and store tests. Queries are recorded in arrival order.
type FakeClickHouse struct {
	URL string

	mu        sync.Mutex
	requests  []Request
	responder Responder
}

// NewFakeClickHouse starts a fake server answering every query with an empty result
func NewFakeClickHouse(t *testing.T) *FakeClickHouse {
	t.Helper()

	f := &FakeClickHouse{
		responder: func(Request) (int, string) {
			return http.StatusOK, Rows()
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)

	f.URL = srv.URL

	return f
}

// Respond replaces the responder
func (f *FakeClickHouse) Respond(r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responder = r
}

// Requests returns a copy of all recorded requests
func (f *FakeClickHouse) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Request, len(f.requests))
	copy(out, f.requests)

	return out
}

// RequestsContaining returns recorded requests whose query contains substr
func (f *FakeClickHouse) RequestsContaining(substr string) []Request {
	var out []Request

	for _, r := range f.Requests() {
		if strings.Contains(r.Query, substr) {
			out = append(out, r)
		}
	}

	return out
}

func (f *FakeClickHouse) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	req := Request{Query: string(body), Params: r.URL.Query()}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	responder := f.responder
	f.mu.Unlock()

	status, out := responder(req)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(out))
}

// Rows renders a FORMAT JSON response body holding the given rows
func Rows(rows ...interface{}) string {
	data := make([]json.RawMessage, 0, len(rows))

	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			panic(err)
		}

		data = append(data, raw)
	}

	out, err := json.Marshal(map[string]interface{}{
		"data": data,
		"rows": len(data),
	})
	if err != nil {
		panic(err)
	}

	return string(out)
}

// Exception renders a ClickHouse error body
func Exception(msg string) string {
	out, _ := json.Marshal(map[string]string{"exception": msg})
	return string(out)
}
