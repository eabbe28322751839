package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"way","id":5013364,"center":{"lat":48.8584,"lon":2.2945},"tags":{"name":"Eiffel Tower","tourism":"attraction"}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, 2*time.Second, 2)
	got, err := c.Fetch(context.Background(), 48.8584, 2.2945, 500)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d; want 1", len(got))
	}
	lm := got[0]
	if lm.OSMID != 5013364 || lm.Name != "Eiffel Tower" || lm.Tags["tourism"] != "attraction" {
		t.Fatalf("unexpected landmark: %+v", lm)
	}
}

func TestFetchEmptyElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, 2*time.Second, 0)
	got, err := c.Fetch(context.Background(), 1, 1, 500)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(got) = %d; want 0", len(got))
	}
}

func TestFetchUnknownTypeDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"area","id":1,"lat":1,"lon":1,"tags":{}},
			{"type":"node","id":2,"lat":2,"lon":2,"tags":{}}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, 2*time.Second, 0)
	got, err := c.Fetch(context.Background(), 1, 1, 500)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].OSMID != 2 {
		t.Fatalf("got = %+v; want only node id=2", got)
	}
}

func TestFetchHTTPStatusNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, 2*time.Second, 2)
	if _, err := c.Fetch(context.Background(), 1, 1, 500); err == nil {
		t.Fatalf("expected error on 500 status")
	}
	if calls != 1 {
		t.Fatalf("calls = %d; want 1 (HTTP status errors are not retried)", calls)
	}
}

func TestFetchTimeoutNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, 10*time.Millisecond, 2)
	if _, err := c.Fetch(context.Background(), 1, 1, 500); err == nil {
		t.Fatalf("expected timeout error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d; want 1 (a hard timeout must not be retried)", calls)
	}
}

func TestFetchConnectionRefusedRetried(t *testing.T) {
	c := New(&http.Client{}, "http://127.0.0.1:1", 200*time.Millisecond, 1)
	start := time.Now()
	if _, err := c.Fetch(context.Background(), 1, 1, 500); err == nil {
		t.Fatalf("expected connection error")
	}
	if time.Since(start) < time.Second {
		t.Fatalf("expected the 1s retry delay between attempts for connection-refused")
	}
}

func TestFetchBadResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, 2*time.Second, 0)
	if _, err := c.Fetch(context.Background(), 1, 1, 500); err == nil {
		t.Fatalf("expected parse error for malformed body")
	}
}
