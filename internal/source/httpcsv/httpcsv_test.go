package httpcsv

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fundboard/internal/csvparse"
)

func TestFetchText_CacheBustingAndHeaders(t *testing.T) {
	var gotQuery, gotCacheControl, gotPragma, gotOutput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("t")
		gotOutput = r.URL.Query().Get("output")
		gotCacheControl = r.Header.Get("Cache-Control")
		gotPragma = r.Header.Get("Pragma")
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("Montant;Objectif\r\n10;50000\r\n"))
	}))
	defer srv.Close()

	fixed := time.UnixMilli(1760886000123)
	c, err := New(srv.URL+"/pub?output=csv", time.Second, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, err := c.FetchText(context.Background())
	if err != nil {
		t.Fatalf("FetchText() error = %v", err)
	}
	if !strings.HasPrefix(text, "Montant;Objectif") {
		t.Errorf("unexpected body %q", text)
	}
	if gotQuery != "1760886000123" {
		t.Errorf("t = %q, want unix millis", gotQuery)
	}
	if gotOutput != "csv" {
		t.Errorf("existing query parameter lost: output=%q", gotOutput)
	}
	if gotCacheControl != "no-cache, no-store" || gotPragma != "no-cache" {
		t.Errorf("cache headers = %q / %q", gotCacheControl, gotPragma)
	}
}

func TestFetchText_FreshParameterEachCall(t *testing.T) {
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Query().Get("t")] = true
		_, _ = w.Write([]byte("a,b\n"))
	}))
	defer srv.Close()

	var tick int64
	c, err := New(srv.URL, time.Second, WithClock(func() time.Time {
		return time.UnixMilli(atomic.AddInt64(&tick, 1))
	}))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.FetchText(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct cache-busting values, got %v", seen)
	}
}

func TestFetchText_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.FetchText(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("error = %v, want ErrUnexpectedStatus", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("status code missing from %q", err)
	}
}

func TestFetchText_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second, WithMaxBytes(16))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FetchText(context.Background()); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
}

func TestFetchText_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(srv.URL, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.FetchText(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestReadRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Nom,Montant\r\nA,\"1 234,56 $\"\r\n"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := c.ReadRows(context.Background())
	if err != nil {
		t.Fatalf("ReadRows() error = %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "1 234,56 $" {
		t.Errorf("rows = %q", rows)
	}
}

func TestReadRows_EmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\r\n  \r\n"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReadRows(context.Background()); !errors.Is(err, csvparse.ErrEmptyPayload) {
		t.Fatalf("error = %v, want ErrEmptyPayload", err)
	}
}

func TestNew_RejectsNonHTTP(t *testing.T) {
	if _, err := New("ftp://example.com/x.csv", time.Second); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}
