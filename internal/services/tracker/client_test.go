package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaumene/announcarr/internal/config"
	"github.com/amaumene/announcarr/internal/utils"
)

func newTestClient(t *testing.T, attempts int) *Client {
	t.Helper()
	client, err := NewClient(&config.Config{
		FetchTimeout:  5 * time.Second,
		FetchRate:     1000,
		FetchAttempts: attempts,
	}, utils.NewTestLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "announcarr/1.0" {
			t.Errorf("Unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("d8:announce"))
	}))
	defer server.Close()

	data, err := newTestClient(t, 1).Fetch(context.Background(), server.URL+"/1/key/Name.torrent")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "d8:announce" {
		t.Errorf("Unexpected body %q", data)
	}
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(t, 3).Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("Expected a single request for a missing release, got %d", n)
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	data, err := newTestClient(t, 3).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if n := atomic.LoadInt32(&requests); string(data) != "ok" || n != 3 {
		t.Errorf("Expected success on third request, got %q after %d", data, n)
	}
}

func TestFetchClientErrorIsTransient(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(t, 3).Fetch(context.Background(), server.URL)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected a transient error, got %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("Expected no in-attempt retry for 403, got %d requests", n)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(make([]byte, maxTorrentSize+1))
	}))
	defer server.Close()

	data, err := newTestClient(t, 3).Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatalf("Expected an oversized body to fail, got %d bytes", len(data))
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("Expected a transient error, got %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("Expected no in-attempt retry for an oversized body, got %d requests", n)
	}
}

func TestFetchAcceptsBodyAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, maxTorrentSize))
	}))
	defer server.Close()

	data, err := newTestClient(t, 1).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(data) != maxTorrentSize {
		t.Errorf("Expected %d bytes, got %d", maxTorrentSize, len(data))
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(&config.Config{FetchRate: 1}, utils.NewTestLogger()); err == nil {
		t.Error("Expected zero timeout to be rejected")
	}
}
