package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSend_SucceedsFirstAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	result := NewSender().Send(context.Background(), srv.URL, []byte(`{"ping":1}`), Options{
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", result.Attempts)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", result.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("server saw %d calls, want 1", calls)
	}
}

func TestSend_RetriesUntilExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	delay := 20 * time.Millisecond
	start := time.Now()
	result := NewSender().Send(context.Background(), srv.URL, []byte(`{}`), Options{
		MaxRetries: 2,
		RetryDelay: delay,
	})

	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	// one initial attempt plus two retries
	if result.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", result.Attempts)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("server saw %d calls, want 3", calls)
	}
	if result.LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Fatalf("elapsed %v, want at least %v of retry delay", elapsed, 2*delay)
	}
}

func TestSend_RecoversOnLaterAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := NewSender().Send(context.Background(), srv.URL, []byte(`{}`), Options{
		MaxRetries: 3,
		RetryDelay: 5 * time.Millisecond,
	})

	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", result.Attempts)
	}
	if result.LastError != "" {
		t.Fatalf("last error should be cleared on success, got %q", result.LastError)
	}
}

func TestSend_ContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	result := NewSender().Send(ctx, srv.URL, []byte(`{}`), Options{
		MaxRetries: 10,
		RetryDelay: 50 * time.Millisecond,
	})

	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	if result.Attempts > 2 {
		t.Fatalf("attempts = %d, context should have stopped the retry loop", result.Attempts)
	}
}
