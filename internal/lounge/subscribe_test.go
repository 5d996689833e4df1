package lounge

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loungeskip/internal/models"
)

// bindAndStream serves the bind handshake on POST and the event stream on the
// RID=rpc GET, delegating the stream body to fn.
func bindAndStream(t *testing.T, fn func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Query().Get("RID") == "rpc" {
			fn(w, r)
			return
		}
		fmt.Fprint(w, chunk(`[0,["c","sid-1"]]`, `[1,["S","gsession-1"]]`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSubscribeDispatchesStates(t *testing.T) {
	ts := bindAndStream(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("SID"); got != "sid-1" {
			t.Errorf("expected SID sid-1, got %q", got)
		}
		if got := r.URL.Query().Get("gsessionid"); got != "gsession-1" {
			t.Errorf("expected gsessionid, got %q", got)
		}
		if got := r.URL.Query().Get("TYPE"); got != "xmlhttp" {
			t.Errorf("expected TYPE=xmlhttp, got %q", got)
		}
		fmt.Fprint(w, chunk(`[2,["onStateChange",{"state":"1","videoId":"vid-1","currentTime":"5","duration":"60"}]]`))
	})

	s := NewWithAPIBase("screen-1", nil, Options{}, ts.URL)
	defer s.Close()
	s.loungeToken = "token-1"
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var states []models.PlaybackState
	err := s.Subscribe(context.Background(), func(st models.PlaybackState) { states = append(states, st) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	if states[0].VideoID != "vid-1" || states[0].Phase != models.PhasePlaying {
		t.Fatalf("unexpected state: %+v", states[0])
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	s := New("screen-1", nil, Options{})
	defer s.Close()
	if err := s.Subscribe(context.Background(), nil); err == nil {
		t.Fatal("expected an error before binding")
	}
}

func TestSubscribeCancellationReturnsNil(t *testing.T) {
	ts := bindAndStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	s := NewWithAPIBase("screen-1", nil, Options{}, ts.URL)
	defer s.Close()
	s.loungeToken = "token-1"
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Subscribe(ctx, nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancellation must read as a clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancellation")
	}
}

func TestWatchdogForcesReconnect(t *testing.T) {
	ts := bindAndStream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	s := NewWithAPIBase("screen-1", nil, Options{}, ts.URL)
	defer s.Close()
	s.watchdogPoll = 10 * time.Millisecond
	s.watchdogTolerance = 30 * time.Millisecond
	s.loungeToken = "token-1"
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	start := time.Now()
	if err := s.Subscribe(context.Background(), nil); err != nil {
		t.Fatalf("watchdog breach must read as a clean stop, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("watchdog took too long: %v", elapsed)
	}
}

func TestSubscribeAuthRejected(t *testing.T) {
	ts := bindAndStream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	})

	s := NewWithAPIBase("screen-1", nil, Options{}, ts.URL)
	defer s.Close()
	s.loungeToken = "token-1"
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.Subscribe(context.Background(), nil); err == nil {
		t.Fatal("expected ErrAuth from the stream")
	}
}

func TestSubscribeStaleSessionClearsFields(t *testing.T) {
	ts := bindAndStream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "stale", http.StatusBadRequest)
	})

	s := NewWithAPIBase("screen-1", nil, Options{}, ts.URL)
	defer s.Close()
	s.loungeToken = "token-1"
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.Subscribe(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a stale session")
	}
	if s.Connected() {
		t.Fatal("expected session fields cleared so the caller re-binds")
	}
}
