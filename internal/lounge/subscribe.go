package lounge

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"loungeskip/internal/httputil"
	"loungeskip/internal/models"
)

// Subscribe opens the long-poll event stream and dispatches every received
// event in order, invoking callback with the updated playback state when one
// arrives. It blocks until the stream ends: server close, transport error,
// watchdog breach or caller cancellation. Cancellation and watchdog breaches
// return nil; the caller's reconnect loop decides what happens next.
//
// Any previous subscription on this session is cancelled and awaited first;
// a session never has two concurrent streams.
func (s *Session) Subscribe(ctx context.Context, callback func(models.PlaybackState)) error {
	s.subMu.Lock()
	if s.subCancel != nil {
		prevCancel, prevDone := s.subCancel, s.subDone
		s.subMu.Unlock()
		prevCancel()
		<-prevDone
		s.subMu.Lock()
	}
	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.subCancel = cancel
	s.subDone = done
	s.onState = callback
	s.subMu.Unlock()

	defer func() {
		cancel()
		close(done)
		s.subMu.Lock()
		if s.subDone == done {
			s.subCancel = nil
			s.subDone = nil
		}
		s.subMu.Unlock()
	}()

	s.mu.Lock()
	sid, gsession, aid, token := s.sid, s.gsession, s.aid, s.loungeToken
	s.lastEvent = time.Now()
	s.mu.Unlock()
	if sid == "" || gsession == "" {
		return fmt.Errorf("subscribe: session not connected")
	}

	watchdogDone := make(chan struct{})
	go s.watchdog(subCtx, cancel, watchdogDone)
	defer func() {
		cancel()
		<-watchdogDone
	}()

	query := url.Values{
		"device":        {"REMOTE_CONTROL"},
		"id":            {s.deviceID},
		"name":          {s.opts.JoinName},
		"loungeIdToken": {token},
		"SID":           {sid},
		"gsessionid":    {gsession},
		"RID":           {"rpc"},
		"VER":           {bindVersion},
		"CVER":          {bindCVersion},
		"CI":            {"0"},
		"TYPE":          {"xmlhttp"},
		"AID":           {strconv.FormatInt(aid, 10)},
		"zx":            {randomID()},
	}

	req, err := http.NewRequestWithContext(subCtx, http.MethodGet,
		s.apiBase+"/bc/bind?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := s.stream.Do(req)
	if err != nil {
		if subCtx.Err() != nil {
			return nil
		}
		return fmt.Errorf("event stream: %w", err)
	}
	defer httputil.DrainBody(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.ErrAuth
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusGone:
		s.mu.Lock()
		s.sid = ""
		s.gsession = ""
		s.mu.Unlock()
		return fmt.Errorf("event stream rejected with status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	if err := parseChunks(resp.Body, s.dispatch); err != nil {
		if subCtx.Err() != nil {
			return nil
		}
		return fmt.Errorf("event stream: %w", err)
	}
	return nil
}

// watchdog cancels the active subscription when no protocol activity at all
// (the far end heartbeats at least every ~30s) is seen within the tolerance.
// It never reports an error; a cancelled stream feeds back into the caller's
// reconnect loop.
func (s *Session) watchdog(ctx context.Context, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.watchdogPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastEvent)
			s.mu.Unlock()
			if idle > s.watchdogTolerance {
				log.Printf("lounge %s: no events for %v, forcing reconnect", s.screenID, idle.Round(time.Second))
				cancel()
				return
			}
		}
	}
}
