package listener

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"time"

	"loungeskip/internal/config"
	"loungeskip/internal/models"
)

const (
	// DefaultRetryInterval paces credential refresh, availability polling
	// and connect attempts.
	DefaultRetryInterval = 10 * time.Second

	// DefaultAuthRefreshInterval keeps the long-lived token fresh.
	DefaultAuthRefreshInterval = 24 * time.Hour
)

// Controller is the slice of the lounge session the listener drives.
type Controller interface {
	Linked() bool
	ScreenName() string
	RefreshAuth(ctx context.Context) error
	IsAvailable(ctx context.Context) bool
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, callback func(models.PlaybackState)) error
	Seek(ctx context.Context, seconds float64) error
	Close()
}

// SegmentSource resolves videos to skip segments and reports usage.
type SegmentSource interface {
	GetSegments(ctx context.Context, videoID string) ([]models.Segment, error)
	MarkViewed(ctx context.Context, uuids []string)
}

// Recorder persists executed skips. Optional; failures never affect skipping.
type Recorder interface {
	RecordSkip(ev *models.SkipEvent) error
}

// StatusSink receives per-device status snapshots for the dashboard.
type StatusSink func(models.DeviceStatus)

// Listener keeps exactly one device linked, connected and subscribed, and
// converts its playback events into timed skip actions.
type Listener struct {
	name     string
	screenID string
	offset   time.Duration

	session  Controller
	segments SegmentSource
	recorder Recorder
	status   StatusSink

	retryInterval       time.Duration
	authRefreshInterval time.Duration

	mu         sync.Mutex
	runCtx     context.Context
	skipCancel context.CancelFunc
	skipDone   chan struct{}
	lastState  models.PlaybackState
	connected  bool
}

type Option func(*Listener)

func WithRecorder(r Recorder) Option {
	return func(l *Listener) { l.recorder = r }
}

func WithStatusSink(sink StatusSink) Option {
	return func(l *Listener) { l.status = sink }
}

func WithRetryInterval(d time.Duration) Option {
	return func(l *Listener) { l.retryInterval = d }
}

func New(device config.Device, session Controller, segments SegmentSource, opts ...Option) *Listener {
	l := &Listener{
		name:                device.Name,
		screenID:            device.ScreenID,
		offset:              device.SkipOffset(),
		session:             session,
		segments:            segments,
		retryInterval:       DefaultRetryInterval,
		authRefreshInterval: DefaultAuthRefreshInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Listener) Name() string { return l.name }

// Run is the always-on reconnect loop: link, wait for the device to be
// reachable, bind, subscribe, repeat. It returns on context cancellation, or
// with models.ErrScreenTakeover when continuing would corrupt the device.
// Every other failure is contained and retried.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	l.runCtx = ctx
	l.mu.Unlock()
	defer l.shutdown()

	for !l.session.Linked() {
		if err := l.session.RefreshAuth(ctx); err != nil {
			if errors.Is(err, models.ErrAuth) {
				log.Printf("listener %s: pairing no longer valid, re-pair the device", l.name)
			} else {
				slog.Debug("credential refresh failed", "device", l.name, "error", err)
			}
			if !sleepCtx(ctx, l.retryInterval) {
				return ctx.Err()
			}
		}
	}

	for ctx.Err() == nil {
		for !l.session.IsAvailable(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.setConnected(false)
			if !sleepCtx(ctx, l.retryInterval) {
				return ctx.Err()
			}
		}

		if err := l.session.Connect(ctx); err != nil {
			if errors.Is(err, models.ErrScreenTakeover) {
				return err
			}
			slog.Debug("connect failed", "device", l.name, "error", err)
			if !sleepCtx(ctx, l.retryInterval) {
				return ctx.Err()
			}
			continue
		}

		log.Printf("listener %s: connected to %s", l.name, l.session.ScreenName())
		l.setConnected(true)

		if err := l.session.Subscribe(ctx, l.onPlaybackState); err != nil {
			slog.Debug("subscription ended", "device", l.name, "error", err)
		}
		l.setConnected(false)
	}
	return ctx.Err()
}

// RefreshAuthLoop re-runs the credential refresh periodically so the
// long-lived token never lapses mid-run.
func (l *Listener) RefreshAuthLoop(ctx context.Context) {
	ticker := time.NewTicker(l.authRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.session.RefreshAuth(ctx); err != nil && ctx.Err() == nil {
				log.Printf("listener %s: scheduled credential refresh: %v", l.name, err)
			}
		}
	}
}

// onPlaybackState runs on every inbound state update. It replaces the
// in-flight skip task: at most one is ever pending per device.
func (l *Listener) onPlaybackState(state models.PlaybackState) {
	received := time.Now()

	l.mu.Lock()
	if l.skipCancel != nil {
		l.skipCancel()
	}
	runCtx := l.runCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(runCtx)
	done := make(chan struct{})
	l.skipCancel = cancel
	l.skipDone = done
	l.lastState = state
	l.mu.Unlock()

	l.publishStatus()

	go func() {
		defer close(done)
		defer cancel()
		l.processPlayback(ctx, state, received)
	}()
}

func (l *Listener) processPlayback(ctx context.Context, state models.PlaybackState, received time.Time) {
	var segs []models.Segment
	if state.VideoID != "" {
		var err error
		segs, err = l.segments.GetSegments(ctx, state.VideoID)
		if err != nil {
			slog.Debug("segment lookup failed", "device", l.name, "video", state.VideoID, "error", err)
			return
		}
	}
	if state.Phase != models.PhasePlaying || len(segs) == 0 {
		return
	}
	log.Printf("listener %s: playing %s with %d skippable regions", l.name, state.VideoID, len(segs))

	seg, skipFrom, ok := nextSegment(segs, state.CurrentTime)
	if !ok {
		return
	}

	wait := skipDelay(skipFrom, state.CurrentTime, time.Since(received), state.Speed, l.offset)
	if wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	if ctx.Err() != nil {
		return
	}

	// Seek and report concurrently; neither waits on the other.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.segments.MarkViewed(ctx, seg.UUIDs)
	}()

	if err := l.session.Seek(ctx, seg.End); err != nil {
		if ctx.Err() == nil {
			log.Printf("listener %s: seek to %.1f failed: %v", l.name, seg.End, err)
		}
	} else {
		log.Printf("listener %s: skipped %s [%.1f, %.1f)", l.name, state.VideoID, seg.Start, seg.End)
		l.recordSkip(state.VideoID, seg)
	}
	wg.Wait()
}

func (l *Listener) recordSkip(videoID string, seg models.Segment) {
	if l.recorder == nil {
		return
	}
	ev := &models.SkipEvent{
		DeviceName:   l.name,
		VideoID:      videoID,
		SegmentStart: seg.Start,
		SegmentEnd:   seg.End,
		ReportCount:  len(seg.UUIDs),
		SkippedAt:    time.Now().UTC(),
	}
	if err := l.recorder.RecordSkip(ev); err != nil {
		log.Printf("listener %s: recording skip: %v", l.name, err)
	}
}

// shutdown cancels the in-flight skip task and the session's task tree,
// awaiting both. Cancellation-caused errors are swallowed.
func (l *Listener) shutdown() {
	l.mu.Lock()
	cancel, done := l.skipCancel, l.skipDone
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	l.session.Close()
	l.setConnected(false)
}

func (l *Listener) setConnected(connected bool) {
	l.mu.Lock()
	changed := l.connected != connected
	l.connected = connected
	l.mu.Unlock()
	if changed {
		l.publishStatus()
	}
}

func (l *Listener) publishStatus() {
	if l.status == nil {
		return
	}
	l.mu.Lock()
	st := models.DeviceStatus{
		Name:      l.name,
		ScreenID:  l.screenID,
		Connected: l.connected,
		VideoID:   l.lastState.VideoID,
		Phase:     l.lastState.Phase.String(),
		Position:  l.lastState.CurrentTime,
		LastEvent: l.lastState.At,
	}
	l.mu.Unlock()
	l.status(st)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
