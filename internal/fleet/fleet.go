// Package fleet runs one listener per configured device and fans their
// status out to dashboard subscribers.
package fleet

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loungeskip/internal/models"
)

// takeoverGrace gives the log line time to land before the process dies.
var takeoverGrace = 5 * time.Second

// Runner is one supervised device loop.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
	RefreshAuthLoop(ctx context.Context)
}

// Fleet supervises all device listeners as a unit. A fatal error on any
// listener (screen takeover) brings the whole fleet down; everything else is
// handled inside the listener itself.
type Fleet struct {
	listeners []Runner

	mu          sync.Mutex
	statuses    map[string]models.DeviceStatus
	subscribers map[chan models.DeviceStatus]struct{}
}

func New(listeners []Runner) *Fleet {
	return &Fleet{
		listeners:   listeners,
		statuses:    make(map[string]models.DeviceStatus),
		subscribers: make(map[chan models.DeviceStatus]struct{}),
	}
}

// Run blocks until the context is cancelled or a listener fails fatally.
// On a screen takeover it logs loudly, waits a short grace period and then
// returns the error so main can exit nonzero.
func (f *Fleet) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range f.listeners {
		l := l
		g.Go(func() error {
			err := l.Run(ctx)
			if errors.Is(err, models.ErrScreenTakeover) {
				log.Printf("fleet: device %s: %v", l.Name(), err)
				log.Printf("fleet: if you run multiple instances, make sure each uses a distinct device name")
				select {
				case <-time.After(takeoverGrace):
				case <-ctx.Done():
				}
				return err
			}
			return err
		})
		g.Go(func() error {
			l.RefreshAuthLoop(ctx)
			return nil
		})
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Publish records a device status and delivers it to every subscriber.
// Slow subscribers are skipped, never blocked on.
func (f *Fleet) Publish(st models.DeviceStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[st.Name] = st
	for ch := range f.subscribers {
		select {
		case ch <- st:
		default:
		}
	}
}

// Subscribe registers a status channel. The caller must Unsubscribe it.
func (f *Fleet) Subscribe() chan models.DeviceStatus {
	ch := make(chan models.DeviceStatus, 16)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Fleet) Unsubscribe(ch chan models.DeviceStatus) {
	f.mu.Lock()
	delete(f.subscribers, ch)
	f.mu.Unlock()
}

// Snapshot returns the latest status of every device.
func (f *Fleet) Snapshot() []models.DeviceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.DeviceStatus, 0, len(f.statuses))
	for _, st := range f.statuses {
		out = append(out, st)
	}
	return out
}
