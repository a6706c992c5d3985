// Package progress tracks bytes transferred and derives speed and ETA for
// subscribers. The tracker is a pure observer: attaching or detaching
// subscribers never affects the underlying transfer.
package progress

import (
	"sync"
	"time"
)

// speedWindow is the trailing window over which speed is averaged. A moving
// average avoids jitter from bursty chunk arrivals.
const speedWindow = 5 * time.Second

// Snapshot is one progress observation. ETASeconds is nil while the computed
// speed is zero.
type Snapshot struct {
	BytesLoaded      int64
	BytesTotal       int64
	Percent          float64
	SpeedBytesPerSec float64
	ETASeconds       *float64
}

type sample struct {
	at    time.Time
	delta int64
}

// Subscriber receives a snapshot on every progress update.
type Subscriber func(Snapshot)

// Tracker accumulates transferred bytes and publishes snapshots.
type Tracker struct {
	mu        sync.Mutex
	total     int64
	loaded    int64
	startedAt time.Time
	samples   []sample
	subs      map[int]Subscriber
	nextSub   int
	now       func() time.Time
}

// NewTracker creates a tracker. Total may be zero when the transfer size is
// not yet known; see SetTotal.
func NewTracker(total int64) *Tracker {
	return &Tracker{
		total: total,
		subs:  make(map[int]Subscriber),
		now:   time.Now,
	}
}

// SetTotal records the expected transfer size once it is known.
func (t *Tracker) SetTotal(total int64) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

// OnBytes records delta transferred bytes and emits a snapshot to all
// subscribers.
func (t *Tracker) OnBytes(delta int64) {
	t.mu.Lock()
	now := t.now()
	if t.startedAt.IsZero() {
		t.startedAt = now
	}
	t.loaded += delta
	t.samples = append(t.samples, sample{at: now, delta: delta})
	t.pruneLocked(now)
	snap := t.snapshotLocked(now)
	subs := make([]Subscriber, 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Snapshot returns the current progress view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(t.now())
}

// Subscribe registers fn and returns a function that detaches it.
func (t *Tracker) Subscribe(fn Subscriber) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	// Keep at least two samples so a stalled-but-started transfer still has
	// a rate baseline.
	if i > len(t.samples)-2 {
		i = len(t.samples) - 2
	}
	if i > 0 {
		t.samples = append(t.samples[:0], t.samples[i:]...)
	}
}

func (t *Tracker) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		BytesLoaded: t.loaded,
		BytesTotal:  t.total,
	}
	if t.total > 0 {
		snap.Percent = float64(t.loaded) / float64(t.total) * 100
		if snap.Percent > 100 {
			snap.Percent = 100
		}
	}

	// Speed needs at least two samples: the first marks the window start,
	// the rest contribute bytes.
	if len(t.samples) >= 2 {
		first := t.samples[0]
		elapsed := t.samples[len(t.samples)-1].at.Sub(first.at)
		if elapsed > 0 {
			var sum int64
			for _, s := range t.samples[1:] {
				sum += s.delta
			}
			snap.SpeedBytesPerSec = float64(sum) / elapsed.Seconds()
		}
	}

	if snap.SpeedBytesPerSec > 0 && t.total > 0 {
		eta := float64(t.total-t.loaded) / snap.SpeedBytesPerSec
		if eta < 0 {
			eta = 0
		}
		snap.ETASeconds = &eta
	}
	return snap
}
