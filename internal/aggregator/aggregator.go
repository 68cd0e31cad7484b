package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/fight5566jay/Explainable-Mortal/internal/model"
)

// Stats holds a point-in-time snapshot of aggregated counters.
type Stats struct {
	Uptime        string    `json:"uptime"`
	TotalEvents   int64     `json:"total_events"`
	Generated     int64     `json:"generated"`
	Failed        int64     `json:"failed"`
	Removed       int64     `json:"removed"`
	LinesKept     int64     `json:"lines_kept"`
	LinesDropped  int64     `json:"lines_dropped"`
	DroppedEvents int64     `json:"dropped_events"`
	LastReport    string    `json:"last_report,omitempty"`
	LastReportAt  time.Time `json:"last_report_at,omitempty"`
}

// Aggregator consumes events from a Hub subscription and keeps running counters.
type Aggregator struct {
	mu        sync.RWMutex
	startTime time.Time
	stats     Stats
	dropped   func() int64
	events    <-chan model.Event
}

// New creates an Aggregator that reads from the given Hub subscriber channel.
// droppedFn reports events the Hub dropped for slow consumers.
func New(events <-chan model.Event, droppedFn func() int64) *Aggregator {
	return &Aggregator{
		startTime: time.Now(),
		dropped:   droppedFn,
		events:    events,
	}
}

// Snapshot returns the current counters.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.stats
	s.Uptime = time.Since(a.startTime).Truncate(time.Second).String()
	if a.dropped != nil {
		s.DroppedEvents = a.dropped()
	}
	return s
}

// Start begins consuming events. Blocks until the context is cancelled or
// the channel is closed.
func (a *Aggregator) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.events:
			if !ok {
				return
			}
			a.record(ev)
		}
	}
}

// record folds an event into the counters.
func (a *Aggregator) record(ev model.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalEvents++
	switch ev.Kind {
	case model.KindGenerated:
		a.stats.Generated++
		a.stats.LinesKept += int64(ev.Kept)
		a.stats.LinesDropped += int64(ev.Dropped)
		a.stats.LastReport = ev.Report
		a.stats.LastReportAt = ev.Time
	case model.KindFailed:
		a.stats.Failed++
	case model.KindRemoved:
		a.stats.Removed++
	}
}
