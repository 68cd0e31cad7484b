package model

import "time"

// Kind classifies a coordinator event.
type Kind string

const (
	KindProgress  Kind = "progress"  // an archive is about to be processed
	KindGenerated Kind = "generated" // a report was written
	KindFailed    Kind = "failed"    // an archive could not be converted
	KindRemoved   Kind = "removed"   // a report was deleted by limit enforcement
	KindSummary   Kind = "summary"   // a batch run finished
)

// Event describes one step of a batch or watch run.
type Event struct {
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id"`
	Kind    Kind      `json:"kind"`
	Archive string    `json:"archive,omitempty"`
	Report  string    `json:"report,omitempty"`
	Index   int       `json:"index,omitempty"` // 1-based position within the run
	Total   int       `json:"total,omitempty"`
	Kept    int       `json:"kept,omitempty"`    // validated lines
	Dropped int       `json:"dropped,omitempty"` // malformed lines
	Err     string    `json:"error,omitempty"`
}

// Observer receives events as they happen.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Discard is an Observer that drops every event.
var Discard Observer = ObserverFunc(func(Event) {})
