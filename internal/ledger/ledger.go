package ledger

import (
	"encoding/json"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Entry records the inputs a report was generated from.
type Entry struct {
	Size            int64     `json:"size"`
	ModTime         time.Time `json:"mod_time"`
	Report          string    `json:"report"`
	Template        string    `json:"template"`
	TemplateModTime time.Time `json:"template_mod_time"`
}

// Stamp describes converting an archive in state info into report with the
// template at template. A nil tmpl leaves the template mtime zero.
func Stamp(info fs.FileInfo, report, template string, tmpl fs.FileInfo) Entry {
	e := Entry{
		Size:     info.Size(),
		ModTime:  info.ModTime().UTC(),
		Report:   report,
		Template: template,
	}
	if tmpl != nil {
		e.TemplateModTime = tmpl.ModTime().UTC()
	}
	return e
}

func (e Entry) matches(o Entry) bool {
	return e.Size == o.Size &&
		e.ModTime.Equal(o.ModTime) &&
		e.Report == o.Report &&
		e.Template == o.Template &&
		e.TemplateModTime.Equal(o.TemplateModTime)
}

// ledgerData is the on-disk JSON structure.
type ledgerData struct {
	Archives map[string]Entry `json:"archives"`
}

// Ledger remembers which archives have been converted so watch mode can
// skip unchanged ones after a restart. An empty path keeps it in memory.
type Ledger struct {
	mu    sync.RWMutex
	path  string
	data  ledgerData
	dirty bool
}

// Open creates or loads a ledger file at the given path. A missing or
// corrupt file starts an empty ledger.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		data: ledgerData{Archives: make(map[string]Entry)},
	}
	if path == "" {
		return l, nil
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		_ = json.Unmarshal(raw, &l.data)
	case !os.IsNotExist(err):
		return nil, err
	}
	if l.data.Archives == nil {
		l.data.Archives = make(map[string]Entry)
	}
	return l, nil
}

// Get returns the entry recorded for an archive path.
func (l *Ledger) Get(archive string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.data.Archives[archive]
	return e, ok
}

// Record stores the inputs a report was generated from.
func (l *Ledger) Record(archive string, e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.Archives[archive] = e
	l.dirty = true
}

// Forget drops an archive, typically after it was deleted.
func (l *Ledger) Forget(archive string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.data.Archives[archive]; ok {
		delete(l.data.Archives, archive)
		l.dirty = true
	}
}

// Unchanged reports whether archive was last converted from exactly want,
// including the report destination and template, and the report still exists.
func (l *Ledger) Unchanged(archive string, want Entry) bool {
	e, ok := l.Get(archive)
	if !ok || !e.matches(want) {
		return false
	}
	_, err := os.Stat(e.Report)
	return err == nil
}

// Save writes the ledger to disk atomically when it has changed.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path == "" || !l.dirty {
		return nil
	}

	raw, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first, then rename for atomicity.
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return err
	}
	l.dirty = false
	return nil
}
