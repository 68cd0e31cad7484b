package batch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/fight5566jay/Explainable-Mortal/internal/ledger"
	"github.com/fight5566jay/Explainable-Mortal/internal/report"
	"github.com/fight5566jay/Explainable-Mortal/internal/watcher"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// DefaultSettle is how long an archive must go without writes before it is
// converted in watch mode.
const DefaultSettle = 500 * time.Millisecond

// Watch converts the archives already under the watcher's root, then keeps
// converting archives as they are created or rewritten. Archives the ledger
// knows to be unchanged are skipped. The limit does not apply. Watch returns
// nil when ctx is cancelled or the watcher stops.
func (c *Coordinator) Watch(ctx context.Context, w *watcher.Watcher, l *ledger.Ledger, settle time.Duration) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	runID := uuid.NewString()
	log := c.logger.With("run_id", runID)

	matches, err := c.enumerate(log, w.Root())
	if err != nil && !errors.Is(err, ErrNoMatchingArchives) {
		return err
	}

	seq := 0
	convert := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			l.Forget(path)
			return
		}
		want, ok := c.stamp(path, info)
		if ok && l.Unchanged(path, want) {
			log.Debug("archive unchanged, skipping", "archive", path)
			return
		}
		seq++
		res := Result{RunID: runID}
		if c.generate(&res, path, seq, 0) && ok {
			l.Record(path, want)
		}
	}

	for _, path := range matches {
		if ctx.Err() != nil {
			return c.saveLedger(log, l)
		}
		convert(path)
	}
	if err := c.saveLedger(log, l); err != nil {
		return err
	}

	tick := settle / 2
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	saveTicker := time.NewTicker(5 * time.Second)
	defer saveTicker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return c.saveLedger(log, l)

		case ev, ok := <-w.Events:
			if !ok {
				return c.saveLedger(log, l)
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[ev.Path] = time.Now()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Path)
				l.Forget(ev.Path)
			}

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				convert(path)
			}

		case <-saveTicker.C:
			_ = c.saveLedger(log, l)
		}
	}
}

// stamp describes converting path under the current options. It reports
// false when the archive cannot be named, leaving generation to fail loudly.
func (c *Coordinator) stamp(path string, info fs.FileInfo) (ledger.Entry, bool) {
	dest, err := report.ReportPath(path, c.opts.OutputDir)
	if err != nil {
		return ledger.Entry{}, false
	}
	tmpl, _ := os.Stat(c.opts.Template)
	return ledger.Stamp(info, dest, c.opts.Template, tmpl), true
}

func (c *Coordinator) saveLedger(log *slog.Logger, l *ledger.Ledger) error {
	if err := l.Save(); err != nil {
		log.Warn("ledger save failed", "error", err)
		return err
	}
	return nil
}
