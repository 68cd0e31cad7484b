package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fight5566jay/Explainable-Mortal/internal/model"
	"github.com/fight5566jay/Explainable-Mortal/internal/report"
	"github.com/google/uuid"
)

const (
	// DefaultPattern selects every archive directly inside the input directory.
	DefaultPattern = "*" + report.ArchiveSuffix

	compressedSuffix = ".gz"
)

var (
	ErrTemplateNotFound   = errors.New("template file not found")
	ErrInputPathInvalid   = errors.New("input path does not exist")
	ErrInputNotArchive    = errors.New("input file must be a " + report.ArchiveSuffix + " file")
	ErrUnsafePattern      = errors.New("pattern does not select compressed files")
	ErrBadPattern         = errors.New("invalid selection pattern")
	ErrListing            = errors.New("cannot list archives")
	ErrNoMatchingArchives = errors.New("no matching archives")
	ErrGenerationFailed   = errors.New("report generation failed")
)

// Options configures a Coordinator.
type Options struct {
	Template  string // template document path, required
	OutputDir string // empty means next to each archive
	Pattern   string // directory-mode selection, DefaultPattern when empty
	Limit     int    // reports kept in directory mode, 0 for no cap
}

// Result is the outcome of one run.
type Result struct {
	RunID   string
	Reports []string // generated reports in discovery order
	Removed []string // reports deleted by limit enforcement
	Failed  int
}

// Coordinator drives report generation over single archives or directories.
type Coordinator struct {
	opts     Options
	gen      *report.Generator
	logger   *slog.Logger
	observer model.Observer
}

// New creates a Coordinator. A nil observer discards events.
func New(opts Options, logger *slog.Logger, observer model.Observer) *Coordinator {
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = model.Discard
	}
	return &Coordinator{
		opts:     opts,
		gen:      report.New(opts.Template, logger),
		logger:   logger,
		observer: observer,
	}
}

// CheckTemplate verifies that the template document exists.
func (c *Coordinator) CheckTemplate() error {
	if _, err := os.Stat(c.opts.Template); err != nil {
		c.logger.Error("template file not found", "template", c.opts.Template)
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, c.opts.Template)
	}
	return nil
}

// Process converts input, which may be one archive or a directory of them.
func (c *Coordinator) Process(ctx context.Context, input string) (Result, error) {
	if err := c.CheckTemplate(); err != nil {
		return Result{}, err
	}

	info, err := os.Stat(input)
	switch {
	case err != nil:
		c.logger.Error("input path does not exist", "input", input)
		return Result{}, fmt.Errorf("%w: %s", ErrInputPathInvalid, input)
	case info.Mode().IsRegular():
		res, err := c.RunFile(ctx, input)
		if err == nil {
			c.emit(model.Event{RunID: res.RunID, Kind: model.KindSummary, Report: res.Reports[0], Total: 1})
		}
		return res, err
	case info.IsDir():
		res, err := c.RunDir(ctx, input)
		c.emit(model.Event{RunID: res.RunID, Kind: model.KindSummary, Total: len(res.Reports)})
		return res, err
	default:
		c.logger.Error("input path is neither a file nor a directory", "input", input)
		return Result{}, fmt.Errorf("%w: %s", ErrInputPathInvalid, input)
	}
}

// RunFile converts a single archive. Enumeration and the limit do not apply.
func (c *Coordinator) RunFile(ctx context.Context, path string) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if !strings.HasSuffix(path, report.ArchiveSuffix) {
		c.logger.Error("input file must be a "+report.ArchiveSuffix+" file", "input", path)
		return res, fmt.Errorf("%w: %s", ErrInputNotArchive, path)
	}

	if !c.generate(&res, path, 1, 1) {
		return res, fmt.Errorf("%w: %s", ErrGenerationFailed, path)
	}
	return res, nil
}

// RunDir converts every archive under dir matching the selection pattern.
// Individual failures are counted and skipped. When a limit is set, reports
// past it are deleted and dropped from the result.
func (c *Coordinator) RunDir(ctx context.Context, dir string) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := c.logger.With("run_id", res.RunID)

	matches, err := c.enumerate(log, dir)
	if err != nil {
		return res, err
	}

	log.Info("found archives to process", "count", len(matches), "dir", dir)
	for i, path := range matches {
		if err := ctx.Err(); err != nil {
			log.Warn("run interrupted", "processed", i, "total", len(matches))
			c.enforceLimit(log, &res)
			return res, err
		}
		c.generate(&res, path, i+1, len(matches))
	}

	c.enforceLimit(log, &res)
	return res, nil
}

// enumerate applies the pattern safety gate and lists matching files.
func (c *Coordinator) enumerate(log *slog.Logger, dir string) ([]string, error) {
	pattern := c.opts.Pattern
	if !strings.HasSuffix(pattern, report.ArchiveSuffix) {
		log.Warn("pattern does not end with "+report.ArchiveSuffix, "pattern", pattern)
		if !strings.HasSuffix(pattern, compressedSuffix) {
			log.Error("will only process compressed files for safety", "pattern", pattern)
			return nil, fmt.Errorf("%w: %q", ErrUnsafePattern, pattern)
		}
	}
	if !doublestar.ValidatePattern(pattern) {
		log.Error("invalid selection pattern", "pattern", pattern)
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}

	rel, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
	if err != nil {
		log.Error("cannot list archives", "dir", dir, "pattern", pattern, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrListing, dir, err)
	}
	if len(rel) == 0 {
		log.Warn("no files matching pattern", "pattern", pattern, "dir", dir)
		return nil, fmt.Errorf("%w: %q in %s", ErrNoMatchingArchives, pattern, dir)
	}

	paths := make([]string, len(rel))
	for i, r := range rel {
		paths[i] = filepath.Join(dir, filepath.FromSlash(r))
	}
	return paths, nil
}

// generate converts one archive, records the outcome in res and reports
// whether a report was written.
func (c *Coordinator) generate(res *Result, path string, index, total int) bool {
	c.emit(model.Event{RunID: res.RunID, Kind: model.KindProgress, Archive: path, Index: index, Total: total})

	out, err := c.gen.Generate(path, c.opts.OutputDir)
	if err != nil {
		res.Failed++
		c.emit(model.Event{RunID: res.RunID, Kind: model.KindFailed, Archive: path, Index: index, Total: total, Err: err.Error()})
		return false
	}

	res.Reports = append(res.Reports, out.Path)
	c.emit(model.Event{
		RunID:   res.RunID,
		Kind:    model.KindGenerated,
		Archive: path,
		Report:  out.Path,
		Index:   index,
		Total:   total,
		Kept:    out.Kept,
		Dropped: out.Dropped,
	})
	return true
}

// enforceLimit deletes reports beyond the limit and truncates res.Reports.
// A path is only removed if it is an existing .html file that is not also
// one of the retained reports.
func (c *Coordinator) enforceLimit(log *slog.Logger, res *Result) {
	limit := c.opts.Limit
	if limit <= 0 || len(res.Reports) <= limit {
		return
	}

	kept := make(map[string]bool, limit)
	for _, p := range res.Reports[:limit] {
		kept[p] = true
	}

	for _, p := range res.Reports[limit:] {
		if !strings.HasSuffix(p, report.ReportSuffix) || kept[p] {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := os.Remove(p); err != nil {
			log.Warn("could not remove report", "report", p, "error", err)
			continue
		}
		res.Removed = append(res.Removed, p)
		c.emit(model.Event{RunID: res.RunID, Kind: model.KindRemoved, Report: p})
	}
	res.Reports = res.Reports[:limit:limit]
}

func (c *Coordinator) emit(ev model.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	c.observer.Notify(ev)
}
