package report

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fight5566jay/Explainable-Mortal/internal/archive"
	"github.com/fight5566jay/Explainable-Mortal/internal/splice"
)

const (
	// ArchiveSuffix is the extension of compressed mjai logs.
	ArchiveSuffix = ".json.gz"
	// ReportSuffix is the extension of generated reports.
	ReportSuffix = ".html"
)

var (
	// ErrNotArchive is returned for file names that do not end in ArchiveSuffix.
	ErrNotArchive = errors.New("not a " + ArchiveSuffix + " archive")
	// ErrOutputUnwritable is returned when the report cannot be written.
	ErrOutputUnwritable = errors.New("report unwritable")
)

// Result describes one generated report.
type Result struct {
	Archive string
	Path    string
	Kept    int
	Dropped int
}

// Generator turns one archive into one HTML report.
type Generator struct {
	reader   *archive.Reader
	template string
	markers  splice.Markers
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithMarkers overrides the injection markers.
func WithMarkers(m splice.Markers) Option {
	return func(g *Generator) { g.markers = m }
}

// WithReader overrides the archive reader.
func WithReader(r *archive.Reader) Option {
	return func(g *Generator) { g.reader = r }
}

// New creates a Generator for the template at templatePath.
// The template is read on every Generate call.
func New(templatePath string, logger *slog.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		template: templatePath,
		markers:  splice.MJAIMarkers,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.reader == nil {
		g.reader = archive.NewReader(nil, logger)
	}
	return g
}

// Template returns the template path the generator reads.
func (g *Generator) Template() string { return g.template }

// Generate writes the report for archivePath into outputDir, or next to the
// archive when outputDir is empty. An existing report is overwritten.
func (g *Generator) Generate(archivePath, outputDir string) (Result, error) {
	dest, err := ReportPath(archivePath, outputDir)
	if err != nil {
		g.logger.Error("cannot name report", "archive", archivePath, "error", err)
		return Result{}, err
	}

	payload, err := g.reader.Read(archivePath)
	if err != nil {
		return Result{}, err
	}

	doc, err := splice.Load(g.template)
	if err != nil {
		g.logger.Error("cannot read template", "template", g.template, "error", err)
		return Result{}, fmt.Errorf("%s: %w", g.template, err)
	}

	out, err := g.markers.Splice(doc, payload.Text)
	if err != nil {
		g.logger.Error("cannot find template markers", "template", g.template, "error", err)
		return Result{}, fmt.Errorf("%s: %w", g.template, err)
	}

	if err := writeFile(dest, []byte(out)); err != nil {
		g.logger.Error("cannot write report", "report", dest, "error", err)
		return Result{}, fmt.Errorf("%w: %s: %v", ErrOutputUnwritable, dest, err)
	}

	g.logger.Debug("generated report", "archive", archivePath, "report", dest,
		"kept", payload.Kept, "dropped", payload.Dropped)
	return Result{
		Archive: archivePath,
		Path:    dest,
		Kept:    payload.Kept,
		Dropped: payload.Dropped,
	}, nil
}

// ReportPath returns where Generate writes the report for archivePath:
// outputDir, or the archive's directory when outputDir is empty.
func ReportPath(archivePath, outputDir string) (string, error) {
	name, err := OutputName(archivePath)
	if err != nil {
		return "", err
	}
	if outputDir == "" {
		outputDir = filepath.Dir(archivePath)
	}
	return filepath.Join(outputDir, name), nil
}

// OutputName maps "<stem>.json.gz" to "<stem>.html". Only the trailing
// suffix is rewritten.
func OutputName(archivePath string) (string, error) {
	base := filepath.Base(archivePath)
	stem, ok := strings.CutSuffix(base, ArchiveSuffix)
	if !ok || stem == "" {
		return "", fmt.Errorf("%w: %s", ErrNotArchive, archivePath)
	}
	return stem + ReportSuffix, nil
}

// writeFile creates dest's directory and replaces dest atomically.
func writeFile(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write to a temp file in the same directory, then rename over dest.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
