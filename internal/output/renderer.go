package output

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/fight5566jay/Explainable-Mortal/internal/model"
)

// Renderer writes coordinator events to an output stream.
type Renderer interface {
	Render(ev model.Event) error
}

// New returns the renderer for format ("text" or "json") writing to w.
func New(format string, w io.Writer) (Renderer, error) {
	switch format {
	case "", "text":
		return NewTextRenderer(w), nil
	case "json":
		return NewJSONRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

// Observe adapts a Renderer to model.Observer, logging render failures.
func Observe(r Renderer, logger *slog.Logger) model.Observer {
	return model.ObserverFunc(func(ev model.Event) {
		if err := r.Render(ev); err != nil {
			logger.Warn("render error", "error", err)
		}
	})
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleOK       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	styleRemoved  = lipgloss.NewStyle().Foreground(lipgloss.Color("220")) // yellow
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleSummary  = lipgloss.NewStyle().Bold(true)
	stylePath     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
)

// TextRenderer prints one human-readable line per event.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes styled text to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Render(ev model.Event) error {
	var line string
	switch ev.Kind {
	case model.KindProgress:
		counter := fmt.Sprintf("Processing %d/%d:", ev.Index, ev.Total)
		if ev.Total == 0 {
			counter = fmt.Sprintf("Processing #%d:", ev.Index)
		}
		line = styleProgress.Render(counter) + " " + filepath.Base(ev.Archive)
	case model.KindGenerated:
		line = styleOK.Render("Generated:") + " " + stylePath.Render(ev.Report)
		if ev.Dropped > 0 {
			line += styleRemoved.Render(fmt.Sprintf(" (%d invalid lines skipped)", ev.Dropped))
		}
	case model.KindFailed:
		line = styleFailed.Render("Failed:") + " " + stylePath.Render(ev.Archive) + " " + ev.Err
	case model.KindRemoved:
		line = styleRemoved.Render("Removed (limit exceeded):") + " " + stylePath.Render(ev.Report)
	case model.KindSummary:
		if ev.Report != "" {
			line = styleSummary.Render("Successfully generated: " + ev.Report)
		} else {
			line = "\n" + styleSummary.Render(fmt.Sprintf("Successfully generated %d HTML files", ev.Total))
		}
	default:
		return nil
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each event as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(ev model.Event) error {
	return r.enc.Encode(ev)
}
