// Package splice injects a payload into a template document between two
// literal markers.
//
// Only the first occurrence of each marker is considered, and each is searched
// for independently. Templates that repeat a marker are unsupported: the
// result is whatever the first occurrences delimit.
package splice

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrTemplateUnreadable is returned when the template file cannot be read.
	ErrTemplateUnreadable = errors.New("template unreadable")
	// ErrMarkersMissing is returned when either marker is absent.
	ErrMarkersMissing = errors.New("template markers not found")
	// ErrMarkersMisordered is returned when the end marker starts before the
	// start marker.
	ErrMarkersMisordered = errors.New("template markers out of order")
)

// Markers delimit the injection span. Both strings are kept in the output.
type Markers struct {
	Start string
	End   string
}

// MJAIMarkers wrap the allActions literal in the mjai review page.
var MJAIMarkers = Markers{
	Start: "allActions = `\n",
	End:   "\n    `.trim().split('\\n').map(s => JSON.parse(s))",
}

// Span returns the offsets a splice cuts at: the output keeps doc[:from] and
// doc[to:]. The markers may share bytes, as the mjai pair does around an empty
// placeholder, in which case to < from and the shared bytes appear on both
// sides of the payload.
func (m Markers) Span(doc string) (from, to int, err error) {
	start := strings.Index(doc, m.Start)
	end := strings.Index(doc, m.End)
	if start == -1 || end == -1 {
		return 0, 0, ErrMarkersMissing
	}
	if end < start {
		return 0, 0, ErrMarkersMisordered
	}
	return start + len(m.Start), end, nil
}

// Splice returns doc with the content between the markers replaced by payload.
func (m Markers) Splice(doc, payload string) (string, error) {
	from, to, err := m.Span(doc)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(from + len(payload) + len(doc) - to)
	b.WriteString(doc[:from])
	b.WriteString(payload)
	b.WriteString(doc[to:])
	return b.String(), nil
}

// Splice applies MJAIMarkers.
func Splice(doc, payload string) (string, error) {
	return MJAIMarkers.Splice(doc, payload)
}

// Load reads a template document from disk.
func Load(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateUnreadable, err)
	}
	return string(raw), nil
}
