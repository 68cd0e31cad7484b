package record

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PreviewRunes is how much of a rejected line is echoed in diagnostics.
const PreviewRunes = 100

// ErrMalformed marks a line that is not a single well-formed JSON value.
var ErrMalformed = errors.New("malformed record")

// Validator decides whether a raw log line is an acceptable record.
type Validator interface {
	Validate(line string) error
}

// ---------------------------------------------------------------------------
// JSON Validator
// ---------------------------------------------------------------------------

// JSONValidator accepts lines holding exactly one JSON value.
// The line itself is never rewritten; callers keep the original text.
type JSONValidator struct{}

func NewJSONValidator() *JSONValidator { return &JSONValidator{} }

func (v *JSONValidator) Validate(line string) error {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// Preview returns the first PreviewRunes runes of line followed by "...".
func Preview(line string) string {
	n := 0
	for i := range line {
		if n == PreviewRunes {
			return line[:i] + "..."
		}
		n++
	}
	return line + "..."
}
