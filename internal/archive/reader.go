package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fight5566jay/Explainable-Mortal/internal/record"
)

// MaxLineBytes bounds a single decompressed line.
const MaxLineBytes = 64 << 20

// ErrArchiveUnreadable is returned when an archive cannot be opened,
// decompressed or decoded as UTF-8 text.
var ErrArchiveUnreadable = errors.New("archive unreadable")

// Payload is the validated content of one archive.
type Payload struct {
	Text    string // kept lines joined by "\n"
	Kept    int
	Dropped int
}

// Reader extracts validated record lines from gzip-compressed logs.
type Reader struct {
	validator record.Validator
	logger    *slog.Logger
}

// NewReader creates a Reader. A nil validator means JSON validation and a
// nil logger means slog.Default().
func NewReader(v record.Validator, logger *slog.Logger) *Reader {
	if v == nil {
		v = record.NewJSONValidator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{validator: v, logger: logger}
}

// Read decompresses the archive at path and returns its valid lines in file
// order. Malformed lines are logged and dropped; the archive as a whole only
// fails on I/O, gzip or decoding errors.
func (r *Reader) Read(path string) (Payload, error) {
	payload, err := r.read(path)
	if err != nil {
		r.logger.Error("cannot extract archive", "archive", path, "error", err)
		return Payload{}, fmt.Errorf("%w: %s: %v", ErrArchiveUnreadable, path, err)
	}
	return payload, nil
}

func (r *Reader) read(path string) (Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return Payload{}, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return Payload{}, err
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 64*1024), MaxLineBytes)
	scanner.Split(scanUniversalLines)

	var (
		kept    []string
		dropped int
	)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if !utf8.Valid(raw) {
			return Payload{}, errors.New("invalid UTF-8 in decompressed text")
		}
		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		if err := r.validator.Validate(line); err != nil {
			dropped++
			r.logger.Warn("skipping invalid JSON line",
				"archive", path,
				"line", record.Preview(line),
				"error", err)
			continue
		}
		kept = append(kept, line)
	}
	if err := scanner.Err(); err != nil {
		return Payload{}, err
	}

	return Payload{
		Text:    strings.Join(kept, "\n"),
		Kept:    len(kept),
		Dropped: dropped,
	}, nil
}

// scanUniversalLines is a bufio.SplitFunc that ends lines at "\n", "\r\n"
// or a lone "\r".
func scanUniversalLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// '\r' at the buffer edge may be the first half of "\r\n".
		if i+1 == len(data) && !atEOF {
			return 0, nil, nil
		}
		if i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
