package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fight5566jay/Explainable-Mortal/internal/model"
)

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewJSONRenderer(&buf)

	ev := model.Event{
		Time:    time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC),
		RunID:   "run-1",
		Kind:    model.KindGenerated,
		Archive: "/logs/game.json.gz",
		Report:  "/logs/game.html",
		Kept:    120,
		Dropped: 1,
	}

	if err := renderer.Render(ev); err != nil {
		t.Fatal(err)
	}

	var got model.Event
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, buf.String())
	}

	if got.Kind != model.KindGenerated {
		t.Errorf("expected kind generated, got %s", got.Kind)
	}
	if got.Report != "/logs/game.html" {
		t.Errorf("expected report '/logs/game.html', got %q", got.Report)
	}
	if got.Dropped != 1 {
		t.Errorf("expected dropped 1, got %d", got.Dropped)
	}
}

func TestTextRenderer(t *testing.T) {
	tests := []struct {
		ev   model.Event
		want string
	}{
		{model.Event{Kind: model.KindProgress, Index: 2, Total: 5, Archive: "/logs/b.json.gz"}, "Processing 2/5:"},
		{model.Event{Kind: model.KindGenerated, Report: "/out/b.html"}, "Generated:"},
		{model.Event{Kind: model.KindFailed, Archive: "/logs/c.json.gz", Err: "boom"}, "boom"},
		{model.Event{Kind: model.KindRemoved, Report: "/out/d.html"}, "Removed (limit exceeded):"},
		{model.Event{Kind: model.KindSummary, Total: 3}, "Successfully generated 3 HTML files"},
		{model.Event{Kind: model.KindSummary, Report: "/out/e.html"}, "Successfully generated: /out/e.html"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := NewTextRenderer(&buf).Render(tt.ev); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("%s: expected %q in %q", tt.ev.Kind, tt.want, buf.String())
		}
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New("yaml", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}
