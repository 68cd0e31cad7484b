package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLedgerSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	archive := filepath.Join(dir, "a.json.gz")
	report := filepath.Join(dir, "a.html")
	if err := os.WriteFile(archive, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(report, []byte("<html>"), 0644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(archive)
	if err != nil {
		t.Fatal(err)
	}

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l1.Record(archive, Stamp(info, report, "t.html", nil))
	if err := l1.Save(); err != nil {
		t.Fatal(err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := l2.Get(archive)
	if !ok || e.Report != report || e.Size != 4 {
		t.Errorf("unexpected entry %+v (found=%v)", e, ok)
	}
	if !l2.Unchanged(archive, Stamp(info, report, "t.html", nil)) {
		t.Error("expected archive to be unchanged")
	}

	if _, ok := l2.Get("/nonexistent"); ok {
		t.Error("expected missing key to return false")
	}
}

func TestLedgerDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.json.gz")
	report := filepath.Join(dir, "a.html")
	if err := os.WriteFile(archive, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(report, []byte("<html>"), 0644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(archive)

	l, _ := Open("")
	l.Record(archive, Stamp(info, report, "", nil))

	// Grow the archive and bump its mtime.
	if err := os.WriteFile(archive, []byte("more data"), 0644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(archive, later, later); err != nil {
		t.Fatal(err)
	}
	changed, _ := os.Stat(archive)
	if l.Unchanged(archive, Stamp(changed, report, "", nil)) {
		t.Error("expected modified archive to be reported as changed")
	}

	// A deleted report also forces regeneration.
	if err := os.Remove(report); err != nil {
		t.Fatal(err)
	}
	if l.Unchanged(archive, Stamp(info, report, "", nil)) {
		t.Error("expected missing report to force regeneration")
	}

	l.Forget(archive)
	if _, ok := l.Get(archive); ok {
		t.Error("expected archive to be forgotten")
	}
}

func TestLedgerDetectsNewDestinationAndTemplate(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.json.gz")
	report := filepath.Join(dir, "out1", "a.html")
	tmpl := filepath.Join(dir, "t.html")
	for _, p := range []string{archive, report, tmpl} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	info, _ := os.Stat(archive)
	tinfo, _ := os.Stat(tmpl)

	l, _ := Open("")
	l.Record(archive, Stamp(info, report, tmpl, tinfo))
	if !l.Unchanged(archive, Stamp(info, report, tmpl, tinfo)) {
		t.Fatal("expected identical inputs to be unchanged")
	}

	if l.Unchanged(archive, Stamp(info, filepath.Join(dir, "out2", "a.html"), tmpl, tinfo)) {
		t.Error("expected a new output directory to force regeneration")
	}
	if l.Unchanged(archive, Stamp(info, report, filepath.Join(dir, "other.html"), tinfo)) {
		t.Error("expected a different template to force regeneration")
	}

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(tmpl, later, later); err != nil {
		t.Fatal(err)
	}
	edited, _ := os.Stat(tmpl)
	if l.Unchanged(archive, Stamp(info, report, tmpl, edited)) {
		t.Error("expected an edited template to force regeneration")
	}
}

func TestLedgerCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Get("anything"); ok {
		t.Error("expected empty ledger")
	}
}

func TestLedgerMemoryOnlySave(t *testing.T) {
	l, _ := Open("")
	if err := l.Save(); err != nil {
		t.Errorf("expected in-memory save to be a no-op, got %v", err)
	}
}
