package targets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pingbase/pingbase/internal/storage"
)

const sample = `
targets:
  - id: folio
    user_id: user-1
    name: " Folio "
    description: Net worth tracker across brokerages.
    keywords: [net worth, portfolio tracker]
    exclusions: [crypto]
  - user_id: user-2
    name: Ledgerly
    subreddits: [personalfinance, r/fire]
`

func TestParse(t *testing.T) {
	ts, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ts) != 2 {
		t.Fatalf("got %d targets", len(ts))
	}
	if ts[0].ID != "folio" || ts[0].Name != "Folio" || len(ts[0].Keywords) != 2 || ts[0].Exclusions[0] != "crypto" {
		t.Errorf("first = %+v", ts[0])
	}
	if ts[1].ID != "" || len(ts[1].Subreddits) != 2 {
		t.Errorf("second = %+v", ts[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "targets:\n  - user_id: u\n"},
		{"missing user", "targets:\n  - name: x\n"},
		{"unknown key", "targets:\n  - name: x\n    user_id: u\n    keyword: [a]\n"},
		{"bad yaml", "targets: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	ts, err := Parse(strings.NewReader(""))
	if err != nil || len(ts) != 0 {
		t.Errorf("Parse(empty) = %v, %v", ts, err)
	}
}

func TestLoadAndImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	ts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	saved, err := Import(ctx, store, ts)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(saved) != 2 || saved[0].ID != "folio" || saved[1].ID == "" {
		t.Errorf("saved = %+v", saved)
	}

	// Re-importing updates in place.
	if _, err := Import(ctx, store, ts[:1]); err != nil {
		t.Fatal(err)
	}
	all, _ := store.ListAllTargets(ctx)
	if len(all) != 2 {
		t.Errorf("targets after re-import = %d", len(all))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}
