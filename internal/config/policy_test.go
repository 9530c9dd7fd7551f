package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPolicy_Defaults(t *testing.T) {
	p, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.BookingClose != 15*time.Minute || p.CancelLock != 60*time.Minute {
		t.Fatalf("unexpected default windows: %+v", p)
	}
	if p.MissingThreshold != 2 {
		t.Fatalf("expected missing threshold 2, got %d", p.MissingThreshold)
	}
	if len(p.Positions) != 5 {
		t.Fatalf("expected 5 default positions, got %v", p.Positions)
	}
}

func TestLoadPolicy_MissingFileKeepsDefaults(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	if p.PurgeDelay != 10*time.Minute {
		t.Fatalf("expected defaults, got %+v", p)
	}
}

func TestLoadPolicy_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := []byte(`
ranks:
  TWR: 4
positions: ["TWR", "APP"]
booking_close_min: 30
missing_threshold: 3
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	if p.BookingClose != 30*time.Minute {
		t.Fatalf("expected overridden booking close, got %v", p.BookingClose)
	}
	if p.MissingThreshold != 3 {
		t.Fatalf("expected overridden threshold, got %d", p.MissingThreshold)
	}
	if len(p.Positions) != 2 {
		t.Fatalf("expected overridden positions, got %v", p.Positions)
	}
	if got, err := p.Ranks.MinimumRank("TWR"); err != nil || got != 4 {
		t.Fatalf("expected overridden rank table, got %d (%v)", got, err)
	}
	// Незаданные поля остаются дефолтными.
	if p.CancelLock != 60*time.Minute {
		t.Fatalf("expected untouched cancel lock, got %v", p.CancelLock)
	}
}

func TestLoadPolicy_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("positions: [unclosed"), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
