package featureflags

import "testing"

func TestEnabled_ValueForms(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0,always=100%,never=0%,bogus=maybe")

	tests := []struct {
		flag string
		want bool
	}{
		{"a", true},
		{"b", false},
		{"c", true},
		{"d", false},
		{"e", true},
		{"f", false},
		{"always", true},
		{"never", false},
		{"bogus", false},
		{"missing", false},
	}

	for _, tt := range tests {
		if got := m.Enabled(tt.flag, 1); got != tt.want {
			t.Errorf("Enabled(%q) = %v, want %v", tt.flag, got, tt.want)
		}
	}
}

func TestEnabled_PercentageRollout(t *testing.T) {
	m := NewManager("canary=25%")

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		if got := m.Enabled("canary", 42); got != first {
			t.Fatal("rollout evaluation must be deterministic per subject")
		}
	}

	if m.Enabled("canary", 0) {
		t.Fatal("percentage rollout requires a non-zero subject id")
	}

	// Buckets spread: across many subjects a 25% rollout must enable some
	// and skip others.
	var on int
	for id := uint(1); id <= 200; id++ {
		if m.Enabled("canary", id) {
			on++
		}
	}
	if on == 0 || on == 200 {
		t.Fatalf("expected a partial rollout, got %d/200 enabled", on)
	}
}

func TestEnabled_GlobalChecksUseZeroSubject(t *testing.T) {
	m := NewManager("pause_publishing=on")

	if !m.Enabled("pause_publishing", 0) {
		t.Fatal("expected pause_publishing to be enabled globally")
	}
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off ")

	raw := m.Raw()
	if len(raw) != 3 {
		t.Fatalf("expected 3 parsed flags, got %d", len(raw))
	}
	if raw["x"] != "on" || raw["y"] != "20%" || raw["z"] != "off" {
		t.Fatalf("unexpected raw flags: %#v", raw)
	}

	snap := m.Snapshot(123)
	if len(snap) != 3 {
		t.Fatalf("expected snapshot size 3, got %d", len(snap))
	}
	if !snap["x"] || snap["z"] {
		t.Fatalf("snapshot disagrees with Enabled: %#v", snap)
	}
}
