package store

import (
	"testing"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	var applied int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&applied); err != nil {
		t.Fatalf("reading schema_version: %v", err)
	}
	if applied == 0 {
		t.Fatal("no migrations recorded")
	}

	// Re-running against the same handle is a no-op, not a duplicate apply.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var again int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&again); err != nil {
		t.Fatalf("re-reading schema_version: %v", err)
	}
	if again != applied {
		t.Errorf("migration count changed from %d to %d on re-run", applied, again)
	}
}

func TestFloat32Roundtrip(t *testing.T) {
	in := []float32{0.25, -1, 3.5}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated vector bytes")
	}
}
