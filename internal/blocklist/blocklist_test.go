package blocklist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/focusd/internal/store"
)

func newTestTable(t *testing.T, hostsPath string) (*Table, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, hostsPath), s
}

func TestApplyRemoveList(t *testing.T) {
	tb, _ := newTestTable(t, "")

	if err := tb.Apply("TikTok.com"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := tb.Apply("www.reddit.com"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := tb.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"reddit.com", "tiktok.com"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("List = %v, want %v (normalized, sorted)", got, want)
	}

	if err := tb.Remove("tiktok.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, _ = tb.List()
	if len(got) != 1 || got[0] != "reddit.com" {
		t.Errorf("List after remove = %v", got)
	}
}

func TestApply_EmptyDomain(t *testing.T) {
	tb, _ := newTestTable(t, "")
	if err := tb.Apply("  "); err == nil {
		t.Error("expected error for empty domain")
	}
}

func TestReplace(t *testing.T) {
	tb, _ := newTestTable(t, "")

	if err := tb.Apply("old.com"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := tb.Replace([]string{"a.com", "www.B.com", ""}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got, err := tb.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0] != "a.com" || got[1] != "b.com" {
		t.Errorf("List = %v, want [a.com b.com]", got)
	}
}

func TestRender_HardMode(t *testing.T) {
	hostsPath := filepath.Join(t.TempDir(), "rules", "focusd.hosts")
	tb, _ := newTestTable(t, hostsPath)

	if err := tb.Apply("tiktok.com"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	data, err := os.ReadFile(hostsPath)
	if err != nil {
		t.Fatalf("reading rule file: %v", err)
	}
	content := string(data)
	for _, want := range []string{"0.0.0.0 tiktok.com", "0.0.0.0 www.tiktok.com"} {
		if !strings.Contains(content, want) {
			t.Errorf("rule file missing %q:\n%s", want, content)
		}
	}

	// Unblocking rewrites the file without the domain.
	if err := tb.Remove("tiktok.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	data, err = os.ReadFile(hostsPath)
	if err != nil {
		t.Fatalf("reading rule file: %v", err)
	}
	if strings.Contains(string(data), "tiktok.com") {
		t.Errorf("rule file still lists removed domain:\n%s", data)
	}
}

func TestSoftMode_NoFile(t *testing.T) {
	tb, _ := newTestTable(t, "")
	if err := tb.Apply("tiktok.com"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// Soft mode records intent only; nothing to assert beyond the store.
	got, _ := tb.List()
	if len(got) != 1 {
		t.Errorf("List = %v", got)
	}
}

func TestRealtimeHandlerAdapter(t *testing.T) {
	tb, _ := newTestTable(t, "")

	tb.Block("tiktok.com")
	tb.Block("reddit.com")
	tb.Unblock("tiktok.com")
	tb.ReplaceBlocklist([]string{"x.com"})

	got, err := tb.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0] != "x.com" {
		t.Errorf("List = %v, want [x.com]", got)
	}
}
