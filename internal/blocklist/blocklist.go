// Package blocklist is the local blocking policy table. The store is the
// source of truth; in hard mode the table additionally renders a hosts-style
// rule file for the resolver to pick up. Rendering failures are logged, not
// fatal: the overlay collaborator enforces independently of this layer.
package blocklist

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// BlockStore is the persistence behind the table.
type BlockStore interface {
	AddBlocked(domain string) error
	RemoveBlocked(domain string) error
	ReplaceBlocked(domains []string) error
	ListBlocked() ([]string, error)
}

// Table applies and tracks blocked domains.
type Table struct {
	store     BlockStore
	hostsPath string // empty means soft mode: record intent only
	logger    *slog.Logger

	mu sync.Mutex // serializes rule-file rendering
}

// New creates a Table. hostsPath selects hard mode; pass "" for soft mode.
func New(store BlockStore, hostsPath string) *Table {
	return &Table{
		store:     store,
		hostsPath: hostsPath,
		logger:    slog.Default(),
	}
}

// Apply blocks a domain.
func (t *Table) Apply(domain string) error {
	domain = normalize(domain)
	if domain == "" {
		return fmt.Errorf("empty domain")
	}
	if err := t.store.AddBlocked(domain); err != nil {
		return fmt.Errorf("recording block for %s: %w", domain, err)
	}
	t.render()
	return nil
}

// Remove unblocks a domain.
func (t *Table) Remove(domain string) error {
	if err := t.store.RemoveBlocked(normalize(domain)); err != nil {
		return fmt.Errorf("removing block for %s: %w", domain, err)
	}
	t.render()
	return nil
}

// Replace swaps the full blocked set, as pushed over the realtime channel.
func (t *Table) Replace(domains []string) error {
	cleaned := make([]string, 0, len(domains))
	for _, d := range domains {
		if n := normalize(d); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if err := t.store.ReplaceBlocked(cleaned); err != nil {
		return fmt.Errorf("replacing blocklist: %w", err)
	}
	t.render()
	return nil
}

// List returns the blocked domains.
func (t *Table) List() ([]string, error) {
	return t.store.ListBlocked()
}

// Block, Unblock and ReplaceBlocklist adapt the table to the realtime
// channel's push handler, where there is no caller to return an error to.
func (t *Table) Block(domain string) {
	if err := t.Apply(domain); err != nil {
		t.logger.Warn("applying pushed block failed", "domain", domain, "error", err)
	}
}

func (t *Table) Unblock(domain string) {
	if err := t.Remove(domain); err != nil {
		t.logger.Warn("removing pushed block failed", "domain", domain, "error", err)
	}
}

func (t *Table) ReplaceBlocklist(domains []string) {
	if err := t.Replace(domains); err != nil {
		t.logger.Warn("replacing pushed blocklist failed", "error", err)
	}
}

// render writes the hosts-style rule file in hard mode. Written to a temp
// file and renamed so readers never see a partial file.
func (t *Table) render() {
	if t.hostsPath == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	domains, err := t.store.ListBlocked()
	if err != nil {
		t.logger.Warn("listing blocked domains for render failed", "error", err)
		return
	}
	sort.Strings(domains)

	var b strings.Builder
	b.WriteString("# managed by focusd, do not edit\n")
	for _, d := range domains {
		fmt.Fprintf(&b, "0.0.0.0 %s\n0.0.0.0 www.%s\n", d, d)
	}

	tmp := t.hostsPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(t.hostsPath), 0o755); err != nil {
		t.logger.Warn("creating rule-file directory failed", "error", err)
		return
	}
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		t.logger.Warn("writing rule file failed", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, t.hostsPath); err != nil {
		t.logger.Warn("installing rule file failed", "path", t.hostsPath, "error", err)
	}
}

func normalize(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}
