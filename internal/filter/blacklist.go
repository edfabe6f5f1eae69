package filter

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"time"
)

// Blacklist is a file-backed set of blocked sender names, one per line,
// matched case-insensitively. The file is re-read when its modification
// time changes, so edits take effect on the next event without a restart.
// A missing or unreadable file behaves as an empty blacklist.
type Blacklist struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	loaded  bool
	entries map[string]struct{}
}

func NewBlacklist(path string) *Blacklist {
	return &Blacklist{path: path, entries: map[string]struct{}{}}
}

// Contains reports whether user (lowercased by the caller or not) is blocked.
func (b *Blacklist) Contains(user string) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	_, ok := b.entries[strings.ToLower(strings.TrimSpace(user))]
	return ok
}

func (b *Blacklist) refreshLocked() {
	info, err := os.Stat(b.path)
	if err != nil {
		b.entries = map[string]struct{}{}
		b.loaded = false
		return
	}
	if b.loaded && info.ModTime().Equal(b.modTime) {
		return
	}

	file, err := os.Open(b.path)
	if err != nil {
		b.entries = map[string]struct{}{}
		b.loaded = false
		return
	}
	defer file.Close()

	entries := map[string]struct{}{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		entries[line] = struct{}{}
	}
	if scanner.Err() != nil {
		return
	}
	b.entries = entries
	b.modTime = info.ModTime()
	b.loaded = true
}
