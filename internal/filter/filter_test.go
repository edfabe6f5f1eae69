package filter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
)

func testCfg() config.FilterConfig {
	return config.FilterConfig{
		BitThreshold:   100,
		Indicator:      "11io",
		PrivilegedUser: "bemoor",
		FreePassUsers:  []string{"bemoor", "vip_friend"},
	}
}

func writeBlacklist(t *testing.T, users ...string) *Blacklist {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user_blacklist.txt")
	data := ""
	for _, u := range users {
		data += u + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write blacklist: %v", err)
	}
	return NewBlacklist(path)
}

func TestBlacklistWinsOverEverything(t *testing.T) {
	bl := writeBlacklist(t, "Troll")
	ev := cheer.Event{Sender: "TROLL", Message: "11io dwight: hi", Bits: 100000}
	d := Decide(ev, testCfg(), bl)
	if d.Admit || d.Reason != ReasonBlacklisted {
		t.Fatalf("expected blacklisted rejection, got %+v", d)
	}

	// even the privileged identity is blocked once blacklisted
	bl2 := writeBlacklist(t, "bemoor")
	d = Decide(cheer.Event{Sender: "bemoor", Message: "11io dwight: hi", Bits: 1}, testCfg(), bl2)
	if d.Admit || d.Reason != ReasonBlacklisted {
		t.Fatalf("expected blacklisted rejection for privileged user, got %+v", d)
	}
}

func TestPrivilegedOverrideSkipsThreshold(t *testing.T) {
	bl := writeBlacklist(t)
	d := Decide(cheer.Event{Sender: "Bemoor", Message: "11io dwight: hi", Bits: 1}, testCfg(), bl)
	if !d.Admit || d.Reason != ReasonPrivilegedOverride {
		t.Fatalf("expected privileged override, got %+v", d)
	}

	// the override still requires the indicator
	d = Decide(cheer.Event{Sender: "bemoor", Message: "dwight: hi", Bits: 1}, testCfg(), bl)
	if d.Admit || d.Reason != ReasonMissingIndicator {
		t.Fatalf("expected missing indicator for privileged user, got %+v", d)
	}
}

func TestMissingIndicator(t *testing.T) {
	bl := writeBlacklist(t)
	d := Decide(cheer.Event{Sender: "viewer", Message: "dwight: hi", Bits: 5000}, testCfg(), bl)
	if d.Admit || d.Reason != ReasonMissingIndicator {
		t.Fatalf("expected missing indicator, got %+v", d)
	}
}

func TestInsufficientBits(t *testing.T) {
	bl := writeBlacklist(t)
	d := Decide(cheer.Event{Sender: "viewer", Message: "11io dwight: hi", Bits: 99}, testCfg(), bl)
	if d.Admit || d.Reason != ReasonInsufficientBits {
		t.Fatalf("expected insufficient bits, got %+v", d)
	}
}

func TestThresholdMet(t *testing.T) {
	bl := writeBlacklist(t)
	d := Decide(cheer.Event{Sender: "viewer", Message: "11io dwight: hi", Bits: 100}, testCfg(), bl)
	if !d.Admit || d.Reason != ReasonThresholdMet {
		t.Fatalf("expected admission, got %+v", d)
	}
}

func TestBypass(t *testing.T) {
	cfg := testCfg()
	if !Bypass("BEMOOR", cfg) {
		t.Fatalf("privileged user must bypass quota")
	}
	if !Bypass("vip_friend", cfg) {
		t.Fatalf("free pass user must bypass quota")
	}
	if Bypass("viewer", cfg) {
		t.Fatalf("ordinary viewer must not bypass quota")
	}
}

func TestBlacklistMissingFileIsEmpty(t *testing.T) {
	bl := NewBlacklist(filepath.Join(t.TempDir(), "nope.txt"))
	if bl.Contains("anyone") {
		t.Fatalf("missing file must behave as empty blacklist")
	}
}

func TestBlacklistReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_blacklist.txt")
	if err := os.WriteFile(path, []byte("alice\n"), 0o644); err != nil {
		t.Fatalf("write blacklist: %v", err)
	}
	bl := NewBlacklist(path)
	if !bl.Contains("alice") || bl.Contains("bob") {
		t.Fatalf("initial blacklist not loaded")
	}

	// push mtime forward to defeat coarse filesystem timestamps
	if err := os.WriteFile(path, []byte("bob\n"), 0o644); err != nil {
		t.Fatalf("rewrite blacklist: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if bl.Contains("alice") || !bl.Contains("bob") {
		t.Fatalf("blacklist did not reload after file change")
	}
}
