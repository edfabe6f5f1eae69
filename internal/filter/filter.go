package filter

import (
	"strings"

	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
)

// Admission reasons, in evaluation order.
const (
	ReasonBlacklisted        = "blacklisted"
	ReasonPrivilegedOverride = "privileged-override"
	ReasonMissingIndicator   = "missing-indicator"
	ReasonInsufficientBits   = "insufficient-bits"
	ReasonThresholdMet       = "threshold-met"
)

// Decision records whether an event enters the pipeline and why.
type Decision struct {
	Admit  bool
	Reason string
}

// Decide evaluates one cheer event against the admission rules. The
// blacklist wins over everything, including the privileged override. The
// privileged identity bypasses the bit threshold but still needs the
// indicator present.
func Decide(ev cheer.Event, cfg config.FilterConfig, blacklist *Blacklist) Decision {
	sender := strings.ToLower(ev.Sender)
	if blacklist.Contains(sender) {
		return Decision{Admit: false, Reason: ReasonBlacklisted}
	}
	hasIndicator := strings.Contains(ev.Message, cfg.Indicator)
	if cfg.PrivilegedUser != "" && sender == strings.ToLower(cfg.PrivilegedUser) && hasIndicator {
		return Decision{Admit: true, Reason: ReasonPrivilegedOverride}
	}
	if !hasIndicator {
		return Decision{Admit: false, Reason: ReasonMissingIndicator}
	}
	if ev.Bits < cfg.BitThreshold {
		return Decision{Admit: false, Reason: ReasonInsufficientBits}
	}
	return Decision{Admit: true, Reason: ReasonThresholdMet}
}

// Bypass reports whether sender is exempt from the character quota.
func Bypass(sender string, cfg config.FilterConfig) bool {
	sender = strings.ToLower(sender)
	if cfg.PrivilegedUser != "" && sender == strings.ToLower(cfg.PrivilegedUser) {
		return true
	}
	for _, user := range cfg.FreePassUsers {
		if sender == strings.ToLower(user) {
			return true
		}
	}
	return false
}
