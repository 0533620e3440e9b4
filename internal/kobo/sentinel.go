package kobo

import "strings"

// SentinelRule recognises a synthetic end-of-book chapter that a reading
// engine inserts on its own. Such rows can survive a rebuild under an older
// content ID and would then appear twice.
type SentinelRule struct {
	Name   string
	Suffix string
}

// FinishSentinels lists the known end-of-book markers.
var FinishSentinels = []SentinelRule{
	{Name: "sol-finish", Suffix: "finish.xhtml"},
}

// Matches reports whether href names the rule's marker document.
func (r SentinelRule) Matches(href string) bool {
	return strings.HasSuffix(href, r.Suffix)
}

// sentinelFor returns the first rule matching href.
func sentinelFor(rules []SentinelRule, href string) (SentinelRule, bool) {
	for _, r := range rules {
		if r.Matches(href) {
			return r, true
		}
	}
	return SentinelRule{}, false
}
