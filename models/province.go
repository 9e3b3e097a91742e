package models

import "strings"

// administrative suffixes stripped before storing or matching routes,
// longest first so 自治区/特别行政区 win over 区.
var provinceSuffixes = []string{
	"特别行政区",
	"自治区",
	"省",
	"市",
}

const maxProvinceLen = 32

// NormalizeProvince canonicalizes a province name. Both the route write path
// and the destination lookup go through it, so "广东省" and "广东" land on the
// same route rows. Unknown or oversized input comes back trimmed but
// otherwise untouched; matching stays exact.
func NormalizeProvince(province string) string {
	p := strings.TrimSpace(province)
	if p == "" {
		return ""
	}
	if len([]rune(p)) > maxProvinceLen {
		p = string([]rune(p)[:maxProvinceLen])
	}
	for _, suffix := range provinceSuffixes {
		if strings.HasSuffix(p, suffix) && len(p) > len(suffix) {
			return strings.TrimSpace(strings.TrimSuffix(p, suffix))
		}
	}
	return p
}
