package models

import (
	"path/filepath"
	"sort"
	"strings"
)

// NormalizeMount cleans a mount path: surrounding spaces and trailing slashes
// are removed and the path is made absolute. It returns "" for an empty path.
func NormalizeMount(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return filepath.Clean(p)
}

// NormalizeMounts normalizes, deduplicates and sorts mount paths.
func NormalizeMounts(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = NormalizeMount(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
