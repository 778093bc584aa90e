package communities

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	slugStrip  = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)
	slugSpaces = regexp.MustCompile(`\s+`)
	slugDashes = regexp.MustCompile(`-+`)
)

// GenerateSlug derives a URL slug from a community name:
// "Merlin's Place" -> "merlins-place".
func GenerateSlug(name string) string {
	s := strings.TrimSpace(strings.ToLower(name))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	return slugDashes.ReplaceAllString(s, "-")
}

// uniqueSlug returns base, or base-1, base-2, ... whichever is not taken yet,
// and marks the result as taken.
func uniqueSlug(base string, taken map[string]struct{}) string {
	slug := base
	for n := 1; ; n++ {
		if _, dup := taken[slug]; !dup {
			break
		}
		slug = base + "-" + strconv.Itoa(n)
	}
	taken[slug] = struct{}{}
	return slug
}
