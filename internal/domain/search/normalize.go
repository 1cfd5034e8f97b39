package search

import "strings"

// Normalize splits query on commas, trims every part, drops empty parts and
// joins the rest with single spaces.
func Normalize(query string) string {
	var parts []string
	for _, p := range strings.Split(query, ",") {
		if f := strings.Fields(p); len(f) > 0 {
			parts = append(parts, strings.Join(f, " "))
		}
	}
	return strings.Join(parts, " ")
}
