package perception

import "regexp"

// urlPattern matches http(s) URLs in free-form text. Trailing punctuation
// that commonly follows a URL in prose is excluded.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// trailingPunct strips characters that belong to the sentence, not the URL.
var trailingPunct = regexp.MustCompile(`[.,;:!?)\]]+$`)

// ExtractURLs collects URLs from the explicit candidates and a regex sweep
// over the body, deduplicated and order-preserving (explicit fields first).
func ExtractURLs(body string, explicit ...string) []string {
	seen := make(map[string]bool)
	out := []string{}

	add := func(u string) {
		u = trailingPunct.ReplaceAllString(u, "")
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, u := range explicit {
		if u != "" {
			add(u)
		}
	}
	for _, u := range urlPattern.FindAllString(body, -1) {
		add(u)
	}
	return out
}
