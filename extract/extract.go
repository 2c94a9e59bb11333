// Package extract finds candidate http/https URLs in free-form text.
package extract

import "regexp"

// urlPattern greedily matches a scheme followed by any run of non-whitespace.
// Candidate extraction is deliberately loose; the sanitizer decides what to do
// with each candidate.
var urlPattern = regexp.MustCompile(`https?://\S+`)

// URLs returns the distinct URL candidates in text, in first-seen order.
func URLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	candidates := make([]string, 0, len(matches))
	for _, match := range matches {
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		candidates = append(candidates, match)
	}
	return candidates
}
