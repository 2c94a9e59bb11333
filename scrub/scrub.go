// Package scrub evaluates URLs against a compiled ruleset, removing tracking
// parameters, unwrapping embedded redirect targets, and stripping raw
// substrings. Evaluation is a pure function of the URL and the ruleset:
// providers apply in ruleset order to a single working URL, so one provider's
// cleanup can expose a match for a later provider.
package scrub

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/linkscrub/linkscrub/logger"
	"github.com/linkscrub/linkscrub/ruleset"
)

// redirectDepth makes the one-hop redirect limit explicit. The outer call may
// follow a single embedded redirect; the inner evaluation may not follow
// another.
type redirectDepth int

const (
	atMostOneRedirect redirectDepth = iota
	noMoreRedirects
)

// Scrubber evaluates URLs against a RuleSet. It holds no mutable state and is
// safe for concurrent use.
type Scrubber struct {
	log logger.Logger
}

// New returns a Scrubber that logs pattern warnings to the given logger.
func New(log logger.Logger) *Scrubber {
	if log == nil {
		log = logger.Noop()
	}
	return &Scrubber{log: log}
}

// Evaluate runs the given URL through every valid provider in ruleset order
// and returns the final verdict. It never fails: bad redirect patterns degrade
// to a warning and evaluation always completes.
func (s *Scrubber) Evaluate(rawURL string, rs *ruleset.RuleSet) Verdict {
	return s.evaluate(rawURL, rs, atMostOneRedirect)
}

// Changed reports whether a cleaned URL is meaningfully different from the
// original. The comparison ignores case and also accepts the percent-decoded
// cleaned form, so pure re-encoding of an otherwise identical URL does not
// count as a change.
func Changed(original, cleaned string) bool {
	lower := strings.ToLower(original)
	return lower != strings.ToLower(cleaned) && lower != strings.ToLower(percentDecode(cleaned))
}

func (s *Scrubber) evaluate(rawURL string, rs *ruleset.RuleSet, depth redirectDepth) Verdict {
	current := rawURL

	for _, provider := range rs.Providers() {
		if !provider.URLPattern.MatchString(current) {
			continue
		}

		// A matching complete provider blocks the URL outright, ahead of
		// exception and redirection checks.
		if provider.CompleteProvider {
			return Blocked()
		}

		if matchesAny(provider.Exceptions, current) {
			continue
		}

		target, found := s.findRedirectTarget(provider, current)
		if found {
			if depth == atMostOneRedirect {
				// The inner evaluation supersedes everything left in the
				// outer call; its verdict is the outer call's verdict.
				return s.evaluate(target, rs, noMoreRedirects)
			}
			current = target
		}

		current = filterQuery(current, provider)

		for _, re := range provider.RawRules {
			current = re.ReplaceAllString(current, "")
		}
	}

	if current != rawURL {
		return Cleaned(current)
	}
	return Unchanged(rawURL)
}

// findRedirectTarget tries the provider's redirection patterns in order and
// returns the percent-decoded target of the first one whose capture group
// holds a value. A pattern that matches without a capture group is a rules
// bug: it is logged and the remaining patterns are still tried.
func (s *Scrubber) findRedirectTarget(provider *ruleset.Provider, subject string) (string, bool) {
	for _, re := range provider.Redirections {
		m := re.FindStringSubmatch(subject)
		if m == nil {
			continue
		}
		if len(m) < 2 {
			s.log.Warn("redirect pattern has no capture group",
				"provider", provider.Name,
				"pattern", re.String())
			continue
		}
		if m[1] == "" {
			continue
		}
		return percentDecode(m[1]), true
	}
	return "", false
}

func matchesAny(patterns []*regexp.Regexp, subject string) bool {
	for _, re := range patterns {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

// filterQuery reassembles the URL with every query pair removed whose decoded
// key prefix-matches one of the provider's rules or referral marketing
// patterns. It runs for every matching provider, even one with no rules, so
// the query string is re-encoded exactly as the survivors dictate. A subject
// that does not parse as a URL is returned unmodified.
func filterQuery(subject string, provider *ruleset.Provider) string {
	u, err := url.Parse(subject)
	if err != nil {
		return subject
	}

	pairs := parseQueryPairs(u.RawQuery)
	pairs = removeMatching(pairs, provider.Rules)
	pairs = removeMatching(pairs, provider.ReferralMarketing)

	u.RawQuery = encodeQueryPairs(pairs)
	u.ForceQuery = false
	return u.String()
}

type queryPair struct {
	key   string
	value string
}

// parseQueryPairs decomposes a raw query into decoded key/value pairs,
// preserving duplicates and order. Pairs without a value are dropped.
func parseQueryPairs(rawQuery string) []queryPair {
	if rawQuery == "" {
		return nil
	}
	var pairs []queryPair
	for _, segment := range strings.Split(rawQuery, "&") {
		key, value, found := strings.Cut(segment, "=")
		if !found || value == "" {
			continue
		}
		pairs = append(pairs, queryPair{key: queryDecode(key), value: queryDecode(value)})
	}
	return pairs
}

// removeMatching drops every pair whose key prefix-matches any pattern.
// Removal is cumulative across patterns.
func removeMatching(pairs []queryPair, patterns []*regexp.Regexp) []queryPair {
	for _, re := range patterns {
		kept := pairs[:0]
		for _, pair := range pairs {
			if !re.MatchString(pair.key) {
				kept = append(kept, pair)
			}
		}
		pairs = kept
	}
	return pairs
}

func encodeQueryPairs(pairs []queryPair) string {
	if len(pairs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, pair := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(pair.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(pair.value))
	}
	return b.String()
}

// queryDecode decodes a query component, treating '+' as a space.
func queryDecode(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return percentDecodeLenient(strings.ReplaceAll(s, "+", " "))
}

// percentDecode decodes %XX escapes without treating '+' as a space, matching
// how redirect targets are encoded inside query parameters.
func percentDecode(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return percentDecodeLenient(s)
}

// percentDecodeLenient decodes valid %XX sequences and passes malformed ones
// through untouched instead of failing the whole string.
func percentDecodeLenient(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 3
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isHex(c byte) bool {
	switch {
	case '0' <= c && c <= '9', 'a' <= c && c <= 'f', 'A' <= c && c <= 'F':
		return true
	}
	return false
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
