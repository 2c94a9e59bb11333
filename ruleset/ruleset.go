// Package ruleset builds an immutable, pre-compiled representation of
// ClearURLs-style link cleaning rules. Patterns are compiled once at build
// time; a provider with an uncompilable pattern is excluded from matching
// without failing the rest of the build.
package ruleset

import (
	"fmt"
	"regexp"
	"time"

	"github.com/linkscrub/linkscrub/logger"
)

// Provider is a compiled rule bundle targeting URLs that match URLPattern.
type Provider struct {
	Name string

	// URLPattern and the pattern lists below (except RawRules) are compiled
	// as case-insensitive prefix matches: anchored at the start of the
	// subject, not required to consume it.
	URLPattern        *regexp.Regexp
	CompleteProvider  bool
	Exceptions        []*regexp.Regexp
	Redirections      []*regexp.Regexp
	Rules             []*regexp.Regexp
	ReferralMarketing []*regexp.Regexp

	// RawRules are compiled verbatim: case-sensitive, match anywhere.
	RawRules []*regexp.Regexp
}

// Diagnostic records a provider excluded from the build because one of its
// patterns failed to compile.
type Diagnostic struct {
	Provider string
	Pattern  string
	Err      error
}

// RuleSet is the compiled, ordered set of valid providers. It is immutable
// after Build; refreshing rules means building a new RuleSet and swapping the
// published reference.
type RuleSet struct {
	SourceURL string
	FetchedAt time.Time

	providers   []*Provider
	diagnostics []Diagnostic
}

// Build compiles every provider in the document. Provider order in the result
// equals document order. A pattern that fails to compile excludes only its own
// provider and records a diagnostic; Build itself only fails on a nil document.
func Build(doc *Document, log logger.Logger) (*RuleSet, error) {
	if doc == nil {
		return nil, fmt.Errorf("ruleset: nil document")
	}
	if log == nil {
		log = logger.Noop()
	}

	rs := &RuleSet{}
	for _, np := range doc.Providers {
		provider, bad := compileProvider(np)
		if bad != nil {
			rs.diagnostics = append(rs.diagnostics, *bad)
			log.Warn("excluding provider with invalid pattern",
				"provider", bad.Provider,
				"pattern", bad.Pattern,
				"error", bad.Err.Error())
			continue
		}
		rs.providers = append(rs.providers, provider)
	}
	return rs, nil
}

// Providers returns the valid providers in document order.
func (rs *RuleSet) Providers() []*Provider {
	return rs.providers
}

// Len returns the number of valid providers.
func (rs *RuleSet) Len() int {
	return len(rs.providers)
}

// Diagnostics returns one entry per provider excluded at build time.
func (rs *RuleSet) Diagnostics() []Diagnostic {
	return rs.diagnostics
}

// compileProvider compiles all patterns of a single provider. It returns the
// compiled provider, or a diagnostic naming the first offending pattern.
func compileProvider(np NamedProvider) (*Provider, *Diagnostic) {
	diag := func(pattern string, err error) (*Provider, *Diagnostic) {
		return nil, &Diagnostic{Provider: np.Name, Pattern: pattern, Err: err}
	}

	urlPattern, err := compilePrefix(np.Config.URLPattern)
	if err != nil {
		return diag(np.Config.URLPattern, err)
	}

	provider := &Provider{
		Name:             np.Name,
		URLPattern:       urlPattern,
		CompleteProvider: np.Config.CompleteProvider,
	}

	lists := []struct {
		patterns []string
		out      *[]*regexp.Regexp
	}{
		{np.Config.Exceptions, &provider.Exceptions},
		{np.Config.Redirections, &provider.Redirections},
		{np.Config.Rules, &provider.Rules},
		{np.Config.ReferralMarketing, &provider.ReferralMarketing},
	}
	for _, list := range lists {
		for _, pattern := range list.patterns {
			re, err := compilePrefix(pattern)
			if err != nil {
				return diag(pattern, err)
			}
			*list.out = append(*list.out, re)
		}
	}

	for _, pattern := range np.Config.RawRules {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return diag(pattern, err)
		}
		provider.RawRules = append(provider.RawRules, re)
	}

	return provider, nil
}

// compilePrefix compiles a pattern as a case-insensitive prefix match. The
// non-capturing group keeps the pattern's own capture group numbering intact.
func compilePrefix(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\A(?:` + pattern + `)`)
}
