package scrub

// Kind is the three-way outcome of evaluating a URL.
type Kind int

const (
	// KindCleaned means the URL was transformed by at least one provider.
	KindCleaned Kind = iota
	// KindUnchanged means no matching provider altered the URL.
	KindUnchanged
	// KindBlocked means a complete provider matched; the URL should be
	// discarded, not cleaned.
	KindBlocked
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCleaned:
		return "cleaned"
	case KindUnchanged:
		return "unchanged"
	case KindBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Verdict is the result of evaluating a URL against a ruleset. URL is empty
// when Kind is KindBlocked; callers must not treat a blocked verdict as a URL.
type Verdict struct {
	Kind Kind
	URL  string
}

// Cleaned returns a verdict for a URL that was transformed.
func Cleaned(url string) Verdict {
	return Verdict{Kind: KindCleaned, URL: url}
}

// Unchanged returns a verdict for a URL no provider altered.
func Unchanged(url string) Verdict {
	return Verdict{Kind: KindUnchanged, URL: url}
}

// Blocked returns the verdict for a URL matched by a complete provider.
func Blocked() Verdict {
	return Verdict{Kind: KindBlocked}
}
