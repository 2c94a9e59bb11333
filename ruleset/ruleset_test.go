package ruleset

import (
	"errors"
	"sync"
	"testing"

	"github.com/linkscrub/linkscrub/logger"
)

func TestParseDocument(t *testing.T) {
	t.Run("providers wrapper", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{
			"providers": {
				"exampleA": {"urlPattern": "^https://a\\.example", "rules": ["^utm_"]},
				"exampleB": {"urlPattern": "^https://b\\.example", "completeProvider": true}
			}
		}`))
		if err != nil {
			t.Fatalf("ParseDocument() error = %v", err)
		}
		if len(doc.Providers) != 2 {
			t.Fatalf("providers = %d, want 2", len(doc.Providers))
		}
		if doc.Providers[0].Name != "exampleA" || doc.Providers[1].Name != "exampleB" {
			t.Errorf("provider order = %q, %q", doc.Providers[0].Name, doc.Providers[1].Name)
		}
		if !doc.Providers[1].Config.CompleteProvider {
			t.Error("exampleB should be a complete provider")
		}
	})

	t.Run("bare provider mapping", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"example": {"urlPattern": "^https://example\\.com"}}`))
		if err != nil {
			t.Fatalf("ParseDocument() error = %v", err)
		}
		if len(doc.Providers) != 1 || doc.Providers[0].Name != "example" {
			t.Fatalf("unexpected providers: %+v", doc.Providers)
		}
	})

	t.Run("preserves document order", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"providers": {
			"z": {"urlPattern": "z"},
			"a": {"urlPattern": "a"},
			"m": {"urlPattern": "m"}
		}}`))
		if err != nil {
			t.Fatalf("ParseDocument() error = %v", err)
		}
		got := []string{doc.Providers[0].Name, doc.Providers[1].Name, doc.Providers[2].Name}
		want := []string{"z", "a", "m"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("provider order = %v, want %v", got, want)
			}
		}
	})

	t.Run("malformed documents", func(t *testing.T) {
		tests := []struct {
			name string
			data string
		}{
			{"not json", "not json at all"},
			{"top-level array", `[1, 2, 3]`},
			{"providers not an object", `{"providers": "oops"}`},
			{"provider not an object", `{"providers": {"x": 42}}`},
			{"bare mapping with scalar value", `{"x": "oops"}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ParseDocument([]byte(tt.data))
				if !errors.Is(err, ErrMalformedDocument) {
					t.Errorf("ParseDocument() error = %v, want ErrMalformedDocument", err)
				}
			})
		}
	})
}

func TestBuild(t *testing.T) {
	t.Run("compiles providers in order", func(t *testing.T) {
		doc := &Document{Providers: []NamedProvider{
			{Name: "first", Config: ProviderConfig{URLPattern: `^https://first\.example`}},
			{Name: "second", Config: ProviderConfig{URLPattern: `^https://second\.example`, Rules: []string{"^ref"}}},
		}}
		rs, err := Build(doc, logger.Noop())
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if rs.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", rs.Len())
		}
		if rs.Providers()[0].Name != "first" || rs.Providers()[1].Name != "second" {
			t.Errorf("provider order = %q, %q", rs.Providers()[0].Name, rs.Providers()[1].Name)
		}
	})

	t.Run("prefix patterns are case-insensitive and anchored", func(t *testing.T) {
		doc := &Document{Providers: []NamedProvider{
			{Name: "p", Config: ProviderConfig{URLPattern: `^https://Example\.com`}},
		}}
		rs, err := Build(doc, nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		re := rs.Providers()[0].URLPattern
		if !re.MatchString("HTTPS://EXAMPLE.COM/path") {
			t.Error("pattern should match case-insensitively with a trailing remainder")
		}
		if re.MatchString("see https://example.com") {
			t.Error("pattern should only match at the start of the subject")
		}
	})

	t.Run("invalid pattern excludes only its provider", func(t *testing.T) {
		doc := &Document{Providers: []NamedProvider{
			{Name: "good", Config: ProviderConfig{URLPattern: `^https://good\.example`}},
			{Name: "bad", Config: ProviderConfig{URLPattern: `^https://bad\.example`, Rules: []string{`(unclosed`}}},
			{Name: "alsoGood", Config: ProviderConfig{URLPattern: `^https://also\.example`}},
		}}
		rs, err := Build(doc, logger.Noop())
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if rs.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", rs.Len())
		}
		for _, p := range rs.Providers() {
			if p.Name == "bad" {
				t.Error("provider with invalid pattern should be excluded")
			}
		}
		diags := rs.Diagnostics()
		if len(diags) != 1 {
			t.Fatalf("Diagnostics() = %d entries, want 1", len(diags))
		}
		if diags[0].Provider != "bad" || diags[0].Pattern != `(unclosed` {
			t.Errorf("diagnostic = %+v", diags[0])
		}
		if diags[0].Err == nil {
			t.Error("diagnostic should carry the compile error")
		}
	})

	t.Run("capture groups keep their numbering", func(t *testing.T) {
		doc := &Document{Providers: []NamedProvider{
			{Name: "redir", Config: ProviderConfig{
				URLPattern:   `^https://go\.example`,
				Redirections: []string{`^https://go\.example/\?u=(.*)`},
			}},
		}}
		rs, err := Build(doc, nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		re := rs.Providers()[0].Redirections[0]
		m := re.FindStringSubmatch("https://go.example/?u=https%3A%2F%2Ftarget.example")
		if len(m) != 2 {
			t.Fatalf("submatches = %d, want 2", len(m))
		}
		if m[1] != "https%3A%2F%2Ftarget.example" {
			t.Errorf("group 1 = %q", m[1])
		}
	})

	t.Run("raw rules compile case-sensitive and unanchored", func(t *testing.T) {
		doc := &Document{Providers: []NamedProvider{
			{Name: "p", Config: ProviderConfig{URLPattern: `^https://`, RawRules: []string{`/ref=[^/]*`}}},
		}}
		rs, err := Build(doc, nil)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		re := rs.Providers()[0].RawRules[0]
		if !re.MatchString("https://x.example/item/ref=abc") {
			t.Error("raw rule should match anywhere in the subject")
		}
		if re.MatchString("https://x.example/item/REF=abc") {
			t.Error("raw rule should be case-sensitive")
		}
	})

	t.Run("nil document", func(t *testing.T) {
		if _, err := Build(nil, nil); err == nil {
			t.Error("Build(nil) should fail")
		}
	})
}

func TestStore(t *testing.T) {
	t.Run("load before publish returns nil", func(t *testing.T) {
		s := NewStore()
		if s.Load() != nil {
			t.Error("Load() should return nil before first Publish")
		}
	})

	t.Run("publish replaces reference", func(t *testing.T) {
		s := NewStore()
		first := &RuleSet{}
		second := &RuleSet{}

		s.Publish(first)
		if s.Load() != first {
			t.Error("Load() should return the first published RuleSet")
		}
		s.Publish(second)
		if s.Load() != second {
			t.Error("Load() should return the most recently published RuleSet")
		}
	})

	t.Run("concurrent load and publish", func(t *testing.T) {
		s := NewStore()
		s.Publish(&RuleSet{})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					s.Publish(&RuleSet{})
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					if s.Load() == nil {
						t.Error("Load() returned nil after publish")
						return
					}
				}
			}()
		}
		wg.Wait()
	})
}
