package extract

import (
	"reflect"
	"testing"
)

func TestURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single url",
			text: "check out https://example.com/a?id=1",
			want: []string{"https://example.com/a?id=1"},
		},
		{
			name: "http and https",
			text: "http://one.example and https://two.example",
			want: []string{"http://one.example", "https://two.example"},
		},
		{
			name: "duplicates collapse to first occurrence",
			text: "https://example.com again https://example.com",
			want: []string{"https://example.com"},
		},
		{
			name: "first-seen order preserved",
			text: "https://b.example then https://a.example then https://b.example",
			want: []string{"https://b.example", "https://a.example"},
		},
		{
			name: "greedy through punctuation",
			text: "see https://example.com/a?x=1&y=2#frag, end",
			want: []string{"https://example.com/a?x=1&y=2#frag,"},
		},
		{
			name: "stops at whitespace",
			text: "https://example.com/a\thttps://example.com/b",
			want: []string{"https://example.com/a", "https://example.com/b"},
		},
		{
			name: "no urls",
			text: "nothing to see here, not even ftp://old.example",
			want: nil,
		},
		{
			name: "bare scheme with no tail is not a candidate",
			text: "broken https:// link",
			want: nil,
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := URLs(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("URLs(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
