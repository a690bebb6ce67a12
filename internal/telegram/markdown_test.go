package telegram

import (
	"reflect"
	"testing"
)

func TestParseMarkdown(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []mdSegment
	}{
		{
			name: "plain",
			in:   "just text",
			want: []mdSegment{{kind: mdPlain, text: "just text"}},
		},
		{
			name: "bold",
			in:   "a **b** c",
			want: []mdSegment{{kind: mdPlain, text: "a "}, {kind: mdBold, text: "b"}, {kind: mdPlain, text: " c"}},
		},
		{
			name: "italic",
			in:   "__slanted__",
			want: []mdSegment{{kind: mdItalic, text: "slanted"}},
		},
		{
			name: "code",
			in:   "run `make test` now",
			want: []mdSegment{{kind: mdPlain, text: "run "}, {kind: mdCode, text: "make test"}, {kind: mdPlain, text: " now"}},
		},
		{
			name: "pre_with_language",
			in:   "```go\nfmt.Println()\n```",
			want: []mdSegment{{kind: mdPre, text: "fmt.Println()\n", arg: "go"}},
		},
		{
			name: "link",
			in:   "see [docs](https://core.telegram.org)!",
			want: []mdSegment{
				{kind: mdPlain, text: "see "},
				{kind: mdLink, text: "docs", arg: "https://core.telegram.org"},
				{kind: mdPlain, text: "!"},
			},
		},
		{
			name: "strike",
			in:   "~~old~~",
			want: []mdSegment{{kind: mdStrike, text: "old"}},
		},
		{
			name: "unclosed_stays_literal",
			in:   "2 ** 3 and [x](",
			want: []mdSegment{{kind: mdPlain, text: "2 ** 3 and [x]("}},
		},
		{
			name: "empty_span_stays_literal",
			in:   "****",
			want: []mdSegment{{kind: mdPlain, text: "****"}},
		},
		{
			name: "unicode",
			in:   "привет **мир**",
			want: []mdSegment{{kind: mdPlain, text: "привет "}, {kind: mdBold, text: "мир"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseMarkdown(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parseMarkdown(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestStyledMarkdownOneOptionPerSegment(t *testing.T) {
	if got := styledMarkdown(""); len(got) != 0 {
		t.Fatalf("expected no options for empty text, got %d", len(got))
	}
	if got := styledMarkdown("**a** b `c` [d](https://e)"); len(got) != 5 {
		t.Fatalf("expected 5 options, got %d", len(got))
	}
}
