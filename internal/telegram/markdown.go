package telegram

import (
	"strings"

	"github.com/gotd/td/telegram/message/styling"
)

type mdKind int

const (
	mdPlain mdKind = iota
	mdBold
	mdItalic
	mdStrike
	mdCode
	mdPre
	mdLink
)

type mdSegment struct {
	kind mdKind
	text string
	// url for links, language for pre blocks
	arg string
}

var mdSpans = []struct {
	delim string
	kind  mdKind
}{
	{"**", mdBold},
	{"__", mdItalic},
	{"~~", mdStrike},
	{"`", mdCode},
}

// parseMarkdown understands **bold**, __italic__, ~~strike~~, `code`,
// ```pre``` and [text](url). Spans do not nest; an unclosed or empty span
// stays literal.
func parseMarkdown(s string) []mdSegment {
	var (
		out   []mdSegment
		plain strings.Builder
	)
	flush := func() {
		if plain.Len() > 0 {
			out = append(out, mdSegment{kind: mdPlain, text: plain.String()})
			plain.Reset()
		}
	}
	emit := func(seg mdSegment) {
		flush()
		out = append(out, seg)
	}

	for i := 0; i < len(s); {
		rest := s[i:]
		if strings.HasPrefix(rest, "```") {
			if end := strings.Index(rest[3:], "```"); end > 0 {
				body, lang := rest[3:3+end], ""
				if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], " \t") {
					lang, body = body[:nl], body[nl+1:]
				}
				emit(mdSegment{kind: mdPre, text: body, arg: lang})
				i += 6 + end
				continue
			}
		}
		if seg, n, ok := parseSpan(rest); ok {
			emit(seg)
			i += n
			continue
		}
		if seg, n, ok := parseLink(rest); ok {
			emit(seg)
			i += n
			continue
		}
		plain.WriteByte(s[i])
		i++
	}
	flush()
	return out
}

func parseSpan(rest string) (mdSegment, int, bool) {
	for _, span := range mdSpans {
		if !strings.HasPrefix(rest, span.delim) {
			continue
		}
		width := len(span.delim)
		end := strings.Index(rest[width:], span.delim)
		if end <= 0 {
			return mdSegment{}, 0, false
		}
		return mdSegment{kind: span.kind, text: rest[width : width+end]}, 2*width + end, true
	}
	return mdSegment{}, 0, false
}

func parseLink(rest string) (mdSegment, int, bool) {
	if !strings.HasPrefix(rest, "[") {
		return mdSegment{}, 0, false
	}
	closeText := strings.Index(rest, "](")
	if closeText <= 1 {
		return mdSegment{}, 0, false
	}
	closeURL := strings.IndexByte(rest[closeText+2:], ')')
	if closeURL <= 0 {
		return mdSegment{}, 0, false
	}
	text := rest[1:closeText]
	if strings.Contains(text, "\n") {
		return mdSegment{}, 0, false
	}
	url := rest[closeText+2 : closeText+2+closeURL]
	return mdSegment{kind: mdLink, text: text, arg: url}, closeText + 2 + closeURL + 1, true
}

// styledMarkdown renders text as message entities.
func styledMarkdown(text string) []styling.StyledTextOption {
	segments := parseMarkdown(text)
	out := make([]styling.StyledTextOption, 0, len(segments))
	for _, seg := range segments {
		switch seg.kind {
		case mdBold:
			out = append(out, styling.Bold(seg.text))
		case mdItalic:
			out = append(out, styling.Italic(seg.text))
		case mdStrike:
			out = append(out, styling.Strike(seg.text))
		case mdCode:
			out = append(out, styling.Code(seg.text))
		case mdPre:
			out = append(out, styling.Pre(seg.text, seg.arg))
		case mdLink:
			out = append(out, styling.TextURL(seg.text, seg.arg))
		default:
			out = append(out, styling.Plain(seg.text))
		}
	}
	return out
}
