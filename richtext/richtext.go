// Package richtext renders a post body as HTML: escaped text with line
// breaks, inline emphasis, code spans, linked URLs and hashtags.
package richtext

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

var (
	reBold             = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnderscore   = regexp.MustCompile(`__(.+?)__`)
	reItalic           = regexp.MustCompile(`\*([^*]+)\*`)
	reItalicUnderscore = regexp.MustCompile(`_([^_]+)_`)
	// code span, bare URL or hashtag, in that order of precedence
	reToken   = regexp.MustCompile("`([^`]+)`|(https?://[^\\s<>\"']+)|#([\\p{L}\\p{M}0-9_]+)")
	reHashtag = regexp.MustCompile(`#([\p{L}\p{M}0-9_]+)`)
)

// Body returns a templ.Component that renders s as HTML.
func Body(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		Render(&buf, s)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// Render writes the HTML for s to buf. Each newline becomes a <br>.
func Render(buf *bytes.Buffer, s string) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			buf.WriteString("<br>")
		}
		buf.WriteString(FormatInline(line))
	}
}

// FormatInline escapes s and applies inline formatting. Code spans, URLs
// and hashtags are cut out first so emphasis markers inside them are left
// alone.
func FormatInline(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	var tokens []string
	s = reToken.ReplaceAllStringFunc(s, func(m string) string {
		match := reToken.FindStringSubmatch(m)
		var out string
		switch {
		case match[1] != "":
			out = "<code>" + html.EscapeString(match[1]) + "</code>"
		case match[2] != "":
			out = linkHTML(match[2])
		default:
			out = `<span class="hashtag">#` + html.EscapeString(match[3]) + `</span>`
		}
		tokens = append(tokens, out)
		return "\x00T" + strconv.Itoa(len(tokens)-1) + "\x00"
	})

	escaped := ApplyOutsideTags(html.EscapeString(s), func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reBoldUnderscore.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reItalic.ReplaceAllString(seg, "<em>$1</em>")
		seg = reItalicUnderscore.ReplaceAllString(seg, "<em>$1</em>")
		return seg
	})
	for i, tok := range tokens {
		escaped = strings.Replace(escaped, "\x00T"+strconv.Itoa(i)+"\x00", tok, 1)
	}
	return escaped
}

func linkHTML(raw string) string {
	// trailing punctuation belongs to the sentence, not the URL
	trimmed := strings.TrimRight(raw, ".,;:!?)")
	tail := raw[len(trimmed):]
	href := SafeURL(trimmed)
	if href == "" {
		return html.EscapeString(raw)
	}
	return `<a href="` + href + `" target="_blank" rel="noopener noreferrer nofollow">` +
		html.EscapeString(trimmed) + `</a>` + html.EscapeString(tail)
}

// ApplyOutsideTags applies fn only to text segments outside HTML tags.
func ApplyOutsideTags(s string, fn func(string) string) string {
	var buf strings.Builder
	for len(s) > 0 {
		lt := strings.Index(s, "<")
		if lt < 0 {
			buf.WriteString(fn(s))
			break
		}
		if lt > 0 {
			buf.WriteString(fn(s[:lt]))
		}
		gt := strings.Index(s[lt:], ">")
		if gt < 0 {
			buf.WriteString(s[lt:])
			break
		}
		buf.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return buf.String()
}

// SafeURL returns raw escaped for an href, or "" unless it is http(s).
func SafeURL(raw string) string {
	val := strings.TrimSpace(raw)
	if val == "" {
		return ""
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Host == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return html.EscapeString(val)
	}
	return ""
}

// Hashtags returns the distinct hashtags in s, without the leading '#',
// in order of first appearance.
func Hashtags(s string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, m := range reHashtag.FindAllStringSubmatch(s, -1) {
		tag := m[1]
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	return tags
}

// Plain strips s to a single line of at most n runes for titles and
// summaries, appending an ellipsis when cut.
func Plain(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
