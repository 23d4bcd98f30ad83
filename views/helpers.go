package views

import (
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// TimeLayout is how post timestamps are shown.
const TimeLayout = "2006.01.02 15:04"

// FormatTime formats t for display, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimeLayout)
}

// BuildURL joins path segments onto a base URL, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PostPath is the path of a post's resource.
func PostPath(id string) string {
	return "/posts/" + url.PathEscape(id) + "/"
}

// writer accumulates the first write error so components can emit markup
// without checking every call.
type writer struct {
	w   io.Writer
	err error
}

func (w *writer) raw(parts ...string) {
	for _, s := range parts {
		if w.err != nil {
			return
		}
		_, w.err = io.WriteString(w.w, s)
	}
}

func (w *writer) text(s string) {
	w.raw(templ.EscapeString(s))
}

func (w *writer) attr(name, value string) {
	w.raw(" ", name, `="`, templ.EscapeString(value), `"`)
}

func (w *writer) csrf(token string) {
	w.raw(`<input type="hidden" name="_csrf"`)
	w.attr("value", token)
	w.raw(">")
}
