package views

import "github.com/eringen/microfeed/post"

// SiteConfig holds the site-wide settings every page needs.
type SiteConfig struct {
	Name        string
	URL         string
	Description string
}

// Page carries per-request values into the layout.
type Page struct {
	Site   SiteConfig
	Title  string
	Viewer *post.Identity // nil when signed out
	CSRF   string
	Notice string // one-line message shown above the content
}

// Card is one post as rendered in a timeline.
type Card struct {
	Post post.Post
	// Owner is true when the viewer authored the post; only then are the
	// edit and delete controls rendered.
	Owner   bool
	Editing bool
	// Working copy, meaningful while Editing.
	WorkingBody       string
	WorkingAttachment post.WorkingAttachment
	Avatar            string
}

// Draft is the state of the compose form.
type Draft struct {
	Text     string
	HasImage bool
}

// Profile is the signed-in user's own page.
type Profile struct {
	Name   string
	Avatar string
}
