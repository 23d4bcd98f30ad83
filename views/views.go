// Package views holds the default HTML components of the feed. Each one is a
// templ.Component so an application can swap any of them for its own.
package views

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/eringen/microfeed/post"
	"github.com/eringen/microfeed/richtext"
)

// Layout wraps body in the page shell.
func Layout(p Page, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		title := p.Site.Name
		if p.Title != "" {
			title = p.Title + " · " + p.Site.Name
		}
		w.raw(`<!doctype html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>`)
		w.text(title)
		w.raw(`</title>`)
		if p.Site.Description != "" {
			w.raw(`<meta name="description"`)
			w.attr("content", p.Site.Description)
			w.raw(">")
		}
		w.raw(`<link rel="alternate" type="application/rss+xml" href="/feed.xml">`,
			`<link rel="stylesheet" href="/assets/style.css">`,
			`<script src="/assets/live.js" defer></script></head><body><header><a class="brand" href="/">`)
		w.text(p.Site.Name)
		w.raw(`</a><nav>`)
		if p.Viewer != nil {
			w.raw(`<a href="/profile/">`)
			w.text(p.Viewer.Name())
			w.raw(`</a><form method="post" action="/logout/" class="inline">`)
			w.csrf(p.CSRF)
			w.raw(`<button type="submit">Log out</button></form>`)
		} else {
			w.raw(`<a href="/login/">Log in</a>`)
		}
		w.raw(`</nav></header><main>`)
		if p.Notice != "" {
			w.raw(`<p class="notice" role="alert">`)
			w.text(p.Notice)
			w.raw(`</p>`)
		}
		if w.err != nil {
			return w.err
		}
		if err := body.Render(ctx, out); err != nil {
			return err
		}
		w.raw(`</main></body></html>`)
		return w.err
	})
}

// Home is the timeline page with the compose form on top.
func Home(p Page, d Draft, cards []Card) templ.Component {
	return Layout(p, templ.Join(ComposeForm(p.CSRF, d), Timeline(p.CSRF, cards)))
}

// ComposeForm is the new-post form.
func ComposeForm(csrf string, d Draft) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<form class="compose" method="post" action="/posts/" enctype="multipart/form-data">`)
		w.csrf(csrf)
		w.raw(`<textarea name="tweet" rows="3" required placeholder="What is happening?">`)
		w.text(d.Text)
		w.raw(`</textarea><label class="file">Add photo <input type="file" name="image" accept="image/*"></label>`,
			`<button type="submit">Post</button></form>`)
		return w.err
	})
}

// Timeline renders cards in order, or an empty-state line.
func Timeline(csrf string, cards []Card) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<section class="timeline" id="timeline">`)
		if len(cards) == 0 {
			w.raw(`<p class="empty">No posts yet.</p>`)
		}
		if w.err != nil {
			return w.err
		}
		for _, c := range cards {
			if err := PostCard(csrf, c).Render(ctx, out); err != nil {
				return err
			}
		}
		w.raw(`</section>`)
		return w.err
	})
}

// PostCard renders one post, as an edit form when the viewer is editing it.
func PostCard(csrf string, c Card) templ.Component {
	if c.Editing && c.Owner {
		return EditForm(csrf, c)
	}
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		p := c.Post
		w.raw(`<article class="post"`)
		w.attr("id", "post-"+p.ID)
		w.raw(`>`)
		cardHeader(w, c)
		w.raw(`<div class="body">`)
		if w.err != nil {
			return w.err
		}
		if err := richtext.Body(p.Body).Render(ctx, out); err != nil {
			return err
		}
		w.raw(`</div>`)
		if p.Attachment != nil {
			w.raw(`<img class="attachment" alt="" loading="lazy"`)
			w.attr("src", p.Attachment.Data)
			w.raw(`>`)
		}
		if c.Owner {
			w.raw(`<footer class="actions"><a`)
			w.attr("href", PostPath(p.ID)+"edit/")
			w.raw(`>Edit</a><form method="post" class="inline"`)
			w.attr("action", PostPath(p.ID))
			w.raw(`>`)
			w.csrf(csrf)
			w.raw(`<input type="hidden" name="_method" value="DELETE">`,
				`<label><input type="checkbox" name="confirm" value="yes" required> sure?</label>`,
				`<button type="submit">Delete</button></form></footer>`)
		}
		w.raw(`</article>`)
		return w.err
	})
}

func cardHeader(w *writer, c Card) {
	p := c.Post
	w.raw(`<header>`)
	if c.Avatar != "" {
		w.raw(`<img class="avatar" alt=""`)
		w.attr("src", c.Avatar)
		w.raw(`>`)
	}
	w.raw(`<strong>`)
	w.text(p.AuthorName)
	w.raw(`</strong> <time`)
	w.attr("datetime", p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	w.raw(`>`)
	w.text(FormatTime(p.CreatedAt))
	w.raw(`</time>`)
	if p.Edited() {
		w.raw(` <span class="edited">(edited)</span>`)
	}
	w.raw(`</header>`)
}

// EditForm renders the working copy of a post being edited.
func EditForm(csrf string, c Card) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		p := c.Post
		w.raw(`<article class="post editing"`)
		w.attr("id", "post-"+p.ID)
		w.raw(`>`)
		cardHeader(w, c)
		w.raw(`<form method="post" enctype="multipart/form-data"`)
		w.attr("action", PostPath(p.ID))
		w.raw(`>`)
		w.csrf(csrf)
		w.raw(`<textarea name="tweet" rows="3" required`)
		w.raw(`>`)
		w.text(c.WorkingBody)
		w.raw(`</textarea>`)

		switch c.WorkingAttachment.Disposition {
		case post.Replaced:
			w.raw(`<img class="attachment" alt=""`)
			w.attr("src", c.WorkingAttachment.Image.Data)
			w.raw(`>`)
		case post.Unset:
			if p.Attachment != nil {
				w.raw(`<img class="attachment" alt=""`)
				w.attr("src", p.Attachment.Data)
				w.raw(`>`)
			}
		}
		w.raw(`<label class="file">Replace photo <input type="file" name="image" accept="image/*"></label>`)
		if p.Attachment != nil || c.WorkingAttachment.Disposition == post.Replaced {
			w.raw(`<label><input type="checkbox" name="remove_image" value="1"`)
			if c.WorkingAttachment.Disposition == post.Cleared {
				w.raw(` checked`)
			}
			w.raw(`> Remove photo</label>`)
		}
		w.raw(`<button type="submit">Save</button></form><form method="post" class="inline"`)
		w.attr("action", PostPath(p.ID)+"cancel/")
		w.raw(`>`)
		w.csrf(csrf)
		w.raw(`<button type="submit">Cancel</button></form></article>`)
		return w.err
	})
}

// ProfilePage shows the viewer's avatar, rename form and own posts.
func ProfilePage(p Page, prof Profile, cards []Card) templ.Component {
	header := templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<section class="profile">`)
		if prof.Avatar != "" {
			w.raw(`<img class="avatar large" alt=""`)
			w.attr("src", prof.Avatar)
			w.raw(`>`)
		}
		w.raw(`<form method="post" action="/profile/avatar/" enctype="multipart/form-data">`)
		w.csrf(p.CSRF)
		w.raw(`<input type="file" name="avatar" accept="image/*" required>`,
			`<button type="submit">Upload avatar</button></form>`,
			`<form method="post" action="/profile/name/">`)
		w.csrf(p.CSRF)
		w.raw(`<input type="text" name="name" maxlength="10" required`)
		w.attr("value", prof.Name)
		w.raw(`><button type="submit">Rename</button></form></section>`)
		return w.err
	})
	return Layout(p, templ.Join(header, Timeline(p.CSRF, cards)))
}

// Login is the sign-in form. Accounts live with the identity provider; the
// form takes a token it issued.
func Login(p Page, showError bool) templ.Component {
	return Layout(p, templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		w := &writer{w: out}
		w.raw(`<form class="login" method="post" action="/login/">`)
		w.csrf(p.CSRF)
		if showError {
			w.raw(`<p class="error">That token was not accepted.</p>`)
		}
		w.raw(`<label>Access token <input type="password" name="token" autocomplete="off" required></label>`,
			`<button type="submit">Log in</button></form>`)
		return w.err
	}))
}

// NotFound is the 404 page.
func NotFound() templ.Component {
	return templ.Raw(`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>Not found</title>` +
		`<link rel="stylesheet" href="/assets/style.css"></head><body><main><h1>Not found</h1>` +
		`<p>That post is gone or never existed. <a href="/">Back to the timeline</a></p></main></body></html>`)
}

// ServerError is the 5xx page.
func ServerError() templ.Component {
	return templ.Raw(`<!doctype html><html lang="en"><head><meta charset="utf-8"><title>Error</title>` +
		`<link rel="stylesheet" href="/assets/style.css"></head><body><main><h1>Something went wrong</h1>` +
		`<p>Please try again in a moment. <a href="/">Back to the timeline</a></p></main></body></html>`)
}
