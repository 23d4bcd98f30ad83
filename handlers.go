package microfeed

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/docstore"
	"github.com/eringen/microfeed/post"
	"github.com/eringen/microfeed/views"
)

func (a *App) page(c echo.Context, title, notice string) views.Page {
	return views.Page{
		Site: views.SiteConfig{
			Name:        a.Config.Name,
			URL:         a.Config.URL,
			Description: a.Config.Description,
		},
		Title:  title,
		Viewer: Viewer(c),
		CSRF:   CsrfToken(c),
		Notice: notice,
	}
}

// cards pairs posts with the viewer's ownership and edit state.
func (a *App) cards(ctx context.Context, viewer *post.Identity, posts []post.Post) []views.Card {
	avatars := a.avatars(ctx, posts)
	cards := make([]views.Card, 0, len(posts))
	for _, p := range posts {
		cards = append(cards, a.card(viewer, p, avatars[p.AuthorID]))
	}
	return cards
}

func (a *App) card(viewer *post.Identity, p post.Post, avatar string) views.Card {
	c := views.Card{Post: p, Owner: post.Owns(viewer, p), Avatar: avatar}
	if !c.Owner {
		return c
	}
	st, ok := a.Sessions.Lookup(viewer.ID, p.ID)
	if ok && (st.Mode == post.Editing || st.Mode == post.Committing) {
		c.Post = st.Original
		c.Editing = true
		c.WorkingBody = st.Body
		c.WorkingAttachment = st.Attachment
	}
	return c
}

func (a *App) renderHome(c echo.Context, code int, notice string, d views.Draft) error {
	posts, err := a.Timeline(c.Request().Context())
	if err != nil {
		return err
	}
	viewer := Viewer(c)
	return RenderStatus(c, code, a.Views.Home(a.page(c, "", notice), d, a.cards(c.Request().Context(), viewer, posts)))
}

func (a *App) handleHome(c echo.Context) error {
	return a.renderHome(c, http.StatusOK, "", views.Draft{})
}

func (a *App) handlePost(c echo.Context) error {
	p, err := a.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	viewer := Viewer(c)
	avatar, _ := a.Avatar(c.Request().Context(), p.AuthorID)
	card := a.card(viewer, p, avatar)
	if c.Request().Header.Get("HX-Request") == "true" {
		return Render(c, a.Views.PostCard(CsrfToken(c), card))
	}
	return Render(c, views.Layout(a.page(c, p.AuthorName, ""), a.Views.PostCard(CsrfToken(c), card)))
}

func (a *App) handleCreate(c echo.Context) error {
	viewer := Viewer(c)
	var d post.Draft
	d.SetText(c.FormValue(post.FieldBody))
	if f, err := post.Select(formFiles(c, "image")); err == nil {
		if err := d.AttachFile(f); err != nil {
			return a.renderHome(c, statusFor(err), noticeFor(err), views.Draft{Text: d.Text()})
		}
	}
	if _, err := a.CreatePost(c.Request().Context(), &d, viewer); err != nil {
		c.Logger().Debugf("create post by %s: %v", viewer.ID, err)
		return a.renderHome(c, statusFor(err), noticeFor(err), views.Draft{Text: d.Text(), HasImage: d.Attachment() != nil})
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func (a *App) handleEdit(c echo.Context) error {
	viewer := Viewer(c)
	p, err := a.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	err = a.Sessions.Do(viewer.ID, p, func(s *post.EditSession) error {
		return s.BeginEdit(viewer)
	})
	if err != nil {
		return a.renderHome(c, statusFor(err), noticeFor(err), views.Draft{})
	}
	return c.Redirect(http.StatusSeeOther, backTo(c)+"#post-"+p.ID)
}

// handleCommit applies the edit form to the working copy and commits it.
// A form posted after the session expired starts a fresh edit first.
func (a *App) handleCommit(c echo.Context) error {
	viewer := Viewer(c)
	ctx := c.Request().Context()
	p, err := a.GetPost(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	files := formFiles(c, "image")
	err = a.Sessions.Do(viewer.ID, p, func(s *post.EditSession) error {
		if s.Mode() == post.Viewing {
			if err := s.BeginEdit(viewer); err != nil {
				return err
			}
		}
		if err := s.SetBody(c.FormValue(post.FieldBody)); err != nil {
			return err
		}
		if f, err := post.Select(files); err == nil {
			return s.ReplaceAttachment(f)
		}
		if c.FormValue("remove_image") != "" {
			return s.ClearAttachment()
		}
		// The form re-renders a pending removal as a ticked box; an
		// unticked box on resubmit withdraws it.
		if s.WorkingAttachment().Disposition == post.Cleared {
			return s.KeepAttachment()
		}
		return nil
	})
	if err != nil {
		return a.renderHome(c, statusFor(err), noticeFor(err), views.Draft{})
	}

	_, wrote, err := a.Sessions.Commit(ctx, viewer, p.ID, a.Store, a.now())
	if err != nil {
		if post.IsStore(err) {
			c.Logger().Errorf("commit %s: %v", p.ID, err)
		}
		return a.renderHome(c, statusFor(err), noticeFor(err), views.Draft{})
	}
	if wrote {
		a.changed(EventUpdated, p.ID)
	}
	return c.Redirect(http.StatusSeeOther, backTo(c)+"#post-"+p.ID)
}

func (a *App) handleCancel(c echo.Context) error {
	viewer := Viewer(c)
	p, err := a.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	err = a.Sessions.Do(viewer.ID, p, func(s *post.EditSession) error {
		return s.Cancel()
	})
	if errors.Is(err, post.ErrInFlight) {
		return a.renderHome(c, statusFor(err), noticeFor(err), views.Draft{})
	}
	return c.Redirect(http.StatusSeeOther, backTo(c)+"#post-"+p.ID)
}

func (a *App) handleDelete(c echo.Context) error {
	viewer := Viewer(c)
	ctx := c.Request().Context()
	p, err := a.GetPost(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	confirmed := c.FormValue("confirm") == "yes"
	if err := a.Sessions.Delete(ctx, viewer, p, confirmed, a.Store); err != nil {
		if post.IsStore(err) {
			c.Logger().Errorf("delete %s: %v", p.ID, err)
		}
		return a.renderHome(c, statusFor(err), noticeFor(err), views.Draft{})
	}
	a.changed(EventDeleted, p.ID)
	return c.Redirect(http.StatusSeeOther, backTo(c))
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if errors.Is(err, docstore.ErrNotFound) {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
