package microfeed

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/post"
	"github.com/eringen/microfeed/views"
)

func (a *App) renderProfile(c echo.Context, code int, notice string) error {
	ctx := c.Request().Context()
	viewer := Viewer(c)
	posts, err := a.ProfileTimeline(ctx, viewer.ID)
	if err != nil {
		return err
	}
	avatar, err := a.Avatar(ctx, viewer.ID)
	if err != nil {
		return err
	}
	prof := views.Profile{Name: viewer.Name(), Avatar: avatar}
	return RenderStatus(c, code, a.Views.Profile(a.page(c, "Profile", notice), prof, a.cards(ctx, viewer, posts)))
}

func (a *App) handleProfile(c echo.Context) error {
	return a.renderProfile(c, http.StatusOK, "")
}

func (a *App) handleAvatar(c echo.Context) error {
	f, err := post.Select(formFiles(c, FieldAvatar))
	if err == nil {
		err = a.SetAvatar(c.Request().Context(), Viewer(c), f)
	}
	if err != nil {
		if post.IsStore(err) {
			c.Logger().Errorf("avatar %s: %v", Viewer(c).ID, err)
		}
		return a.renderProfile(c, statusFor(err), noticeFor(err))
	}
	return c.Redirect(http.StatusSeeOther, "/profile/")
}

// handleRename renames the viewer. A cookie session is rewritten so the new
// name is used for later posts; bearer tokens keep the name they carry.
func (a *App) handleRename(c echo.Context) error {
	renamed, changed, err := a.Rename(c.Request().Context(), Viewer(c), c.FormValue("name"))
	if err != nil {
		if post.IsStore(err) {
			c.Logger().Errorf("rename %s: %v", Viewer(c).ID, err)
		}
		return a.renderProfile(c, statusFor(err), noticeFor(err))
	}
	if changed && !hasBearer(c) {
		if err := setSessionIdentity(c, renamed); err != nil {
			return err
		}
	}
	return c.Redirect(http.StatusSeeOther, "/profile/")
}
