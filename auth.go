package microfeed

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

func (a *App) handleLoginPage(c echo.Context) error {
	return Render(c, a.Views.Login(a.page(c, "Log in", ""), false))
}

// handleLogin exchanges an identity token for a cookie session. Only failed
// attempts count against the client's login budget.
func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	id, err := ParseToken([]byte(a.Config.JWTSecret), strings.TrimSpace(c.FormValue("token")))
	if err != nil {
		a.loginLimiter.Record(ip)
		c.Logger().Debugf("login from %s: %v", ip, err)
		return RenderStatus(c, http.StatusUnauthorized, a.Views.Login(a.page(c, "Log in", ""), true))
	}
	if err := setSessionIdentity(c, id); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func handleLogout(c echo.Context) error {
	if err := clearSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/")
}
