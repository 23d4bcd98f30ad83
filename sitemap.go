package microfeed

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/post"
	"github.com/eringen/microfeed/views"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Timeline(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts)
}

// renderSitemap lists the home page and every timeline post. lastmod is
// the last edit, or the creation time of a never-edited post.
func (a *App) renderSitemap(c echo.Context, posts []post.Post) error {
	base := a.Config.URL
	urls := []sitemapURL{
		{Loc: views.BuildURL(base)},
	}
	for _, p := range posts {
		mod := p.CreatedAt
		if p.UpdatedAt != nil {
			mod = *p.UpdatedAt
		}
		urls = append(urls, sitemapURL{
			Loc:     views.BuildURL(base, "posts", p.ID),
			LastMod: mod.UTC().Format(time.DateOnly),
		})
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
