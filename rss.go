package microfeed

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/post"
	"github.com/eringen/microfeed/richtext"
	"github.com/eringen/microfeed/views"
)

// rssTitleRunes bounds item titles; the full text goes in the description.
const rssTitleRunes = 60

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Categories  []string `xml:"category"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Timeline(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func (a *App) renderRSS(c echo.Context, posts []post.Post) error {
	base := a.Config.URL
	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		postURL := views.BuildURL(base, "posts", p.ID)
		items = append(items, rssItem{
			Title:       richtext.Plain(p.Body, rssTitleRunes),
			Link:        postURL,
			Description: p.Body,
			Categories:  richtext.Hashtags(p.Body),
			PubDate:     p.CreatedAt.UTC().Format(time.RFC1123Z),
			GUID:        postURL,
		})
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       a.Config.Name,
			Link:        base,
			Description: a.Config.Description,
			Items:       items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed)
}
