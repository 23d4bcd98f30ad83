package microfeed

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/post"
)

// apiPost is a post in its stored shape plus its id. Times are Unix
// milliseconds.
type apiPost struct {
	ID        string    `json:"id"`
	Tweet     string    `json:"tweet"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt *int64    `json:"updatedAt,omitempty"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Image     *apiImage `json:"image,omitempty"`
}

type apiImage struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func apiRecord(p post.Post) apiPost {
	out := apiPost{
		ID:        p.ID,
		Tweet:     p.Body,
		CreatedAt: p.CreatedAt.UnixMilli(),
		UserID:    p.AuthorID,
		Username:  p.AuthorName,
	}
	if p.UpdatedAt != nil {
		ms := p.UpdatedAt.UnixMilli()
		out.UpdatedAt = &ms
	}
	if p.Attachment != nil {
		out.Image = &apiImage{Type: p.Attachment.Encoding, Value: p.Attachment.Data}
	}
	return out
}

func (a *App) handleAPIPosts(c echo.Context) error {
	posts, err := a.Timeline(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]apiPost, 0, len(posts))
	for _, p := range posts {
		out = append(out, apiRecord(p))
	}
	return c.JSON(http.StatusOK, out)
}
