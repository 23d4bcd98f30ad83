package microfeed

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/docstore"
	"github.com/eringen/microfeed/post"
)

// uploadFile adapts a multipart upload to post.File.
type uploadFile struct {
	fh *multipart.FileHeader
}

func (u uploadFile) Name() string { return u.fh.Filename }
func (u uploadFile) Size() int64  { return u.fh.Size }
func (u uploadFile) Open() (io.ReadCloser, error) {
	return u.fh.Open()
}

// formFiles returns the files posted under field. A browser sends an
// empty part for an untouched file input; those are skipped.
func formFiles(c echo.Context, field string) []post.File {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	var files []post.File
	for _, fh := range form.File[field] {
		if fh.Filename == "" && fh.Size == 0 {
			continue
		}
		files = append(files, uploadFile{fh})
	}
	return files
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, post.ErrNoSelection), errors.Is(err, post.ErrNotConfirmed):
		return http.StatusBadRequest
	case post.IsValidation(err), errors.Is(err, ErrNameLength):
		return http.StatusUnprocessableEntity
	case post.IsAuthorization(err):
		return http.StatusForbidden
	case errors.Is(err, post.ErrInFlight), errors.Is(err, post.ErrNotEditing), errors.Is(err, post.ErrNotViewing):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case post.IsStore(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// noticeFor is the message shown above the timeline after a refused action.
func noticeFor(err error) string {
	switch {
	case errors.Is(err, post.ErrEmptyBody):
		return "Write something first."
	case errors.Is(err, post.ErrBodyTooLong):
		return fmt.Sprintf("Posts are limited to %d characters.", post.MaxBodyRunes)
	case errors.Is(err, post.ErrSizeExceeded):
		return "That image is too large."
	case errors.Is(err, post.ErrNotImage):
		return "Only image files can be attached."
	case errors.Is(err, post.ErrNoSelection):
		return "Choose a single file."
	case errors.Is(err, post.ErrNotConfirmed):
		return "Tick the box to confirm deletion."
	case errors.Is(err, post.ErrInFlight):
		return "Still saving, please wait."
	case errors.Is(err, post.ErrNotEditing), errors.Is(err, post.ErrNotViewing):
		return "Finish or cancel the current edit first."
	case post.IsAuthorization(err):
		return "You can only change your own posts."
	case errors.Is(err, ErrRateLimited):
		return "You are posting too fast. Try again in a minute."
	case errors.Is(err, ErrNameLength):
		return fmt.Sprintf("Names are 1 to %d characters.", MaxNameRunes)
	case errors.Is(err, docstore.ErrNotFound):
		return "That post no longer exists."
	case post.IsStore(err):
		return "Could not save. Please try again."
	}
	return "Something went wrong."
}

// backTo returns the same-origin page the request came from, or "/".
func backTo(c echo.Context) string {
	ref := c.Request().Referer()
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != c.Request().Host) || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	switch u.Path {
	case "/login/", "/logout/":
		return "/"
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}
