package microfeed

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/docstore"
	"github.com/eringen/microfeed/post"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{post.ErrEmptyBody, http.StatusUnprocessableEntity},
		{post.ErrSizeExceeded, http.StatusUnprocessableEntity},
		{post.ErrNoSelection, http.StatusBadRequest},
		{post.ErrNotConfirmed, http.StatusBadRequest},
		{post.ErrNotOwner, http.StatusForbidden},
		{post.ErrInFlight, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrNameLength, http.StatusUnprocessableEntity},
		{fmt.Errorf("load: %w", docstore.ErrNotFound), http.StatusNotFound},
		{&post.StoreError{Op: "update", Err: errors.New("down")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestBackTo(t *testing.T) {
	tests := []struct {
		referer string
		want    string
	}{
		{"", "/"},
		{"http://example.com/profile/", "/profile/"},
		{"http://example.com/posts/abc/?x=1", "/posts/abc/?x=1"},
		{"http://evil.test/profile/", "/"},
		{"http://example.com/login/", "/"},
		{"javascript:alert(1)", "/"},
	}
	e := echo.New()
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.referer != "" {
			req.Header.Set("Referer", tt.referer)
		}
		c := e.NewContext(req, httptest.NewRecorder())
		if got := backTo(c); got != tt.want {
			t.Errorf("backTo(%q) = %q, want %q", tt.referer, got, tt.want)
		}
	}
}
