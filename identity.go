package microfeed

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/eringen/microfeed/post"
)

const (
	sessionName    = "feed_session"
	identityCtxKey = "identity"
)

// IdentityProvider resolves the acting user of a request, or nil.
type IdentityProvider interface {
	Identity(c echo.Context) *post.Identity
}

// Claims are the identity token claims. The user id is "uid", falling back
// to the registered subject.
type Claims struct {
	UID  string `json:"uid,omitempty"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("microfeed: invalid token")

// ParseToken verifies an HS256 token and returns the identity it carries.
func ParseToken(secret []byte, tokenStr string) (*post.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims,
		func(t *jwt.Token) (any, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}
	return &post.Identity{ID: uid, DisplayName: claims.Name}, nil
}

// IssueToken signs a token for uid valid for ttl.
func IssueToken(secret []byte, uid, name string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		UID:  uid,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// JWTIdentity reads an "Authorization: Bearer" token.
type JWTIdentity struct {
	Secret []byte
}

func (j JWTIdentity) Identity(c echo.Context) *post.Identity {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return nil
	}
	id, err := ParseToken(j.Secret, strings.TrimSpace(auth[7:]))
	if err != nil {
		return nil
	}
	return id
}

// SessionIdentity reads the cookie session written at login.
type SessionIdentity struct{}

func (SessionIdentity) Identity(c echo.Context) *post.Identity {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return nil
	}
	uid, _ := sess.Values["uid"].(string)
	if uid == "" {
		return nil
	}
	name, _ := sess.Values["name"].(string)
	return &post.Identity{ID: uid, DisplayName: name}
}

// ChainIdentity returns the first identity any provider resolves.
type ChainIdentity []IdentityProvider

func (ch ChainIdentity) Identity(c echo.Context) *post.Identity {
	for _, p := range ch {
		if id := p.Identity(c); id != nil {
			return id
		}
	}
	return nil
}

func setSessionIdentity(c echo.Context, id *post.Identity) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values["uid"] = id.ID
	sess.Values["name"] = id.DisplayName
	return sess.Save(c.Request(), c.Response())
}

func clearSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// identityMiddleware resolves the identity once per request.
func (a *App) identityMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := a.Identity.Identity(c); id != nil {
			c.Set(identityCtxKey, id)
		}
		return next(c)
	}
}

// Viewer returns the identity resolved for this request, or nil.
func Viewer(c echo.Context) *post.Identity {
	id, _ := c.Get(identityCtxKey).(*post.Identity)
	return id
}

// requireIdentity redirects anonymous requests to the login page.
func requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if Viewer(c) == nil {
			return c.Redirect(http.StatusSeeOther, "/login/")
		}
		return next(c)
	}
}
