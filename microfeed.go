// Package microfeed is a micro-post feed built with Go, Echo, and templ.
// Signed-in users write short posts with an optional embedded image, read a
// reverse-chronological timeline, and edit or delete their own posts.
//
// The authoring and edit rules live in package post; this package wires
// them to a document store, an identity provider and the HTTP surface.
package microfeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/robfig/cron/v3"

	"github.com/eringen/microfeed/docstore"
	"github.com/eringen/microfeed/docstore/mongostore"
	_ "github.com/eringen/microfeed/docstore/pgstore"
	_ "github.com/eringen/microfeed/docstore/sqlitestore"
	"github.com/eringen/microfeed/views"
)

// ViewFuncs holds the components the App renders pages with. Zero fields
// fall back to the views package defaults.
type ViewFuncs struct {
	Home        func(p views.Page, d views.Draft, cards []views.Card) templ.Component
	Profile     func(p views.Page, prof views.Profile, cards []views.Card) templ.Component
	PostCard    func(csrf string, c views.Card) templ.Component
	Login       func(p views.Page, showError bool) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

func (v *ViewFuncs) setDefaults() {
	if v.Home == nil {
		v.Home = views.Home
	}
	if v.Profile == nil {
		v.Profile = views.ProfilePage
	}
	if v.PostCard == nil {
		v.PostCard = views.PostCard
	}
	if v.Login == nil {
		v.Login = views.Login
	}
	if v.NotFound == nil {
		v.NotFound = views.NotFound
	}
	if v.ServerError == nil {
		v.ServerError = views.ServerError
	}
}

// App is the central microfeed application. It wires together the store,
// caches, edit sessions, handlers, and middleware.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Store    docstore.Store
	Cache    *TimelineCache
	Sessions *SessionRegistry
	Drafts   *DraftRegistry
	Hub      *Hub
	Identity IdentityProvider
	Views    ViewFuncs

	loginLimiter *Limiter
	postLimiter  *Limiter
	cron         *cron.Cron
	customRoutes []func(*App)
	now          func() time.Time
	ready        bool
}

// New creates an App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		now:    time.Now,
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}
	a.Views.setDefaults()
	if a.Identity == nil {
		a.Identity = ChainIdentity{
			JWTIdentity{Secret: []byte(cfg.JWTSecret)},
			SessionIdentity{},
		}
	}
	return a
}

// Setup opens the store and registers middleware and routes. Start calls
// it; tests call it directly and drive a.Echo with httptest.
func (a *App) Setup(ctx context.Context) error {
	if a.ready {
		return nil
	}
	if err := a.Config.validate(); err != nil {
		return fmt.Errorf("microfeed: %w", err)
	}
	a.Echo.Logger.SetLevel(parseLevel(a.Config.LogLevel))

	if a.Store == nil {
		store, err := a.openStore(ctx)
		if err != nil {
			return fmt.Errorf("microfeed: init store: %w", err)
		}
		a.Store = store
	}

	a.Cache = NewTimelineCache(a.Store, a.Config.TimelineLimit, a.Config.TimelineCacheTTL)
	a.Sessions = NewSessionRegistry(a.Config.SessionIdle)
	a.Drafts = NewDraftRegistry()
	a.Hub = NewHub()
	a.loginLimiter = NewLimiter(5, time.Minute)
	a.postLimiter = NewLimiter(a.Config.PostRate, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

func (a *App) openStore(ctx context.Context) (docstore.Store, error) {
	if a.Config.StoreDriver == docstore.DriverMongo {
		return mongostore.Connect(ctx, a.Config.MongoURI, a.Config.MongoDatabase)
	}
	return docstore.Open(ctx, a.Config.StoreDriver, a.Config.dsn())
}

// Start sets the App up, starts the housekeeping scheduler and serves HTTP
// until the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(context.Background()); err != nil {
		return err
	}
	if err := a.startScheduler(); err != nil {
		return err
	}
	a.Echo.Logger.Infof("microfeed listening on %s (store: %s)", a.Config.Addr, a.Config.StoreDriver)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	return errors.Join(err, a.Close())
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.GET("/assets/*", echo.WrapHandler(http.StripPrefix("/assets/", http.FileServer(http.FS(assetsFS())))))
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/api/posts", a.handleAPIPosts)
	e.GET("/ws", a.Hub.ServeWS)

	e.GET("/", a.handleHome)
	e.GET("/posts/:id/", a.handlePost)

	e.GET("/login/", a.handleLoginPage, publicOnly)
	e.POST("/login/", a.handleLogin, publicOnly)
	e.POST("/logout/", handleLogout)

	e.POST("/posts/", a.handleCreate, requireIdentity)
	e.GET("/posts/:id/edit/", a.handleEdit, requireIdentity)
	e.POST("/posts/:id/", a.handleCommit, requireIdentity)
	e.POST("/posts/:id/cancel/", a.handleCancel, requireIdentity)
	e.DELETE("/posts/:id/", a.handleDelete, requireIdentity)
	e.GET("/profile/", a.handleProfile, requireIdentity)
	e.POST("/profile/avatar/", a.handleAvatar, requireIdentity)
	e.POST("/profile/name/", a.handleRename, requireIdentity)
}

func parseLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
