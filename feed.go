package microfeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/eringen/microfeed/docstore"
	"github.com/eringen/microfeed/post"
)

// Avatars live in their own collection keyed by user id.
const (
	AvatarCollection = "avatars"
	FieldAvatar      = "avatar"
	MaxNameRunes     = 10
)

var (
	// ErrNameLength rejects display names outside 1..MaxNameRunes.
	ErrNameLength = fmt.Errorf("microfeed: name must be 1 to %d characters", MaxNameRunes)
	// ErrRateLimited rejects posting faster than the configured rate.
	ErrRateLimited = errors.New("microfeed: too many posts, slow down")
)

// CreatePost submits d on behalf of viewer. Only stored posts count
// against the viewer's posting rate.
func (a *App) CreatePost(ctx context.Context, d *post.Draft, viewer *post.Identity) (post.Post, error) {
	if viewer != nil && !a.postLimiter.Check(viewer.ID) {
		return post.Post{}, ErrRateLimited
	}
	p, err := a.Drafts.Submit(ctx, viewer, d, a.Store, a.now())
	if err != nil {
		return post.Post{}, err
	}
	a.postLimiter.Record(viewer.ID)
	a.changed(EventCreated, p.ID)
	return p, nil
}

// GetPost loads one post.
func (a *App) GetPost(ctx context.Context, id string) (post.Post, error) {
	rec, err := a.Store.Get(ctx, post.Collection, id)
	if err != nil {
		return post.Post{}, err
	}
	return post.FromRecord(rec), nil
}

// Timeline returns the newest posts, createdAt descending.
func (a *App) Timeline(ctx context.Context) ([]post.Post, error) {
	return a.Cache.Timeline(ctx)
}

// ProfileTimeline returns uid's own posts, createdAt descending.
func (a *App) ProfileTimeline(ctx context.Context, uid string) ([]post.Post, error) {
	records, err := a.Store.Query(ctx, post.Collection, docstore.Query{
		Where:   map[string]any{post.FieldAuthorID: uid},
		OrderBy: post.FieldCreatedAt,
		Desc:    true,
		Limit:   a.Config.ProfileLimit,
	})
	if err != nil {
		return nil, err
	}
	return post.Project(records), nil
}

// Avatar returns uid's avatar data URL, or "" when none is set.
func (a *App) Avatar(ctx context.Context, uid string) (string, error) {
	rec, err := a.Store.Get(ctx, AvatarCollection, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	s, _ := rec.Fields[FieldAvatar].(string)
	return s, nil
}

// avatars loads the avatar of every distinct author in posts. Lookup
// failures leave the author without an avatar.
func (a *App) avatars(ctx context.Context, posts []post.Post) map[string]string {
	out := make(map[string]string)
	for _, p := range posts {
		if _, seen := out[p.AuthorID]; seen || p.AuthorID == "" {
			continue
		}
		s, err := a.Avatar(ctx, p.AuthorID)
		if err != nil {
			a.Echo.Logger.Warnf("avatar %s: %v", p.AuthorID, err)
		}
		out[p.AuthorID] = s
	}
	return out
}

// SetAvatar encodes f and stores it as viewer's avatar, merging into any
// existing avatar document.
func (a *App) SetAvatar(ctx context.Context, viewer *post.Identity, f post.File) error {
	if viewer == nil {
		return post.ErrNoIdentity
	}
	img, err := post.Encode(f)
	if err != nil {
		return err
	}
	if err := a.Store.Set(ctx, AvatarCollection, viewer.ID, map[string]any{FieldAvatar: img.Data}); err != nil {
		return &post.StoreError{Op: "set avatar", Err: err}
	}
	a.changed(EventUpdated, "")
	return nil
}

// Rename changes viewer's display name and rewrites the author name on every
// post they wrote. It reports false when the name is unchanged.
func (a *App) Rename(ctx context.Context, viewer *post.Identity, name string) (*post.Identity, bool, error) {
	if viewer == nil {
		return nil, false, post.ErrNoIdentity
	}
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNameRunes {
		return nil, false, ErrNameLength
	}
	if name == viewer.DisplayName {
		return viewer, false, nil
	}
	renamed := &post.Identity{ID: viewer.ID, DisplayName: name}

	records, err := a.Store.Query(ctx, post.Collection, docstore.Query{
		Where: map[string]any{post.FieldAuthorID: viewer.ID},
	})
	if err != nil {
		return nil, false, &post.StoreError{Op: "rename", Err: err}
	}
	for _, r := range records {
		err := a.Store.Update(ctx, post.Collection, r.ID, docstore.Patch{
			Set: map[string]any{post.FieldAuthorName: name},
		})
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return nil, false, &post.StoreError{Op: "rename", Err: err}
		}
	}
	a.changed(EventUpdated, "")
	return renamed, true, nil
}

// changed invalidates cached reads and notifies live clients.
func (a *App) changed(kind, id string) {
	a.Cache.Invalidate()
	a.Hub.Broadcast(Event{Type: kind, ID: id})
}
