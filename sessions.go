package microfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eringen/microfeed/docstore"
	"github.com/eringen/microfeed/post"
)

type sessionKey struct {
	viewer string
	postID string
}

type sessionEntry struct {
	// mu serialises transitions on s. It is released while a store call is
	// running so reads of the session do not wait on the network; the
	// session's own in-flight mode keeps a second write out.
	mu      sync.Mutex
	s       *post.EditSession
	touched time.Time
}

// SessionState is a read-only copy of an edit session for rendering.
type SessionState struct {
	Mode       post.Mode
	Original   post.Post
	Body       string
	Attachment post.WorkingAttachment
}

// SessionRegistry holds one EditSession per (viewer, post) pair.
type SessionRegistry struct {
	mu      sync.Mutex
	entries map[sessionKey]*sessionEntry
	idle    time.Duration
	now     func() time.Time
}

// NewSessionRegistry creates a registry whose sessions expire after idle.
func NewSessionRegistry(idle time.Duration) *SessionRegistry {
	return &SessionRegistry{
		entries: make(map[sessionKey]*sessionEntry),
		idle:    idle,
		now:     time.Now,
	}
}

// open returns the viewer's session for p, creating it if needed. An
// existing session that is only viewing is refreshed from p.
func (r *SessionRegistry) open(viewer string, p post.Post) *sessionEntry {
	key := sessionKey{viewer, p.ID}
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.s.Mode() == post.Deleted {
		e = &sessionEntry{s: post.NewEditSession(p), touched: r.now()}
		r.entries[key] = e
		r.mu.Unlock()
		return e
	}
	r.mu.Unlock()

	e.mu.Lock()
	_ = e.s.Refresh(p) // refused unless Viewing
	e.touched = r.now()
	e.mu.Unlock()
	return e
}

func (r *SessionRegistry) get(viewer, postID string) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionKey{viewer, postID}]
	return e, ok
}

// Do runs fn on the viewer's session for p under the session lock.
func (r *SessionRegistry) Do(viewer string, p post.Post, fn func(s *post.EditSession) error) error {
	e := r.open(viewer, p)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = r.now()
	return fn(e.s)
}

// Commit commits the viewer's edit of postID through store.
func (r *SessionRegistry) Commit(ctx context.Context, viewer *post.Identity, postID string, store docstore.Store, now time.Time) (post.Post, bool, error) {
	e, ok := r.get(viewerID(viewer), postID)
	if !ok {
		return post.Post{}, false, post.ErrNotEditing
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = r.now()
	wrote, err := post.Commit(ctx, e.s, viewer, unlockedStore{&e.mu, store}, now)
	return e.s.Original(), wrote, err
}

// Delete deletes p on behalf of viewer and drops the session on success.
func (r *SessionRegistry) Delete(ctx context.Context, viewer *post.Identity, p post.Post, confirmed bool, store docstore.Store) error {
	e := r.open(viewerID(viewer), p)
	e.mu.Lock()
	err := post.Delete(ctx, e.s, viewer, confirmed, unlockedStore{&e.mu, store})
	deleted := e.s.Mode() == post.Deleted
	e.mu.Unlock()
	if deleted {
		r.drop(p.ID)
	}
	return err
}

// drop removes every viewer's session for a post that no longer exists.
func (r *SessionRegistry) drop(postID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.entries {
		if key.postID == postID {
			delete(r.entries, key)
		}
	}
}

// Lookup returns the state of the viewer's session for postID.
func (r *SessionRegistry) Lookup(viewer, postID string) (SessionState, bool) {
	e, ok := r.get(viewer, postID)
	if !ok {
		return SessionState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return SessionState{
		Mode:       e.s.Mode(),
		Original:   e.s.Original(),
		Body:       e.s.WorkingBody(),
		Attachment: e.s.WorkingAttachment(),
	}, true
}

// Sweep evicts sessions untouched for longer than the idle timeout. Busy
// sessions are skipped and picked up by a later sweep.
func (r *SessionRegistry) Sweep() int {
	cutoff := r.now().Add(-r.idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.s.Mode() == post.Deleted || (!e.s.Busy() && e.touched.Before(cutoff)) {
			delete(r.entries, key)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func viewerID(id *post.Identity) string {
	if id == nil {
		return ""
	}
	return id.ID
}

// unlockedStore releases a session or draft lock for the duration of a
// store write.
type unlockedStore struct {
	mu    *sync.Mutex
	store docstore.Store
}

func (u unlockedStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	u.mu.Unlock()
	defer u.mu.Lock()
	return u.store.Create(ctx, collection, fields)
}

func (u unlockedStore) Update(ctx context.Context, collection, id string, p docstore.Patch) error {
	u.mu.Unlock()
	defer u.mu.Lock()
	return u.store.Update(ctx, collection, id, p)
}

func (u unlockedStore) Delete(ctx context.Context, collection, id string) error {
	u.mu.Unlock()
	defer u.mu.Lock()
	return u.store.Delete(ctx, collection, id)
}

type draftEntry struct {
	mu sync.Mutex
	d  *post.Draft
}

// DraftRegistry tracks the draft each viewer is submitting, so a second
// submit while the first is still being stored is refused.
type DraftRegistry struct {
	mu      sync.Mutex
	entries map[string]*draftEntry
}

// NewDraftRegistry creates an empty registry.
func NewDraftRegistry() *DraftRegistry {
	return &DraftRegistry{entries: make(map[string]*draftEntry)}
}

func (r *DraftRegistry) entry(viewer string) *draftEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[viewer]
	if !ok {
		e = &draftEntry{}
		r.entries[viewer] = e
	}
	return e
}

// Submit makes d the viewer's current draft and submits it through store.
// It fails with post.ErrInFlight while the viewer's previous draft is
// still being stored.
func (r *DraftRegistry) Submit(ctx context.Context, viewer *post.Identity, d *post.Draft, store docstore.Store, now time.Time) (post.Post, error) {
	key := viewerID(viewer)
	e := r.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.d != nil && e.d.InFlight() {
		return post.Post{}, post.ErrInFlight
	}
	e.d = d
	p, err := post.Submit(ctx, d, viewer, unlockedStore{&e.mu, store}, now)
	if err == nil && e.d == d {
		r.mu.Lock()
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
	}
	return p, err
}

// Sweep forgets drafts that are not being submitted.
func (r *DraftRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.d == nil || !e.d.InFlight() {
			delete(r.entries, key)
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Len returns the number of viewers with a tracked draft.
func (r *DraftRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// startScheduler runs housekeeping on a cron schedule: idle edit sessions
// are evicted and rate limiter windows pruned.
func (a *App) startScheduler() error {
	a.cron = cron.New(cron.WithLogger(cron.PrintfLogger(a.Echo.Logger)))
	_, err := a.cron.AddFunc(a.Config.SessionSweep, func() {
		if n := a.Sessions.Sweep(); n > 0 {
			a.Echo.Logger.Infof("evicted %d idle edit sessions", n)
		}
		a.Drafts.Sweep()
		a.loginLimiter.Sweep()
		a.postLimiter.Sweep()
	})
	if err != nil {
		return fmt.Errorf("microfeed: session sweep schedule %q: %w", a.Config.SessionSweep, err)
	}
	a.cron.Start()
	return nil
}
