package post

import (
	"context"
	"time"

	"github.com/eringen/microfeed/docstore"
)

// Mode is the presentation state of an EditSession.
type Mode int

const (
	Viewing Mode = iota
	Editing
	// Committing is Editing with an update waiting on the store.
	Committing
	// Deleting is Viewing with a delete waiting on the store.
	Deleting
	// Deleted is terminal.
	Deleted
)

func (m Mode) String() string {
	switch m {
	case Editing:
		return "editing"
	case Committing:
		return "committing"
	case Deleting:
		return "deleting"
	case Deleted:
		return "deleted"
	}
	return "viewing"
}

// Disposition is the edit's intent for the image field.
type Disposition int

const (
	// Unset mirrors the original image; nothing was chosen yet.
	Unset Disposition = iota
	Replaced
	Cleared
)

func (d Disposition) String() string {
	switch d {
	case Replaced:
		return "replaced"
	case Cleared:
		return "cleared"
	}
	return "unset"
}

// WorkingAttachment is the tri-state image of an edit in progress. Image is
// meaningful only when Disposition is Replaced.
type WorkingAttachment struct {
	Disposition Disposition
	Image       EmbeddedImage
}

// Updater applies a partial update. docstore.Store satisfies it.
type Updater interface {
	Update(ctx context.Context, collection, id string, p docstore.Patch) error
}

// Deleter removes a document. docstore.Store satisfies it.
type Deleter interface {
	Delete(ctx context.Context, collection, id string) error
}

// EditSession tracks one post's viewing/editing state and the working copy
// of an edit. It is a plain value with transition methods and is not safe
// for concurrent use; callers serialise access per session.
type EditSession struct {
	original    Post
	mode        Mode
	workingBody string
	working     WorkingAttachment
	pending     Update
}

// NewEditSession starts viewing p.
func NewEditSession(p Post) *EditSession {
	return &EditSession{original: p}
}

// Original returns the last known stored post.
func (s *EditSession) Original() Post { return s.original }

// Mode returns the current state.
func (s *EditSession) Mode() Mode { return s.mode }

// WorkingBody returns the text being edited.
func (s *EditSession) WorkingBody() string { return s.workingBody }

// WorkingAttachment returns the image intent of the edit.
func (s *EditSession) WorkingAttachment() WorkingAttachment { return s.working }

// Busy reports whether a commit or delete is waiting on the store.
func (s *EditSession) Busy() bool {
	return s.mode == Committing || s.mode == Deleting
}

// BeginEdit enters Editing when identity owns the post. Anyone else gets
// ErrNotOwner and the session stays as it was.
func (s *EditSession) BeginEdit(identity *Identity) error {
	if s.mode == Editing {
		return nil
	}
	if s.mode != Viewing {
		return ErrNotViewing
	}
	if !Owns(identity, s.original) {
		return ErrNotOwner
	}
	s.mode = Editing
	s.workingBody = s.original.Body
	s.working = WorkingAttachment{}
	return nil
}

// SetBody replaces the working text, capped at MaxBodyRunes.
func (s *EditSession) SetBody(body string) error {
	if s.mode != Editing {
		return ErrNotEditing
	}
	s.workingBody = CapBody(body)
	return nil
}

// ReplaceAttachment encodes f as the new image. On error nothing changes.
func (s *EditSession) ReplaceAttachment(f File) error {
	if s.mode != Editing {
		return ErrNotEditing
	}
	img, err := Encode(f)
	if err != nil {
		return err
	}
	s.working = WorkingAttachment{Disposition: Replaced, Image: img}
	return nil
}

// ClearAttachment marks the image for removal.
func (s *EditSession) ClearAttachment() error {
	if s.mode != Editing {
		return ErrNotEditing
	}
	s.working = WorkingAttachment{Disposition: Cleared}
	return nil
}

// KeepAttachment withdraws a staged removal or replacement so the commit
// leaves the stored image as it is.
func (s *EditSession) KeepAttachment() error {
	if s.mode != Editing {
		return ErrNotEditing
	}
	s.working = WorkingAttachment{}
	return nil
}

// Cancel drops the working copy and returns to Viewing. It is refused while
// a commit is in flight.
func (s *EditSession) Cancel() error {
	switch s.mode {
	case Editing:
		s.reset()
		return nil
	case Committing:
		return ErrInFlight
	}
	return ErrNotEditing
}

// BeginCommit validates the edit and computes its update. With no change
// the session returns straight to Viewing and reports false; nothing is to
// be written and updatedAt is not bumped. Otherwise the session enters
// Committing and FinishCommit must follow.
func (s *EditSession) BeginCommit(identity *Identity, now time.Time) (Update, bool, error) {
	if s.Busy() {
		return Update{}, false, ErrInFlight
	}
	if s.mode != Editing {
		return Update{}, false, ErrNotEditing
	}
	if !Owns(identity, s.original) {
		return Update{}, false, ErrNotOwner
	}
	if err := checkBody(s.workingBody); err != nil {
		return Update{}, false, err
	}
	u, changed := Build(s.original, s, now)
	if !changed {
		s.reset()
		return Update{}, false, nil
	}
	s.mode = Committing
	s.pending = u
	return u, true, nil
}

// FinishCommit resolves the commit started by BeginCommit. On success the
// written change is folded into the original and the session views it; on
// failure the session goes back to Editing with the working copy intact.
func (s *EditSession) FinishCommit(err error) {
	if s.mode != Committing {
		return
	}
	if err != nil {
		s.mode = Editing
		s.pending = Update{}
		return
	}
	s.original = s.pending.ApplyTo(s.original)
	s.reset()
}

// BeginDelete starts deleting the post. The user must have confirmed and
// identity must own the post; otherwise nothing happens.
func (s *EditSession) BeginDelete(identity *Identity, confirmed bool) error {
	if s.Busy() {
		return ErrInFlight
	}
	if s.mode != Viewing {
		return ErrNotViewing
	}
	if !confirmed {
		return ErrNotConfirmed
	}
	if !Owns(identity, s.original) {
		return ErrNotOwner
	}
	s.mode = Deleting
	return nil
}

// FinishDelete resolves the delete. The post stays visible (Viewing) until
// the store confirms removal.
func (s *EditSession) FinishDelete(err error) {
	if s.mode != Deleting {
		return
	}
	if err != nil {
		s.mode = Viewing
		return
	}
	s.mode = Deleted
}

// Refresh replaces the original with the store's copy. Only allowed while
// Viewing, so an edit in progress is never overwritten.
func (s *EditSession) Refresh(p Post) error {
	if s.mode != Viewing {
		return ErrNotViewing
	}
	s.original = p
	return nil
}

func (s *EditSession) reset() {
	s.mode = Viewing
	s.workingBody = ""
	s.working = WorkingAttachment{}
	s.pending = Update{}
}

// Commit runs BeginCommit, writes the update through u and finishes the
// commit. It reports whether a write happened.
func Commit(ctx context.Context, s *EditSession, identity *Identity, u Updater, now time.Time) (bool, error) {
	upd, changed, err := s.BeginCommit(identity, now)
	if err != nil || !changed {
		return false, err
	}
	if err := u.Update(ctx, Collection, s.original.ID, upd.Patch()); err != nil {
		err = &StoreError{Op: "update", Err: err}
		s.FinishCommit(err)
		return false, err
	}
	s.FinishCommit(nil)
	return true, nil
}

// Delete runs BeginDelete, removes the post through d and finishes.
func Delete(ctx context.Context, s *EditSession, identity *Identity, confirmed bool, d Deleter) error {
	if err := s.BeginDelete(identity, confirmed); err != nil {
		return err
	}
	if err := d.Delete(ctx, Collection, s.original.ID); err != nil {
		err = &StoreError{Op: "delete", Err: err}
		s.FinishDelete(err)
		return err
	}
	s.FinishDelete(nil)
	return nil
}
