package post

import (
	"time"

	"github.com/eringen/microfeed/docstore"
)

// AttachmentOp says what an update does to the stored image field.
type AttachmentOp int

const (
	// AttachmentOmit leaves the field out of the write entirely.
	AttachmentOmit AttachmentOp = iota
	// AttachmentSet writes a new image.
	AttachmentSet
	// AttachmentRemove deletes the field from the stored document.
	AttachmentRemove
)

func (op AttachmentOp) String() string {
	switch op {
	case AttachmentSet:
		return "set"
	case AttachmentRemove:
		return "remove"
	}
	return "omit"
}

// AttachmentChange is the image part of an Update.
type AttachmentChange struct {
	Op    AttachmentOp
	Image EmbeddedImage
}

// Update is the minimal write reconciling an edit with the stored post.
type Update struct {
	Body       string
	UpdatedAt  time.Time
	Attachment AttachmentChange
}

// Build diffs the session's working copy against original. It reports false
// (no change) when the text is unchanged and the image disposition resolves
// to omit; callers must not write in that case.
//
//	working    original image  -> image field
//	Unset      any                omitted
//	Replaced   any                set
//	Cleared    present            removed
//	Cleared    absent             omitted
func Build(original Post, s *EditSession, now time.Time) (Update, bool) {
	var change AttachmentChange
	switch s.working.Disposition {
	case Replaced:
		change = AttachmentChange{Op: AttachmentSet, Image: s.working.Image}
	case Cleared:
		if original.Attachment != nil {
			change = AttachmentChange{Op: AttachmentRemove}
		}
	}
	if s.workingBody == original.Body && change.Op == AttachmentOmit {
		return Update{}, false
	}
	return Update{
		Body:       s.workingBody,
		UpdatedAt:  now,
		Attachment: change,
	}, true
}

// Patch converts u to a partial store update. Removal is an explicit unset
// of the image field, distinct from leaving it out.
func (u Update) Patch() docstore.Patch {
	p := docstore.Patch{
		Set: map[string]any{
			FieldBody:      u.Body,
			FieldUpdatedAt: u.UpdatedAt.UnixMilli(),
		},
	}
	switch u.Attachment.Op {
	case AttachmentSet:
		p.Set[FieldImage] = u.Attachment.Image.fields()
	case AttachmentRemove:
		p.Unset = []string{FieldImage}
	}
	return p
}

// ApplyTo returns p as it reads after u has been written.
func (u Update) ApplyTo(p Post) Post {
	p.Body = u.Body
	at := time.UnixMilli(u.UpdatedAt.UnixMilli())
	p.UpdatedAt = &at
	switch u.Attachment.Op {
	case AttachmentSet:
		img := u.Attachment.Image
		p.Attachment = &img
	case AttachmentRemove:
		p.Attachment = nil
	}
	return p
}
