package post

import (
	"context"
	"time"
)

// Creator persists a new document. docstore.Store satisfies it.
type Creator interface {
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
}

// NewPost holds the fields written when a draft is committed.
type NewPost struct {
	Body       string
	AuthorID   string
	AuthorName string
	CreatedAt  time.Time
	Attachment *EmbeddedImage
}

// Fields returns the stored record. The image key is present only when the
// post has an attachment.
func (n NewPost) Fields() map[string]any {
	fields := map[string]any{
		FieldBody:       n.Body,
		FieldCreatedAt:  n.CreatedAt.UnixMilli(),
		FieldAuthorName: n.AuthorName,
		FieldAuthorID:   n.AuthorID,
	}
	if n.Attachment != nil {
		fields[FieldImage] = n.Attachment.fields()
	}
	return fields
}

// Post returns the post as it will read back once stored under id.
func (n NewPost) Post(id string) Post {
	return Post{
		ID:         id,
		AuthorID:   n.AuthorID,
		AuthorName: n.AuthorName,
		Body:       n.Body,
		Attachment: n.Attachment,
		CreatedAt:  time.UnixMilli(n.CreatedAt.UnixMilli()),
	}
}

// Draft is a post being composed. The zero value is an empty draft.
type Draft struct {
	text       string
	attachment *EmbeddedImage
	inFlight   bool
}

// Text returns the current text.
func (d *Draft) Text() string { return d.text }

// Attachment returns the selected image or nil.
func (d *Draft) Attachment() *EmbeddedImage { return d.attachment }

// InFlight reports whether a submit is waiting on the store.
func (d *Draft) InFlight() bool { return d.inFlight }

// SetText replaces the text, dropping anything past MaxBodyRunes.
func (d *Draft) SetText(s string) {
	d.text = CapBody(s)
}

// AttachFile encodes f and selects it. On error the draft is unchanged.
func (d *Draft) AttachFile(f File) error {
	img, err := Encode(f)
	if err != nil {
		return err
	}
	d.attachment = &img
	return nil
}

// ClearAttachment drops the selected image.
func (d *Draft) ClearAttachment() {
	d.attachment = nil
}

// Begin validates the draft and marks a submit as in flight. Every Begin
// that succeeds must be followed by Finish.
func (d *Draft) Begin(identity *Identity, now time.Time) (NewPost, error) {
	if identity == nil {
		return NewPost{}, ErrNoIdentity
	}
	if d.inFlight {
		return NewPost{}, ErrInFlight
	}
	if err := checkBody(d.text); err != nil {
		return NewPost{}, err
	}
	d.inFlight = true
	np := NewPost{
		Body:       d.text,
		AuthorID:   identity.ID,
		AuthorName: identity.Name(),
		CreatedAt:  now,
	}
	if d.attachment != nil {
		img := *d.attachment
		np.Attachment = &img
	}
	return np, nil
}

// Finish ends the submit started by Begin. A nil err resets the draft;
// otherwise its contents are kept so the user can retry.
func (d *Draft) Finish(err error) {
	d.inFlight = false
	if err == nil {
		d.text = ""
		d.attachment = nil
	}
}

// Submit commits d through c and returns the stored post.
func Submit(ctx context.Context, d *Draft, identity *Identity, c Creator, now time.Time) (Post, error) {
	np, err := d.Begin(identity, now)
	if err != nil {
		return Post{}, err
	}
	id, err := c.Create(ctx, Collection, np.Fields())
	if err != nil {
		err = &StoreError{Op: "create", Err: err}
		d.Finish(err)
		return Post{}, err
	}
	d.Finish(nil)
	return np.Post(id), nil
}
