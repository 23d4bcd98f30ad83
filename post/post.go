// Package post is the authoring and edit-reconciliation engine behind the
// feed. It validates and size-bounds new posts, models the per-post
// viewing/editing state machine, and computes the minimal partial update that
// reconciles an edited post with the document store.
//
// Nothing in this package touches HTTP or a concrete database; store calls go
// through the narrow Creator, Updater and Deleter interfaces, which
// docstore.Store satisfies.
package post

import (
	"time"
	"unicode/utf8"
)

// Limits enforced on every post.
const (
	MaxBodyRunes       = 180
	MaxAttachmentBytes = 300 * 1024
)

// Collection is the document-store collection holding posts.
const Collection = "tweets"

// Stored field names. They match the records written by earlier versions of
// the app and must not change.
const (
	FieldBody       = "tweet"
	FieldCreatedAt  = "createdAt"
	FieldUpdatedAt  = "updatedAt"
	FieldAuthorID   = "userId"
	FieldAuthorName = "username"
	FieldImage      = "image"
	FieldImageType  = "type"
	FieldImageValue = "value"
)

// EncodingBase64 marks an image embedded inline as a base64 data URL.
// Stored records name every embedded image type "base64".
const EncodingBase64 = "base64"

// AnonymousName is recorded as the author name when the identity has none.
const AnonymousName = "Anonymous"

// Identity is the acting user as resolved for a single action. A nil
// *Identity means nobody is signed in.
type Identity struct {
	ID          string
	DisplayName string
}

// Name returns the display name or AnonymousName when it is empty.
func (i *Identity) Name() string {
	if i == nil || i.DisplayName == "" {
		return AnonymousName
	}
	return i.DisplayName
}

// EmbeddedImage is an image stored inline with the post.
type EmbeddedImage struct {
	Encoding string
	Data     string
}

func (img EmbeddedImage) fields() map[string]any {
	return map[string]any{
		FieldImageType:  img.Encoding,
		FieldImageValue: img.Data,
	}
}

// Post is a persisted post as the engine sees it.
type Post struct {
	ID         string
	AuthorID   string
	AuthorName string
	Body       string
	Attachment *EmbeddedImage
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// Edited reports whether the post has been edited at least once.
func (p Post) Edited() bool {
	return p.UpdatedAt != nil
}

// HasAttachment reports whether the post carries an image.
func (p Post) HasAttachment() bool {
	return p.Attachment != nil
}

// CapBody truncates s to MaxBodyRunes characters. Input beyond the cap is
// refused at entry rather than rejected later.
func CapBody(s string) string {
	if utf8.RuneCountInString(s) <= MaxBodyRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxBodyRunes {
			return s[:i]
		}
		n++
	}
	return s
}

func checkBody(s string) error {
	if s == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(s) > MaxBodyRunes {
		return ErrBodyTooLong
	}
	return nil
}
