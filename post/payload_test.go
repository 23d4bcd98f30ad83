package post

import (
	"testing"
)

func TestBuildDispositions(t *testing.T) {
	img := &EmbeddedImage{Encoding: EncodingBase64, Data: "data:image/png;base64,OLD"}
	newImg := EmbeddedImage{Encoding: EncodingBase64, Data: "data:image/png;base64,NEW"}

	tests := []struct {
		name     string
		original *EmbeddedImage
		working  WorkingAttachment
		body     string
		want     AttachmentOp
		changed  bool
	}{
		{"unset keeps image", img, WorkingAttachment{}, "edited", AttachmentOmit, true},
		{"replace", nil, WorkingAttachment{Disposition: Replaced, Image: newImg}, "t", AttachmentSet, true},
		{"clear with image", img, WorkingAttachment{Disposition: Cleared}, "t", AttachmentRemove, true},
		{"clear without image", nil, WorkingAttachment{Disposition: Cleared}, "t", AttachmentOmit, false},
		{"nothing changed", img, WorkingAttachment{}, "t", AttachmentOmit, false},
	}
	for _, tt := range tests {
		original := Post{ID: "p", AuthorID: "u1", Body: "t", Attachment: tt.original}
		s := &EditSession{original: original, mode: Editing, workingBody: tt.body, working: tt.working}

		u, changed := Build(original, s, testNow)
		if changed != tt.changed {
			t.Errorf("%s: changed = %v, want %v", tt.name, changed, tt.changed)
			continue
		}
		if !changed {
			continue
		}
		if u.Attachment.Op != tt.want {
			t.Errorf("%s: op = %v, want %v", tt.name, u.Attachment.Op, tt.want)
		}
		if !u.UpdatedAt.Equal(testNow) {
			t.Errorf("%s: UpdatedAt = %v", tt.name, u.UpdatedAt)
		}
	}
}

func TestUpdatePatch(t *testing.T) {
	u := Update{Body: "b", UpdatedAt: testNow}
	p := u.Patch()
	if len(p.Set) != 2 || p.Set[FieldBody] != "b" || p.Set[FieldUpdatedAt] != testNow.UnixMilli() {
		t.Errorf("Set = %v", p.Set)
	}
	if len(p.Unset) != 0 {
		t.Errorf("omit should not unset anything, got %v", p.Unset)
	}

	u.Attachment = AttachmentChange{Op: AttachmentRemove}
	p = u.Patch()
	if _, ok := p.Set[FieldImage]; ok || len(p.Unset) != 1 || p.Unset[0] != FieldImage {
		t.Errorf("remove patch = %+v", p)
	}

	u.Attachment = AttachmentChange{Op: AttachmentSet, Image: EmbeddedImage{Encoding: EncodingBase64, Data: "d"}}
	p = u.Patch()
	img, ok := p.Set[FieldImage].(map[string]any)
	if !ok || img[FieldImageValue] != "d" || img[FieldImageType] != EncodingBase64 {
		t.Errorf("set patch image = %v", p.Set[FieldImage])
	}
}

func TestUpdateApplyTo(t *testing.T) {
	orig := Post{ID: "p", Body: "a", Attachment: &EmbeddedImage{Data: "x"}, CreatedAt: testNow}

	got := Update{Body: "b", UpdatedAt: testNow}.ApplyTo(orig)
	if got.Body != "b" || got.Attachment == nil || !got.Edited() || !got.CreatedAt.Equal(testNow) {
		t.Errorf("omit apply = %+v", got)
	}
	got = Update{Body: "b", UpdatedAt: testNow, Attachment: AttachmentChange{Op: AttachmentRemove}}.ApplyTo(orig)
	if got.Attachment != nil {
		t.Error("remove should drop the attachment")
	}
	if orig.Attachment == nil || orig.Body != "a" {
		t.Error("ApplyTo must not mutate its argument")
	}
}
