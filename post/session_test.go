package post

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eringen/microfeed/docstore"
)

func storedPost(t *testing.T, store *docstore.Memory, fields map[string]any) Post {
	t.Helper()
	id, err := store.Create(context.Background(), Collection, fields)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rec, err := store.Get(context.Background(), Collection, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return FromRecord(rec)
}

func ownedFields(body string) map[string]any {
	return map[string]any{
		FieldBody:       body,
		FieldAuthorID:   "u1",
		FieldAuthorName: "Alice",
		FieldCreatedAt:  testNow.UnixMilli(),
	}
}

type countingUpdater struct {
	calls   int
	patches []docstore.Patch
	hook    func()
}

func (u *countingUpdater) Update(_ context.Context, _, _ string, p docstore.Patch) error {
	u.calls++
	u.patches = append(u.patches, p)
	if u.hook != nil {
		u.hook()
	}
	return nil
}

var owner = &Identity{ID: "u1", DisplayName: "Alice"}

func TestBeginEditNonOwnerStaysViewing(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})

	for _, id := range []*Identity{nil, {ID: "u2"}, {ID: ""}} {
		if err := s.BeginEdit(id); !errors.Is(err, ErrNotOwner) {
			t.Errorf("BeginEdit(%v) err = %v, want ErrNotOwner", id, err)
		}
		if s.Mode() != Viewing {
			t.Errorf("mode = %v, want viewing", s.Mode())
		}
	}
}

func TestCommitTextEdit(t *testing.T) {
	store := docstore.NewMemory()
	p := storedPost(t, store, ownedFields("a"))
	s := NewEditSession(p)

	if err := s.BeginEdit(owner); err != nil {
		t.Fatalf("BeginEdit failed: %v", err)
	}
	if s.WorkingBody() != "a" {
		t.Errorf("working body = %q, want original", s.WorkingBody())
	}
	s.SetBody("b")
	later := testNow.Add(time.Minute)
	wrote, err := Commit(context.Background(), s, owner, store, later)
	if err != nil || !wrote {
		t.Fatalf("Commit = %v, %v", wrote, err)
	}

	rec, _ := store.Get(context.Background(), Collection, p.ID)
	if rec.Fields[FieldBody] != "b" {
		t.Errorf("tweet = %v, want b", rec.Fields[FieldBody])
	}
	if rec.Fields[FieldUpdatedAt] != later.UnixMilli() {
		t.Errorf("updatedAt = %v, want %d", rec.Fields[FieldUpdatedAt], later.UnixMilli())
	}
	if rec.Fields[FieldCreatedAt] != testNow.UnixMilli() {
		t.Error("createdAt must not change")
	}
	if _, ok := rec.Fields[FieldImage]; ok {
		t.Error("image key must stay absent")
	}
	if s.Mode() != Viewing || s.Original().Body != "b" || !s.Original().Edited() {
		t.Errorf("session after commit: mode %v original %+v", s.Mode(), s.Original())
	}
}

func TestCommitNoChangeMakesNoStoreCall(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "same"})
	s.BeginEdit(owner)
	s.SetBody("same")

	u := &countingUpdater{}
	wrote, err := Commit(context.Background(), s, owner, u, testNow)
	if err != nil || wrote {
		t.Fatalf("Commit = %v, %v; want false, nil", wrote, err)
	}
	if u.calls != 0 {
		t.Errorf("store called %d times, want 0", u.calls)
	}
	if s.Mode() != Viewing || s.Original().Edited() {
		t.Error("no-op commit should return to viewing without an updatedAt")
	}
}

func TestCommitClearWithoutImageIsNoChange(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "t"})
	s.BeginEdit(owner)
	s.ClearAttachment()

	u := &countingUpdater{}
	if wrote, _ := Commit(context.Background(), s, owner, u, testNow); wrote || u.calls != 0 {
		t.Errorf("wrote = %v calls = %d, want nothing written", wrote, u.calls)
	}
}

func TestCommitRemovesImage(t *testing.T) {
	store := docstore.NewMemory()
	fields := ownedFields("pic")
	fields[FieldImage] = map[string]any{FieldImageType: EncodingBase64, FieldImageValue: "data:image/png;base64,AAAA"}
	p := storedPost(t, store, fields)
	if !p.HasAttachment() {
		t.Fatal("fixture should carry an image")
	}

	s := NewEditSession(p)
	s.BeginEdit(owner)
	s.ClearAttachment()
	if _, err := Commit(context.Background(), s, owner, store, testNow); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	rec, _ := store.Get(context.Background(), Collection, p.ID)
	if _, ok := rec.Fields[FieldImage]; ok {
		t.Error("image key should be removed from the stored document")
	}
	if s.Original().HasAttachment() {
		t.Error("session original should have no image after removal")
	}
}

func TestKeepAttachmentWithdrawsRemoval(t *testing.T) {
	fields := ownedFields("pic")
	fields[FieldImage] = map[string]any{FieldImageType: EncodingBase64, FieldImageValue: "data:image/png;base64,AAAA"}
	p := storedPost(t, docstore.NewMemory(), fields)

	s := NewEditSession(p)
	if err := s.KeepAttachment(); !errors.Is(err, ErrNotEditing) {
		t.Errorf("KeepAttachment while viewing err = %v, want ErrNotEditing", err)
	}
	s.BeginEdit(owner)
	s.ClearAttachment()
	if err := s.KeepAttachment(); err != nil {
		t.Fatalf("KeepAttachment failed: %v", err)
	}
	if d := s.WorkingAttachment().Disposition; d != Unset {
		t.Errorf("disposition = %v, want unset", d)
	}
	s.SetBody("new text")

	u := &countingUpdater{}
	if _, err := Commit(context.Background(), s, owner, u, testNow); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if u.calls != 1 {
		t.Fatalf("calls = %d, want 1", u.calls)
	}
	if _, ok := u.patches[0].Set[FieldImage]; ok {
		t.Error("patch must not set the image")
	}
	for _, k := range u.patches[0].Unset {
		if k == FieldImage {
			t.Error("patch must not remove the image")
		}
	}
}

func TestCommitReplacesImage(t *testing.T) {
	store := docstore.NewMemory()
	p := storedPost(t, store, ownedFields("pic"))

	s := NewEditSession(p)
	s.BeginEdit(owner)
	if err := s.ReplaceAttachment(BytesFile{Filename: "n.png", Content: pngOfSize(t, 300)}); err != nil {
		t.Fatalf("ReplaceAttachment failed: %v", err)
	}
	if _, err := Commit(context.Background(), s, owner, store, testNow); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	rec, _ := store.Get(context.Background(), Collection, p.ID)
	img, ok := rec.Fields[FieldImage].(map[string]any)
	if !ok || img[FieldImageType] != EncodingBase64 {
		t.Errorf("image = %v", rec.Fields[FieldImage])
	}
}

func TestCommitRejectsInvalidBody(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	s.BeginEdit(owner)
	s.SetBody("")

	u := &countingUpdater{}
	if _, err := Commit(context.Background(), s, owner, u, testNow); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("err = %v, want ErrEmptyBody", err)
	}
	if u.calls != 0 || s.Mode() != Editing {
		t.Errorf("calls = %d mode = %v, want 0 and editing", u.calls, s.Mode())
	}
}

func TestCommitOwnershipRecheckedAtCommit(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	s.BeginEdit(owner)
	s.SetBody("y")

	u := &countingUpdater{}
	if _, err := Commit(context.Background(), s, &Identity{ID: "u2"}, u, testNow); !errors.Is(err, ErrNotOwner) {
		t.Errorf("err = %v, want ErrNotOwner", err)
	}
	if u.calls != 0 {
		t.Error("non-owner commit must not reach the store")
	}
}

func TestCommitReentrantIsSingleWrite(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	s.BeginEdit(owner)
	s.SetBody("y")

	u := &countingUpdater{}
	var nestedErr error
	u.hook = func() {
		u.hook = nil
		_, nestedErr = Commit(context.Background(), s, owner, u, testNow)
	}
	if _, err := Commit(context.Background(), s, owner, u, testNow); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if !errors.Is(nestedErr, ErrInFlight) {
		t.Errorf("nested commit err = %v, want ErrInFlight", nestedErr)
	}
	if u.calls != 1 {
		t.Errorf("store called %d times, want 1", u.calls)
	}
}

func TestCommitFailureReturnsToEditing(t *testing.T) {
	store := failingStore{Memory: docstore.NewMemory(), err: errors.New("offline")}
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	s.BeginEdit(owner)
	s.SetBody("y")

	_, err := Commit(context.Background(), s, owner, store, testNow)
	if !IsStore(err) {
		t.Fatalf("err = %v, want StoreError", err)
	}
	if s.Mode() != Editing || s.WorkingBody() != "y" {
		t.Errorf("mode = %v body = %q, want editing with y", s.Mode(), s.WorkingBody())
	}
	if s.Original().Body != "x" {
		t.Error("original must be untouched after a failed write")
	}
}

func TestCancel(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	if err := s.Cancel(); !errors.Is(err, ErrNotEditing) {
		t.Errorf("Cancel while viewing err = %v", err)
	}
	s.BeginEdit(owner)
	s.SetBody("changed")
	s.ClearAttachment()
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if s.Mode() != Viewing || s.WorkingBody() != "" || s.WorkingAttachment().Disposition != Unset {
		t.Error("Cancel should discard the working copy")
	}

	s.BeginEdit(owner)
	s.SetBody("y")
	s.BeginCommit(owner, testNow)
	if err := s.Cancel(); !errors.Is(err, ErrInFlight) {
		t.Errorf("Cancel while committing err = %v, want ErrInFlight", err)
	}
}

func TestReplaceAttachmentTooLargeKeepsWorkingState(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	s.BeginEdit(owner)
	s.ClearAttachment()

	err := s.ReplaceAttachment(BytesFile{Filename: "big.png", Content: pngOfSize(t, MaxAttachmentBytes+1)})
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("err = %v, want ErrSizeExceeded", err)
	}
	if s.WorkingAttachment().Disposition != Cleared {
		t.Error("rejected file must not change the working attachment")
	}
}

func TestDelete(t *testing.T) {
	store := docstore.NewMemory()
	p := storedPost(t, store, ownedFields("bye"))

	s := NewEditSession(p)
	if err := Delete(context.Background(), s, owner, false, store); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("unconfirmed err = %v", err)
	}
	if err := Delete(context.Background(), s, &Identity{ID: "u2"}, true, store); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner err = %v", err)
	}
	if _, err := store.Get(context.Background(), Collection, p.ID); err != nil {
		t.Fatal("post should survive refused deletes")
	}

	if err := Delete(context.Background(), s, owner, true, store); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Mode() != Deleted {
		t.Errorf("mode = %v, want deleted", s.Mode())
	}
	if _, err := store.Get(context.Background(), Collection, p.ID); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
}

func TestDeleteFailureKeepsPostVisible(t *testing.T) {
	store := failingStore{Memory: docstore.NewMemory(), err: errors.New("offline")}
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})

	if err := Delete(context.Background(), s, owner, true, store); !IsStore(err) {
		t.Fatalf("err = %v, want StoreError", err)
	}
	if s.Mode() != Viewing {
		t.Errorf("mode = %v, want viewing", s.Mode())
	}
}

func TestDeleteWhileEditingRefused(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	s.BeginEdit(owner)
	if err := s.BeginDelete(owner, true); !errors.Is(err, ErrNotViewing) {
		t.Errorf("err = %v, want ErrNotViewing", err)
	}
}

func TestRefreshOnlyWhileViewing(t *testing.T) {
	s := NewEditSession(Post{ID: "p1", AuthorID: "u1", Body: "x"})
	if err := s.Refresh(Post{ID: "p1", AuthorID: "u1", Body: "remote"}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	s.BeginEdit(owner)
	if err := s.Refresh(Post{ID: "p1", AuthorID: "u1", Body: "again"}); !errors.Is(err, ErrNotViewing) {
		t.Errorf("Refresh while editing err = %v", err)
	}
	if s.Original().Body != "remote" {
		t.Errorf("original = %q, want remote", s.Original().Body)
	}
}
