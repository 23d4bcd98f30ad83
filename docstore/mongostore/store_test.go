package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/eringen/microfeed/docstore"
)

func TestUpdateDoc(t *testing.T) {
	update := updateDoc(docstore.Patch{
		Set:   map[string]any{"tweet": "x", "updatedAt": int64(7)},
		Unset: []string{"image"},
	})
	if len(update) != 2 {
		t.Fatalf("update stages = %d, want 2", len(update))
	}
	if update[0].Key != "$set" {
		t.Errorf("first stage = %s, want $set", update[0].Key)
	}
	set := update[0].Value.(bson.M)
	if set["tweet"] != "x" || set["updatedAt"] != int64(7) {
		t.Errorf("unexpected $set: %v", set)
	}
	if update[1].Key != "$unset" {
		t.Errorf("second stage = %s, want $unset", update[1].Key)
	}
	unset := update[1].Value.(bson.M)
	if _, ok := unset["image"]; !ok {
		t.Errorf("$unset should name image: %v", unset)
	}
	if _, ok := set["image"]; ok {
		t.Error("a removed field must not appear in $set")
	}
}

func TestUpdateDocOmitsEmptyStages(t *testing.T) {
	if got := updateDoc(docstore.Patch{Set: map[string]any{"tweet": "x"}}); len(got) != 1 || got[0].Key != "$set" {
		t.Errorf("set-only patch = %v", got)
	}
	if got := updateDoc(docstore.Patch{Unset: []string{"image"}}); len(got) != 1 || got[0].Key != "$unset" {
		t.Errorf("unset-only patch = %v", got)
	}
	if got := updateDoc(docstore.Patch{}); len(got) != 0 {
		t.Errorf("empty patch = %v, want no stages", got)
	}
}

func TestIDFilter(t *testing.T) {
	oid := bson.NewObjectID()
	if got := idFilter(oid.Hex())["_id"]; got != oid {
		t.Errorf("idFilter(hex) = %v, want ObjectID", got)
	}
	if got := idFilter("user-1")["_id"]; got != "user-1" {
		t.Errorf("idFilter(string) = %v, want plain string", got)
	}
}

func TestToRecordNormalizes(t *testing.T) {
	oid := bson.NewObjectID()
	now := time.UnixMilli(1718000000000).UTC()
	rec := toRecord(bson.M{
		"_id":   oid,
		"tweet": "hi",
		"image": bson.D{{Key: "type", Value: "base64"}, {Key: "value", Value: "data:"}},
		"when":  bson.NewDateTimeFromTime(now),
	})
	if rec.ID != oid.Hex() {
		t.Errorf("ID = %q, want %q", rec.ID, oid.Hex())
	}
	if _, ok := rec.Fields["_id"]; ok {
		t.Error("_id must not be copied into fields")
	}
	img, ok := rec.Fields["image"].(map[string]any)
	if !ok {
		t.Fatalf("image type = %T, want map[string]any", rec.Fields["image"])
	}
	if img["type"] != "base64" {
		t.Errorf("image.type = %v", img["type"])
	}
	if w, ok := rec.Fields["when"].(time.Time); !ok || !w.Equal(now) {
		t.Errorf("when = %v, want %v", rec.Fields["when"], now)
	}
}

func TestDatabaseFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017", "microfeed"},
		{"mongodb://localhost:27017/feed", "feed"},
		{"mongodb+srv://cluster.example.net/social?retryWrites=true", "social"},
	}
	for _, tt := range tests {
		if got := databaseFromURI(tt.uri); got != tt.want {
			t.Errorf("databaseFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

// TestLiveRoundTrip runs against a real server when MICROFEED_TEST_MONGO_URI is set.
func TestLiveRoundTrip(t *testing.T) {
	uri := os.Getenv("MICROFEED_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MICROFEED_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, uri, "microfeed_test")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer func() {
		_ = s.db.Drop(ctx)
		s.Close()
	}()

	id, err := s.Create(ctx, "tweets", map[string]any{
		"tweet":     "hello",
		"userId":    "u1",
		"createdAt": int64(1),
		"image":     map[string]any{"type": "base64", "value": "data:"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Update(ctx, "tweets", id, docstore.Patch{Unset: []string{"image"}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := s.Get(ctx, "tweets", id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, ok := got.Fields["image"]; ok {
		t.Error("image should be removed")
	}
	if err := s.Delete(ctx, "tweets", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "tweets", id); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
