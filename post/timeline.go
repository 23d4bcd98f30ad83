package post

import (
	"encoding/json"
	"math"
	"time"

	"github.com/eringen/microfeed/docstore"
)

// FromRecord reads a stored record as a Post. Missing or mistyped fields
// come back as zero values rather than errors so one malformed document
// cannot hide the rest of a timeline.
func FromRecord(r docstore.Record) Post {
	p := Post{
		ID:         r.ID,
		AuthorID:   stringField(r.Fields, FieldAuthorID),
		AuthorName: stringField(r.Fields, FieldAuthorName),
		Body:       stringField(r.Fields, FieldBody),
	}
	if t, ok := timeField(r.Fields[FieldCreatedAt]); ok {
		p.CreatedAt = t
	}
	if t, ok := timeField(r.Fields[FieldUpdatedAt]); ok {
		p.UpdatedAt = &t
	}
	p.Attachment = imageField(r.Fields[FieldImage])
	return p
}

// Project maps records to posts, keeping their order.
func Project(records []docstore.Record) []Post {
	posts := make([]Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, FromRecord(r))
	}
	return posts
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// timeField accepts Unix milliseconds in any numeric form the stores
// return, or a time.Time from drivers with a native date type.
func timeField(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return time.UnixMilli(n), true
		}
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(math.Round(f))), true
	}
	f, ok := docstore.ToFloat(v)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(math.Round(f))), true
}

func imageField(v any) *EmbeddedImage {
	var enc, data string
	switch m := v.(type) {
	case map[string]any:
		enc, _ = m[FieldImageType].(string)
		data, _ = m[FieldImageValue].(string)
	case map[string]string:
		enc, data = m[FieldImageType], m[FieldImageValue]
	default:
		return nil
	}
	if data == "" {
		return nil
	}
	if enc == "" {
		enc = EncodingBase64
	}
	return &EmbeddedImage{Encoding: enc, Data: data}
}
