package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It is used by tests and by the "memory"
// driver for throwaway runs; nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	colls map[string]*memCollection
}

type memCollection struct {
	order []string
	docs  map[string]map[string]any
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{colls: make(map[string]*memCollection)}
}

func (m *Memory) coll(name string) *memCollection {
	c, ok := m.colls[name]
	if !ok {
		c = &memCollection{docs: make(map[string]map[string]any)}
		m.colls[name] = c
	}
	return c
}

// Create implements Store.
func (m *Memory) Create(_ context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	c.docs[id] = cloneFields(fields)
	c.order = append(c.order, id)
	return id, nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.colls[collection]
	if !ok {
		return Record{}, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{ID: id, Fields: cloneFields(doc)}, nil
}

// Query implements Store.
func (m *Memory) Query(_ context.Context, collection string, q Query) ([]Record, error) {
	m.mu.RLock()
	c, ok := m.colls[collection]
	if !ok {
		m.mu.RUnlock()
		return nil, nil
	}
	var out []Record
	for _, id := range c.order {
		doc := c.docs[id]
		if !matches(doc, q.Where) {
			continue
		}
		out = append(out, Record{ID: id, Fields: cloneFields(doc)})
	}
	m.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			cmp := Compare(out[i].Fields[q.OrderBy], out[j].Fields[q.OrderBy])
			if q.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, collection, id string, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[collection]
	if !ok {
		return ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	p.Set = cloneFields(p.Set)
	p.Apply(doc)
	return nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	doc, ok := c.docs[id]
	if !ok {
		c.docs[id] = cloneFields(fields)
		c.order = append(c.order, id)
		return nil
	}
	for k, v := range cloneFields(fields) {
		doc[k] = v
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func matches(doc map[string]any, where map[string]any) bool {
	for k, want := range where {
		got, ok := doc[k]
		if !ok || Compare(got, want) != 0 {
			return false
		}
	}
	return true
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if nested, ok := v.(map[string]any); ok {
			v = cloneFields(nested)
		}
		out[k] = v
	}
	return out
}

// Compare orders two field values. Numbers compare numerically across Go
// numeric types, strings lexically, times chronologically. Values of
// different kinds order nil < numbers < strings < times < everything else.
func Compare(a, b any) int {
	ka, kb := kindRank(a), kindRank(b)
	if ka != kb {
		return ka - kb
	}
	switch ka {
	case 1:
		x, _ := ToFloat(a)
		y, _ := ToFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 2:
		x, y := a.(string), b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 3:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return 0
}

func kindRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := ToFloat(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case time.Time:
		return 3
	}
	return 4
}

// ToFloat converts the numeric representations a backend may return
// (Go integers, floats, json.Number) to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
