package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"linkup/apperr"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemRecords is the in-memory backend, used by tests and by dev mode. It
// implements the same rev-guarded write protocol as the mongo backend so
// the engines exercise identical conflict paths against both.
type MemRecords struct {
	mu   sync.RWMutex
	data map[string]map[string]Document
	hub  *Hub
}

func NewMemRecords() *MemRecords {
	return &MemRecords{
		data: make(map[string]map[string]Document),
		hub:  NewHub(),
	}
}

func (m *MemRecords) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("%s/%s does not exist", collection, id))
	}
	return cloneDoc(doc), nil
}

func (m *MemRecords) Create(ctx context.Context, collection, id string, v interface{}) error {
	doc, err := Encode(v)
	if err != nil {
		return apperr.Internal("encode record", err)
	}

	m.mu.Lock()
	if _, exists := m.data[collection][id]; exists {
		m.mu.Unlock()
		return apperr.Conflict(fmt.Sprintf("%s/%s already exists", collection, id))
	}
	doc["_id"] = id
	doc["rev"] = int64(1)
	m.put(collection, id, doc)
	m.mu.Unlock()

	m.hub.Publish(Event{Collection: collection, ID: id})
	return nil
}

func (m *MemRecords) Set(ctx context.Context, collection, id string, fields Document, merge bool) error {
	m.mu.Lock()
	cur, exists := m.data[collection][id]

	var next Document
	if merge && exists {
		next = cloneDoc(cur)
	} else {
		next = Document{}
	}
	for k, v := range fields {
		next[k] = v
	}
	next["_id"] = id
	if exists {
		next["rev"] = docRev(cur) + 1
	} else {
		next["rev"] = int64(1)
	}
	m.put(collection, id, next)
	m.mu.Unlock()

	m.hub.Publish(Event{Collection: collection, ID: id})
	return nil
}

func (m *MemRecords) Update(ctx context.Context, collection, id string, mutate func(Document) (Document, error)) error {
	for attempt := 0; attempt < updateTries; attempt++ {
		cur, err := m.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		rev := docRev(cur)

		next, err := mutate(cur)
		if err != nil {
			return err
		}

		if m.commit(collection, id, rev, next) {
			m.hub.Publish(Event{Collection: collection, ID: id})
			return nil
		}
	}
	return apperr.Conflict(fmt.Sprintf("update of %s/%s kept losing the write race", collection, id))
}

func (m *MemRecords) commit(collection, id string, rev int64, next Document) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[collection][id]
	if !ok || docRev(cur) != rev {
		return false
	}
	next = cloneDoc(next)
	next["_id"] = id
	next["rev"] = rev + 1
	m.put(collection, id, next)
	return true
}

func (m *MemRecords) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	if _, ok := m.data[collection][id]; !ok {
		m.mu.Unlock()
		return apperr.NotFound(fmt.Sprintf("%s/%s does not exist", collection, id))
	}
	delete(m.data[collection], id)
	m.mu.Unlock()

	m.hub.Publish(Event{Collection: collection, ID: id, Deleted: true})
	return nil
}

func (m *MemRecords) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := []Document{}
	for _, doc := range m.data[collection] {
		if matches(doc, q) {
			results = append(results, cloneDoc(doc))
		}
	}
	return results, nil
}

func (m *MemRecords) Watch(collection string) (<-chan Event, func()) {
	return m.hub.Watch(collection)
}

func (m *MemRecords) put(collection, id string, doc Document) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]Document)
	}
	m.data[collection][id] = doc
}

func matches(doc Document, q Query) bool {
	for field, want := range q.Eq {
		if !reflect.DeepEqual(doc[field], want) {
			return false
		}
	}

	for field, want := range q.Contains {
		arr, ok := doc[field].(primitive.A)
		if !ok {
			return false
		}
		found := false
		for _, item := range arr {
			if reflect.DeepEqual(item, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
