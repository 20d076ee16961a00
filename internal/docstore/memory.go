package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memDoc struct {
	data    []byte
	version int64
}

type docKey struct {
	collection string
	id         string
}

// Memory is an in-process Store. Documents are stored as JSON, so struct json tags decide
// field names. Transactions commit optimistically and retry when a read document changed.
type Memory struct {
	mu      sync.RWMutex
	docs    map[docKey]*memDoc
	version int64
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[docKey]*memDoc)}
}

type memDocument struct {
	id   string
	data []byte
}

func (d memDocument) ID() string { return d.id }

func (d memDocument) DataTo(v interface{}) error {
	if err := json.Unmarshal(d.data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.id, err)
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docKey{collection, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return memDocument{id: id, data: doc.data}, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(docKey{collection, id}, raw)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey{collection, id}
	doc, ok := m.docs[key]
	if !ok {
		return ErrNotFound
	}
	var current map[string]interface{}
	if err := json.Unmarshal(doc.data, &current); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	for path, value := range fields {
		current[path] = value
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	m.put(key, raw)
	return nil
}

// put must be called with mu held for writing.
func (m *Memory) put(key docKey, raw []byte) {
	m.version++
	m.docs[key] = &memDoc{data: raw, version: m.version}
}

func (m *Memory) NewID(string) string { return uuid.NewString() }

func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid filter on %s: %w", f.Path, err)
		}
		filters[i] = Filter{Path: f.Path, Value: v}
	}

	type row struct {
		id     string
		data   []byte
		fields map[string]interface{}
	}

	m.mu.RLock()
	var rows []row
	for key, doc := range m.docs {
		if key.collection != q.Collection {
			continue
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(doc.data, &fields); err != nil {
			continue
		}
		match := true
		for _, f := range filters {
			if !reflect.DeepEqual(fields[f.Path], f.Value) {
				match = false
				break
			}
		}
		if match {
			rows = append(rows, row{id: key.id, data: doc.data, fields: fields})
		}
	}
	m.mu.RUnlock()

	// Document id is the implicit tiebreaker, as in Firestore.
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	if q.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			c := compareValues(rows[i].fields[q.OrderBy], rows[j].fields[q.OrderBy])
			if q.Direction == Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = memDocument{id: r.id, data: r.data}
	}
	return docs, nil
}

func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// compareValues orders decoded JSON values. Missing values sort first; RFC 3339 strings
// compare as instants.
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			at, aerr := time.Parse(time.RFC3339Nano, av)
			bt, berr := time.Parse(time.RFC3339Nano, bv)
			if aerr == nil && berr == nil {
				return at.Compare(bt)
			}
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return 0
}

type pendingWrite struct {
	key    docKey
	data   []byte
	create bool
}

type memTx struct {
	m      *Memory
	reads  map[docKey]int64
	writes []pendingWrite
}

func (tx *memTx) Get(collection, id string) (Document, error) {
	if len(tx.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	key := docKey{collection, id}

	tx.m.mu.RLock()
	doc, ok := tx.m.docs[key]
	var version int64
	var data []byte
	if ok {
		version, data = doc.version, doc.data
	}
	tx.m.mu.RUnlock()

	tx.reads[key] = version
	if !ok {
		return nil, ErrNotFound
	}
	return memDocument{id: id, data: data}, nil
}

func (tx *memTx) Set(collection, id string, data interface{}) error {
	return tx.buffer(collection, id, data, false)
}

func (tx *memTx) Create(collection, id string, data interface{}) error {
	return tx.buffer(collection, id, data, true)
}

func (tx *memTx) buffer(collection, id string, data interface{}, create bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}
	tx.writes = append(tx.writes, pendingWrite{key: docKey{collection, id}, data: raw, create: create})
	return nil
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memTx{m: m, reads: make(map[docKey]int64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		committed, err := m.commit(tx)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrConflict, MaxAttempts)
}

// commit applies the buffered writes when none of the read documents changed.
// It reports false when the transaction has to be retried.
func (m *Memory) commit(tx *memTx) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, version := range tx.reads {
		var current int64
		if doc, ok := m.docs[key]; ok {
			current = doc.version
		}
		if current != version {
			return false, nil
		}
	}
	for _, w := range tx.writes {
		if _, exists := m.docs[w.key]; exists && w.create {
			return false, fmt.Errorf("%w: %s/%s", ErrAlreadyExists, w.key.collection, w.key.id)
		}
	}
	for _, w := range tx.writes {
		m.put(w.key, w.data)
	}
	return true, nil
}
