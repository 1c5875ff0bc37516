package ddp

import (
	"sync"

	"github.com/vjranagit/homeenergy/pkg/types"
)

// mirror applies added/changed/removed messages to a local copy of the
// published collections. Documents are replaced, never edited in place, so
// snapshots handed out earlier stay untouched.
type mirror struct {
	mu   sync.Mutex
	data map[string]map[string]types.Document
}

func newMirror() *mirror {
	return &mirror{data: make(map[string]map[string]types.Document)}
}

func (m *mirror) added(collection, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := make(types.Document, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	doc["_id"] = id
	m.put(collection, id, doc)
}

func (m *mirror) changed(collection, id string, fields map[string]any, cleared []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var doc types.Document
	if existing, ok := m.data[collection][id]; ok {
		doc = existing.Clone()
	} else {
		doc = types.Document{"_id": id}
	}
	for k, v := range fields {
		doc[k] = v
	}
	for _, k := range cleared {
		delete(doc, k)
	}
	m.put(collection, id, doc)
}

func (m *mirror) removed(collection, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.data[collection]
	if !ok {
		return
	}
	delete(docs, id)
	if len(docs) == 0 {
		delete(m.data, collection)
	}
}

func (m *mirror) put(collection, id string, doc types.Document) {
	docs, ok := m.data[collection]
	if !ok {
		docs = make(map[string]types.Document)
		m.data[collection] = docs
	}
	docs[id] = doc
}

func (m *mirror) snapshot() types.Collections {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.NewCollections(m.data)
}
