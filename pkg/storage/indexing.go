package storage

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/vjranagit/homeenergy/pkg/types"
)

// CollectionLabel selects documents by collection name in FindDocuments
const CollectionLabel = "__collection__"

// IndexedFields are the document fields FindDocuments can select on
var IndexedFields = []string{"sensorId", "source", "measurementType", "day", "year"}

// DocRef locates a document in a snapshot
type DocRef struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

// Index is an inverted index over the string fields of a snapshot's
// documents. It is not safe for concurrent mutation.
type Index struct {
	// Maps document fingerprint to its location
	docs map[uint64]DocRef
	// Inverted index: field name -> field value -> document fingerprints
	labelIndex map[string]map[string][]uint64
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		docs:       make(map[uint64]DocRef),
		labelIndex: make(map[string]map[string][]uint64),
	}
}

// BuildIndex indexes every document of c
func BuildIndex(c types.Collections) *Index {
	idx := NewIndex()
	for _, name := range c.Names() {
		for key, doc := range c.Collection(name) {
			idx.AddDocument(name, key, doc)
		}
	}
	return idx
}

// AddDocument adds a document to the index and returns its fingerprint
func (idx *Index) AddDocument(collection, key string, doc types.Document) uint64 {
	fingerprint := calculateFingerprint(collection, key)

	if _, exists := idx.docs[fingerprint]; exists {
		return fingerprint
	}
	idx.docs[fingerprint] = DocRef{Collection: collection, Key: key}

	idx.addLabel(CollectionLabel, collection, fingerprint)
	for _, field := range IndexedFields {
		value, ok := doc[field]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			idx.addLabel(field, v, fingerprint)
		case float64, int, int64:
			idx.addLabel(field, fmt.Sprint(v), fingerprint)
		}
	}

	return fingerprint
}

func (idx *Index) addLabel(name, value string, fingerprint uint64) {
	if idx.labelIndex[name] == nil {
		idx.labelIndex[name] = make(map[string][]uint64)
	}
	idx.labelIndex[name][value] = append(idx.labelIndex[name][value], fingerprint)
}

// FindDocuments returns the documents matching every selector, ordered by
// collection and key. No selectors selects everything.
func (idx *Index) FindDocuments(selectors map[string]string) []DocRef {
	var ids []uint64
	if len(selectors) == 0 {
		ids = make([]uint64, 0, len(idx.docs))
		for id := range idx.docs {
			ids = append(ids, id)
		}
	} else {
		first := true
		for name, value := range selectors {
			matches, ok := idx.labelIndex[name][value]
			if !ok {
				return nil
			}
			if first {
				ids = append([]uint64(nil), matches...)
				first = false
			} else {
				ids = intersect(ids, matches)
			}
			if len(ids) == 0 {
				return nil
			}
		}
	}

	refs := make([]DocRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, idx.docs[id])
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Collection != refs[j].Collection {
			return refs[i].Collection < refs[j].Collection
		}
		return refs[i].Key < refs[j].Key
	})
	return refs
}

// DocumentCount returns the number of indexed documents
func (idx *Index) DocumentCount() int {
	return len(idx.docs)
}

func calculateFingerprint(collection, key string) uint64 {
	d := xxhash.New()
	d.WriteString(collection)
	d.Write([]byte{0})
	d.WriteString(key)
	return d.Sum64()
}

// intersect finds common elements in two slices
func intersect(a, b []uint64) []uint64 {
	a = append([]uint64(nil), a...)
	b = append([]uint64(nil), b...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })

	result := make([]uint64, 0)
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			i++
		} else if a[i] > b[j] {
			j++
		} else {
			result = append(result, a[i])
			i++
			j++
		}
	}

	return result
}
