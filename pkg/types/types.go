package types

import "encoding/json"

// Sources known to the aggregate publications.
const (
	SourceReading  = "reading"
	SourceForecast = "forecast"
)

// ChartSpec identifies the measurements rendered by one chart
type ChartSpec struct {
	SensorID        string `json:"sensorId"`
	Source          string `json:"source"`
	Day             string `json:"day"`
	MeasurementType string `json:"measurementType"`
}

// Document is a replicated remote document
type Document map[string]any

// ID returns the document's _id, or "" when it has none
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// IsEmpty reports whether d is the absent sentinel
func (d Document) IsEmpty() bool {
	return len(d) == 0
}

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Collections is an immutable snapshot of every replicated collection,
// keyed by collection name and then by document key.
type Collections struct {
	data map[string]map[string]Document
}

// NewCollections builds a snapshot from raw data. The outer two levels are
// copied so later changes to data are not visible through the snapshot.
func NewCollections(data map[string]map[string]Document) Collections {
	c := Collections{data: make(map[string]map[string]Document, len(data))}
	for name, docs := range data {
		copied := make(map[string]Document, len(docs))
		for key, doc := range docs {
			copied[key] = doc
		}
		c.data[name] = copied
	}
	return c
}

// Get returns the document stored under key in the named collection
func (c Collections) Get(collection, key string) (Document, bool) {
	docs, ok := c.data[collection]
	if !ok {
		return nil, false
	}
	doc, ok := docs[key]
	return doc, ok
}

// Names returns the collection names present in the snapshot
func (c Collections) Names() []string {
	names := make([]string, 0, len(c.data))
	for name := range c.data {
		names = append(names, name)
	}
	return names
}

// Collection returns a copy of one collection's documents
func (c Collections) Collection(name string) map[string]Document {
	docs := c.data[name]
	out := make(map[string]Document, len(docs))
	for k, v := range docs {
		out[k] = v
	}
	return out
}

// Len returns the number of documents across all collections
func (c Collections) Len() int {
	n := 0
	for _, docs := range c.data {
		n += len(docs)
	}
	return n
}

// IsEmpty reports whether the snapshot holds no collections
func (c Collections) IsEmpty() bool {
	return len(c.data) == 0
}

// Raw returns a copy of the snapshot as plain maps
func (c Collections) Raw() map[string]map[string]Document {
	out := make(map[string]map[string]Document, len(c.data))
	for name := range c.data {
		out[name] = c.Collection(name)
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (c Collections) MarshalJSON() ([]byte, error) {
	if c.data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.data)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Collections) UnmarshalJSON(b []byte) error {
	var data map[string]map[string]Document
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	*c = NewCollections(data)
	return nil
}

// NavigationEntry records one visited view
type NavigationEntry struct {
	View      string `json:"view"`
	Timestamp int64  `json:"timestamp"`
}
