package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"flowdistributor/internal/docstore"
)

// LoadFile seeds the store from a JSON snapshot file.
func (s *Store) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memory store: read snapshot: %w", err)
	}
	return s.Load(bytes.NewReader(raw))
}

// Load seeds the store from a JSON object keyed by collection name. Each
// collection is either an object keyed by document id or an array of
// objects carrying an "id" field. Numbers are kept as json.Number.
func (s *Store) Load(r io.Reader) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var root map[string]json.RawMessage
	if err := dec.Decode(&root); err != nil {
		return fmt.Errorf("memory store: decode snapshot: %w", err)
	}
	for collection, raw := range root {
		docs, err := decodeCollection(raw)
		if err != nil {
			return fmt.Errorf("memory store: collection %s: %w", collection, err)
		}
		s.Seed(collection, docs)
	}
	return nil
}

func decodeCollection(raw json.RawMessage) ([]docstore.Document, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	switch trimmed[0] {
	case '{':
		var byID map[string]map[string]any
		if err := dec.Decode(&byID); err != nil {
			return nil, err
		}
		docs := make([]docstore.Document, 0, len(byID))
		for id, data := range byID {
			docs = append(docs, docstore.Document{ID: id, Data: data})
		}
		return docs, nil
	case '[':
		var list []map[string]any
		if err := dec.Decode(&list); err != nil {
			return nil, err
		}
		docs := make([]docstore.Document, 0, len(list))
		for i, data := range list {
			id, _ := data["id"].(string)
			if id == "" {
				id = fmt.Sprintf("doc-%04d", i)
			}
			delete(data, "id")
			docs = append(docs, docstore.Document{ID: id, Data: data})
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("unexpected json %q", trimmed[:1])
	}
}
