package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SubscriberID identifies the chat session that owns a number. Serialized as
// a plain JSON number in the state file.
type SubscriberID int64

// Mappings is the number -> subscriber table. Iteration order is insertion
// order; the suffix matcher's tie-breaking is defined over that order, so the
// JSON round trip has to preserve it too (a plain map would randomize it).
type Mappings struct {
	order    []string
	byNumber map[string]SubscriberID
}

// NewMappings returns an empty table.
func NewMappings() *Mappings {
	return &Mappings{byNumber: make(map[string]SubscriberID)}
}

// Get looks up the subscriber for an exact normalized number key.
func (m *Mappings) Get(number string) (SubscriberID, bool) {
	id, ok := m.byNumber[number]
	return id, ok
}

// Put records number -> id. Re-allocating an existing number overwrites the
// owner in place and keeps the number's original position.
func (m *Mappings) Put(number string, id SubscriberID) {
	if _, exists := m.byNumber[number]; !exists {
		m.order = append(m.order, number)
	}
	m.byNumber[number] = id
}

// Len reports the number of stored mappings.
func (m *Mappings) Len() int {
	return len(m.order)
}

// Numbers returns the stored keys in insertion order.
func (m *Mappings) Numbers() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// NumbersFor returns the numbers currently owned by id, in insertion order.
func (m *Mappings) NumbersFor(id SubscriberID) []string {
	var out []string
	for _, n := range m.order {
		if m.byNumber[n] == id {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns an independent copy.
func (m *Mappings) Clone() *Mappings {
	c := NewMappings()
	for _, n := range m.order {
		c.Put(n, m.byNumber[n])
	}
	return c
}

// Snapshot lets a bare Mappings value stand in wherever a snapshot source is
// expected, mainly in tests.
func (m *Mappings) Snapshot() *Mappings {
	return m
}

// MarshalJSON writes the table as a single JSON object in insertion order.
func (m *Mappings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", m.byNumber[n])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object key by key, preserving document order.
func (m *Mappings) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("mappings: expected JSON object, got %v", tok)
	}
	out := NewMappings()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("mappings: expected string key, got %v", keyTok)
		}
		var id int64
		if err := dec.Decode(&id); err != nil {
			return fmt.Errorf("mappings: value for %q: %w", key, err)
		}
		out.Put(key, SubscriberID(id))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = *out
	return nil
}
