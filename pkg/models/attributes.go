package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Attributes is an insertion-ordered map of custom contact attributes.
type Attributes struct {
	keys   []string
	values map[string]Value
}

func NewAttributes() Attributes {
	return Attributes{values: make(map[string]Value)}
}

// Set adds or replaces key. Replacing keeps the original position.
func (a *Attributes) Set(key string, v Value) {
	if a.values == nil {
		a.values = make(map[string]Value)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

func (a Attributes) Get(key string) (Value, bool) {
	v, ok := a.values[key]
	return v, ok
}

func (a *Attributes) Delete(key string) {
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
}

func (a Attributes) Len() int { return len(a.keys) }

func (a Attributes) IsZero() bool { return len(a.keys) == 0 }

func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Range calls fn for each attribute in insertion order until fn returns false.
func (a Attributes) Range(fn func(key string, v Value) bool) {
	for _, k := range a.keys {
		if !fn(k, a.values[k]) {
			return
		}
	}
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := a.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	out := NewAttributes()
	if string(bytes.TrimSpace(data)) == "null" {
		*a = out
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("attributes: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("attributes: expected key, got %v", tok)
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("attribute %q: %w", key, err)
		}
		out.Set(key, v)
	}

	*a = out
	return nil
}

func (a Attributes) MarshalBSON() ([]byte, error) {
	doc := make(bson.D, 0, len(a.keys))
	for _, k := range a.keys {
		doc = append(doc, bson.E{Key: k, Value: a.values[k]})
	}
	return bson.Marshal(doc)
}

func (a *Attributes) UnmarshalBSON(data []byte) error {
	elems, err := bson.Raw(data).Elements()
	if err != nil {
		return err
	}

	out := NewAttributes()
	for _, e := range elems {
		v, err := valueFromRaw(e.Value())
		if err != nil {
			return fmt.Errorf("attribute %q: %w", e.Key(), err)
		}
		out.Set(e.Key(), v)
	}

	*a = out
	return nil
}
