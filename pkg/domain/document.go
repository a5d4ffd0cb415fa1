package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
)

// Reserved document keys.
const (
	keyFlow = "flow"
	keySlug = "slug"
)

// Attribute is one opaque subject field (name, title, company, phone, ...).
type Attribute struct {
	Key   string
	Value json.RawMessage
}

// Attributes is the ordered, uninterpreted set of subject fields of a document.
type Attributes []Attribute

// Lookup returns the raw value of key.
func (a Attributes) Lookup(key string) (json.RawMessage, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return nil, false
}

// String returns the value of key when it holds a JSON string, "" otherwise.
func (a Attributes) String(key string) string {
	raw, ok := a.Lookup(key)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Map decodes the attributes into a generic map.
func (a Attributes) Map() map[string]any {
	m := make(map[string]any, len(a))
	for _, attr := range a {
		var v any
		if err := json.Unmarshal(attr.Value, &v); err == nil {
			m[attr.Key] = v
		}
	}
	return m
}

// FlowDocument is the persisted unit for one lead.
type FlowDocument struct {
	// Identity is assigned by the caller and never stored inside the body.
	Identity string

	// Subject holds passthrough attributes in document order.
	Subject Attributes

	// Flow is nil when the document carries no call flow.
	Flow *FlowGraph
}

// ParseDocument decodes a stored body. Any embedded "slug" is dropped: the
// identity travels out-of-band as the storage key.
func ParseDocument(identity string, data []byte) (*FlowDocument, error) {
	doc := &FlowDocument{Identity: identity}

	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}
		switch k {
		case keySlug:
			return nil
		case keyFlow:
			if dataType != jsonparser.Object {
				return nil
			}
			var g FlowGraph
			if err := g.UnmarshalJSON(value); err != nil {
				return err
			}
			doc.Flow = &g
			return nil
		}

		raw := value
		if dataType == jsonparser.String {
			// jsonparser strips the quotes of string values.
			raw = append(append([]byte{'"'}, value...), '"')
		}
		doc.Subject = append(doc.Subject, Attribute{Key: k, Value: append(json.RawMessage(nil), raw...)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid flow document %q: %w", identity, err)
	}
	return doc, nil
}

// MarshalJSON writes the subject attributes in order followed by the flow.
// The identity is never written.
func (d *FlowDocument) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	for _, attr := range d.Subject {
		if attr.Key == keySlug || attr.Key == keyFlow {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(attr.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(attr.Value)
	}

	if d.Flow != nil {
		if !first {
			buf.WriteByte(',')
		}
		flow, err := d.Flow.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.WriteString(`"flow":`)
		buf.Write(flow)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ContentVersion derives a content-hash version token for a stored body.
func ContentVersion(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
