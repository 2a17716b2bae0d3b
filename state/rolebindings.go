package state

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RoleBinding maps one reaction emoji to a role name.
type RoleBinding struct {
	Emoji string
	Role  string
}

// RoleBindings is the ordered emoji -> role legend backing the reaction-role menu.
// The on-disk format is a plain JSON object, but key order is significant: the menu
// text is a deterministic join of its entries, so (un)marshalling preserves the
// object's key order instead of round-tripping through a Go map.
type RoleBindings []RoleBinding

// Role returns the role name bound to emoji.
func (b RoleBindings) Role(emoji string) (string, bool) {
	for _, rb := range b {
		if rb.Emoji == emoji {
			return rb.Role, true
		}
	}
	return "", false
}

// MarshalJSON encodes the bindings as a JSON object in legend order.
func (b RoleBindings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rb := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(rb.Emoji)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(rb.Role)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping its key order.
func (b *RoleBindings) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("reaction roles: expected object, got %v", tok)
	}
	out := RoleBindings{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("reaction roles: non-string key %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("reaction roles: value for %q: %w", key, err)
		}
		out = append(out, RoleBinding{Emoji: key, Role: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*b = out
	return nil
}
