package fieldcipher

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var (
	sectionKeys = []string{"summary", "transcript", "costBreakdown", "cost", "costs", "customer"}
	entryKeys   = []string{"message", "content", "summary", "transcript", "cost", "costs", "customer"}

	// message.<section> objects whose sectionKeys are sealed
	sections = [][]string{{}, {"analysis"}, {"artifact"}}
	// message.<list> arrays whose entries have entryKeys sealed
	entryLists = [][]string{{"messages"}, {"conversation"}, {"artifact", "messages"}, {"artifact", "messagesOpenAIFormatted"}}
)

// openKeys are decrypted on the admin read path wherever they appear.
var openKeys = map[string]struct{}{}

func init() {
	for _, k := range append(append([]string{}, sectionKeys...), entryKeys...) {
		openKeys[k] = struct{}{}
	}
}

// SealPayload encrypts the sensitive parts of a raw webhook body. Bodies
// that are not JSON objects are returned unchanged.
func (c *Cipher) SealPayload(raw []byte) ([]byte, error) {
	doc, ok, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return raw, nil
	}

	msg, ok := doc["message"].(map[string]any)
	if !ok {
		return raw, nil
	}

	for _, path := range sections {
		obj, ok := lookup(msg, path).(map[string]any)
		if !ok {
			continue
		}
		if err := c.sealKeys(obj, sectionKeys); err != nil {
			return nil, err
		}
	}

	for _, path := range entryLists {
		list, ok := lookup(msg, path).([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if err := c.sealKeys(entry, entryKeys); err != nil {
				return nil, err
			}
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode sealed payload: %w", err)
	}
	return out, nil
}

// OpenPayload reverses SealPayload for display. Values that fail to
// decrypt are left as stored.
func (c *Cipher) OpenPayload(raw []byte) ([]byte, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	out, err := json.Marshal(c.open(doc))
	if err != nil {
		return nil, fmt.Errorf("encode opened payload: %w", err)
	}
	return out, nil
}

func (c *Cipher) open(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if s, ok := child.(string); ok {
				if _, sensitive := openKeys[k]; sensitive {
					node[k] = c.openValue(s)
					continue
				}
			}
			node[k] = c.open(child)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = c.open(child)
		}
		return node
	default:
		return v
	}
}

func (c *Cipher) openValue(s string) any {
	plain, err := c.Decrypt(s)
	if err != nil {
		return s
	}
	// non-string values were JSON encoded before sealing
	var parsed any
	dec := json.NewDecoder(bytes.NewReader([]byte(plain)))
	dec.UseNumber()
	if json.Valid([]byte(plain)) && dec.Decode(&parsed) == nil {
		return parsed
	}
	return plain
}

func (c *Cipher) sealKeys(obj map[string]any, keys []string) error {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		sealed, err := c.Encrypt(v)
		if err != nil {
			return fmt.Errorf("seal %s: %w", k, err)
		}
		obj[k] = sealed
	}
	return nil
}

func decodeObject(raw []byte) (map[string]any, bool, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("decode payload: %w", err)
	}
	obj, ok := doc.(map[string]any)
	return obj, ok, nil
}

func lookup(obj map[string]any, path []string) any {
	var cur any = obj
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}
