package tasks

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// object is a JSON object whose values are decoded lazily, so field presence can be checked.
type object map[string]json.RawMessage

func parseObject(data []byte) (object, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("Json reply is not an object.")
	}
	var o object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, errors.New("Json reply is malformed: " + err.Error())
	}
	return o, nil
}

func asObject(raw json.RawMessage) (object, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, false
	}
	return o, true
}

func (o object) has(keys ...string) bool {
	for _, k := range keys {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// child returns the nested object at key; ok is false if it is absent or not an object.
func (o object) child(key string) (object, bool) {
	raw, ok := o[key]
	if !ok {
		return nil, false
	}
	return asObject(raw)
}

func (o object) array(key string) ([]json.RawMessage, bool) {
	raw, ok := o[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// id reads an identifier that may be sent as a string or a number.
func (o object) id(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := n.Float64(); err == nil {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return ""
}

func (o object) str(key string) string {
	var s string
	if raw, ok := o[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func (o object) num(key string) int {
	raw, ok := o[key]
	if !ok {
		return 0
	}
	var n json.Number
	if json.Unmarshal(raw, &n) != nil {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return int(i)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}

func (o object) flag(key string) bool {
	var b bool
	if raw, ok := o[key]; ok {
		_ = json.Unmarshal(raw, &b)
	}
	return b
}

// container is the paginated list envelope used by every catalog listing.
type container struct {
	Page
	items []json.RawMessage
}

// envelope parses the container at key, which must carry limit, offset, total and items.
func (o object) envelope(key string) (container, error) {
	if !o.has(key) {
		return container{}, errors.New("Json object is missing " + key + ".")
	}
	c, ok := o.child(key)
	if !ok {
		return container{}, errors.New("Json " + key + " is not an object.")
	}
	if !c.has("limit", "offset", "total", "items") {
		return container{}, errors.New("Json " + key + " object is missing values.")
	}
	items, ok := c.array("items")
	if !ok {
		return container{}, errors.New("Json " + key + " items is not an array.")
	}
	return container{
		Page: Page{
			Offset:   c.num("offset"),
			Limit:    c.num("limit"),
			Total:    c.num("total"),
			Received: len(items),
		},
		items: items,
	}, nil
}

// artistObject validates an {id, name} pair.
func artistObject(o object) (id, name string, ok bool) {
	if !o.has("id", "name") {
		return "", "", false
	}
	return o.id("id"), o.str("name"), true
}
