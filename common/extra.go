package common

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

// Extra holds the members of a JSON object that its Go type does not
// declare. They are written back after the declared fields, sorted by key.
type Extra map[string]json.RawMessage

// decodeJSON decodes with UseNumber so numbers keep their literal form.
func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func encodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// jsonKeys lists the object keys the struct behind typed declares.
func jsonKeys(typed interface{}) []string {
	t := reflect.TypeOf(typed)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys = append(keys, name)
	}
	return keys
}

// decodeWithExtra fills typed and stores the remaining members in extra.
// typed must point to a type without its own UnmarshalJSON.
func decodeWithExtra(data []byte, typed interface{}, extra *Extra) error {
	if err := decodeJSON(data, typed); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := decodeJSON(data, &all); err != nil {
		return err
	}
	// encoding/json matches keys case-insensitively.
	for _, known := range jsonKeys(typed) {
		for k := range all {
			if strings.EqualFold(k, known) {
				delete(all, k)
			}
		}
	}
	*extra = nil
	if len(all) != 0 {
		*extra = all
	}
	return nil
}

func encodeWithExtra(typed interface{}, extra Extra) ([]byte, error) {
	data, err := encodeJSON(typed)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range keys {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		key, err := encodeJSON(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
