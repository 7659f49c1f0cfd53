package models

import (
	"strings"
	"time"
)

// Doc is a loosely typed document as it travels through hydration: a stored
// record plus whatever related records the joiner attached to it.
type Doc map[string]any

// sensitiveKeys are member fields that are only needed server side.
var sensitiveKeys = map[string]bool{
	"primaryEmail": true,
	"config":       true,
	"password":     true,
}

// ID returns the document identifier, accepting both the stored and the
// client representation.
func (d Doc) ID() string {
	if id := d.Str("_id"); id != "" {
		return id
	}
	return d.Str("id")
}

// Str returns the string value at key, or "" when it is missing or not a string.
func (d Doc) Str(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d[key].(string)
	return s
}

// Bool returns the boolean at key, or def when the key is missing.
func (d Doc) Bool(key string, def bool) bool {
	if d == nil {
		return def
	}
	v, ok := d[key].(bool)
	if !ok {
		return def
	}
	return v
}

// Doc returns the nested document at key.
func (d Doc) Doc(key string) Doc {
	if d == nil {
		return nil
	}
	return AsDoc(d[key])
}

// Docs returns the nested document list at key.
func (d Doc) Docs(key string) []Doc {
	if d == nil {
		return nil
	}
	switch v := d[key].(type) {
	case []Doc:
		return v
	case []any:
		out := make([]Doc, 0, len(v))
		for _, item := range v {
			if doc := AsDoc(item); doc != nil {
				out = append(out, doc)
			}
		}
		return out
	}
	return nil
}

// Time returns the time at key; RFC3339 strings are parsed.
func (d Doc) Time(key string) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	switch v := d[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AsDoc converts map-shaped values to a Doc.
func AsDoc(v any) Doc {
	switch m := v.(type) {
	case Doc:
		return m
	case map[string]any:
		return Doc(m)
	}
	return nil
}

// Clone returns a deep copy of d.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	return cloneValue(d).(Doc)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Doc:
		out := make(Doc, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case map[string]any:
		out := make(Doc, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []Doc:
		out := make([]Doc, len(t))
		for i, val := range t {
			out[i] = cloneValue(val).(Doc)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return v
}

// Client returns the projection of d that may be sent to clients: "_id"
// becomes "id", private "_" markers and sensitive member fields are dropped.
func (d Doc) Client() Doc {
	if d == nil {
		return nil
	}
	return clientValue(d).(Doc)
}

func clientValue(v any) any {
	switch t := v.(type) {
	case Doc:
		return clientDoc(t)
	case map[string]any:
		return clientDoc(Doc(t))
	case []Doc:
		out := make([]Doc, len(t))
		for i, val := range t {
			out[i] = clientDoc(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = clientValue(val)
		}
		return out
	}
	return v
}

func clientDoc(d Doc) Doc {
	out := make(Doc, len(d))
	for k, val := range d {
		switch {
		case k == "_id":
			out["id"] = clientValue(val)
		case strings.HasPrefix(k, "_"), sensitiveKeys[k]:
		default:
			out[k] = clientValue(val)
		}
	}
	return out
}
