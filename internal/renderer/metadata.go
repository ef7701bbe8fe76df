package renderer

import (
	"fmt"
	"strings"
	"time"
)

// Metadata captures front matter rendered alongside a document.
type Metadata struct {
	Raw         map[string]any `json:"raw,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Author      string         `json:"author,omitempty"`
	Excerpt     string         `json:"excerpt,omitempty"`
	Date        time.Time      `json:"date,omitzero"`
	Tags        []string       `json:"tags,omitempty"`
}

// IsZero reports whether the metadata carries any meaningful values.
func (m Metadata) IsZero() bool {
	if m.Title != "" || m.Description != "" || m.Author != "" || m.Excerpt != "" || len(m.Tags) > 0 {
		return false
	}
	return m.Date.IsZero() && len(m.Raw) == 0
}

// dateLayouts lists the accepted date formats, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseDate parses a front matter date value. Dates without a zone are read as UTC.
func ParseDate(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func extractMetadata(raw map[string]any) Metadata {
	var meta Metadata
	if len(raw) == 0 {
		return meta
	}

	meta.Raw = make(map[string]any, len(raw))
	for k, v := range raw {
		meta.Raw[k] = v
		switch k {
		case "title":
			if str, ok := toString(v); ok {
				meta.Title = strings.TrimSpace(str)
			}
		case "description":
			if str, ok := toString(v); ok {
				meta.Description = str
			}
		case "summary":
			if _, has := raw["description"]; has {
				continue
			}
			if str, ok := toString(v); ok {
				meta.Description = str
			}
		case "author":
			if str, ok := toString(v); ok {
				meta.Author = str
			}
		case "excerpt":
			if str, ok := toString(v); ok {
				meta.Excerpt = str
			}
		case "date":
			if t, ok := ParseDate(v); ok {
				meta.Date = t
			}
		case "tags":
			meta.Tags = toStringSlice(v)
		case "keywords":
			if _, has := raw["tags"]; has {
				continue
			}
			meta.Tags = toStringSlice(v)
		}
	}

	return meta
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	case int, int64, float64, bool:
		return fmt.Sprint(val), true
	default:
		return "", false
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if str, ok := toString(item); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		if str, ok := toString(v); ok {
			return []string{str}
		}
		return nil
	}
}
