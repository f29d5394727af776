package store

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Record is one item returned by the remote source. A nil field was absent
// (or null) in the response.
type Record struct {
	Title       *string
	Description *string
	Subject     *string
}

// Dataset is the ordered set of records from one sync. Complete is false
// when fetching stopped early on an error.
type Dataset struct {
	Records   []Record
	Complete  bool
	Source    string
	FetchedAt time.Time
}

func (d Dataset) Len() int { return len(d.Records) }

// FieldNames maps record attributes to the remote field names.
type FieldNames struct {
	Title       string
	Description string
	Subject     string
}

var DefaultFieldNames = FieldNames{
	Title:       "dc_title",
	Description: "dc_description",
	Subject:     "dc_subject",
}

// DecodeRecord reads a record from one element of a "results" array. The
// attributes are taken from the nested "fields" object when there is one,
// otherwise from the element itself.
func (n FieldNames) DecodeRecord(obj map[string]json.RawMessage) Record {
	if nested, ok := obj["fields"]; ok {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(nested, &fields); err == nil && fields != nil {
			obj = fields
		}
	}
	return Record{
		Title:       fieldValue(obj[n.Title]),
		Description: fieldValue(obj[n.Description]),
		Subject:     fieldValue(obj[n.Subject]),
	}
}

// EncodeRecord is the inverse of DecodeRecord for the nested form. Absent
// fields are left out.
func (n FieldNames) EncodeRecord(r Record) map[string]string {
	out := make(map[string]string, 3)
	if r.Title != nil {
		out[n.Title] = *r.Title
	}
	if r.Description != nil {
		out[n.Description] = *r.Description
	}
	if r.Subject != nil {
		out[n.Subject] = *r.Subject
	}
	return out
}

// fieldValue turns a JSON value into text. Lists of strings are joined so a
// multi-valued subject still matches keywords.
func fieldValue(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return &x
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		s := strings.Join(parts, ", ")
		return &s
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(x)
		return &s
	default:
		s := string(raw)
		return &s
	}
}

// Str returns a pointer to s, for building records by hand.
func Str(s string) *string { return &s }
