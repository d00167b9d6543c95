package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ValueType tags a metadata value with the type that governs its
// serialization in the note_metadata table.
type ValueType string

// Metadata value types.
const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeDate    ValueType = "date"
	TypeBoolean ValueType = "boolean"
	TypeArray   ValueType = "array"
)

// MetadataEntry is one typed key/value row owned by a note. Deleting the
// note cascades to its entries.
type MetadataEntry struct {
	NoteID    string    `json:"note_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	ValueType ValueType `json:"value_type"`
}

// EncodeMetadataValue serializes an arbitrary front-matter value into its
// stored string form and the ValueType that will decode it back.
func EncodeMetadataValue(v any) (string, ValueType) {
	switch val := v.(type) {
	case nil:
		return "", TypeString
	case bool:
		return strconv.FormatBool(val), TypeBoolean
	case int:
		return strconv.Itoa(val), TypeNumber
	case int64:
		return strconv.FormatInt(val, 10), TypeNumber
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), TypeNumber
	case time.Time:
		return val.UTC().Format(time.RFC3339), TypeDate
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t.UTC().Format(time.RFC3339), TypeDate
		}
		if t, err := time.Parse("2006-01-02", val); err == nil {
			return t.UTC().Format(time.RFC3339), TypeDate
		}
		return val, TypeString
	case []any:
		b, err := json.Marshal(val)
		if err != nil {
			return "[]", TypeArray
		}
		return string(b), TypeArray
	case []string:
		b, _ := json.Marshal(val)
		return string(b), TypeArray
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", TypeString
		}
		return string(b), TypeString
	}
}

// DecodeMetadataValue deserializes a stored value according to its type tag.
// A value that fails to decode is returned as the raw string rather than
// dropped, so malformed rows stay visible.
func DecodeMetadataValue(value string, vt ValueType) any {
	switch vt {
	case TypeNumber:
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case TypeDate:
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
	case TypeArray:
		var arr []any
		if err := json.Unmarshal([]byte(value), &arr); err == nil {
			return arr
		}
	}
	return value
}
