// Package schema infers and checks the JSON schemas of file-based streams.
//
// Stream schemas are flat maps of field name to JSON-schema primitive type.
// Types widen as more files are sampled: integer becomes number, and any
// other disagreement becomes string.
package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
)

// Type is a JSON-schema type name
type Type string

const (
	Null    Type = "null"
	Boolean Type = "boolean"
	Integer Type = "integer"
	Number  Type = "number"
	String  Type = "string"
	Object  Type = "object"
	Array   Type = "array"
)

// Fields maps a field name to its inferred type
type Fields map[string]Type

// TypeOf detects the JSON-schema type of a decoded value
func TypeOf(value interface{}) Type {
	switch v := value.(type) {
	case nil:
		return Null
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Integer
	case float32, float64:
		return Number
	case gojson.Number:
		if isInteger(string(v)) {
			return Integer
		}
		return Number
	case string, time.Time, []byte:
		return String
	case []interface{}:
		return Array
	case map[string]interface{}:
		return Object
	default:
		return String
	}
}

// InferString detects the primitive type of a CSV cell. trueValues and
// falseValues are matched case-sensitively, like the values they came from.
func InferString(value string, trueValues, falseValues []string) Type {
	if contains(trueValues, value) || contains(falseValues, value) {
		return Boolean
	}
	if isInteger(value) {
		return Integer
	}
	if isNumber(value) {
		return Number
	}
	return String
}

// Widen returns the narrowest type that can hold values of both a and b
func Widen(a, b Type) Type {
	switch {
	case a == b:
		return a
	case a == Null || a == "":
		return b
	case b == Null || b == "":
		return a
	case (a == Integer && b == Number) || (a == Number && b == Integer):
		return Number
	default:
		return String
	}
}

// Merge widens every field of b into a copy of a
func Merge(a, b Fields) Fields {
	out := make(Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = Widen(out[k], v)
	}
	return out
}

// Inferrer accumulates field types over a sequence of records
type Inferrer struct {
	fields Fields
}

// NewInferrer creates an empty inferrer
func NewInferrer() *Inferrer {
	return &Inferrer{fields: make(Fields)}
}

// Add widens the accumulated schema with the types found in record
func (i *Inferrer) Add(record map[string]interface{}) {
	for k, v := range record {
		i.fields[k] = Widen(i.fields[k], TypeOf(v))
	}
}

// AddType widens a single field
func (i *Inferrer) AddType(field string, t Type) {
	i.fields[field] = Widen(i.fields[field], t)
}

// Fields returns the accumulated schema. Fields only ever seen as null are
// reported as strings.
func (i *Inferrer) Fields() Fields {
	out := make(Fields, len(i.fields))
	for k, v := range i.fields {
		if v == Null || v == "" {
			v = String
		}
		out[k] = v
	}
	return out
}

// ToJSONSchema renders fields as an object JSON schema
func ToJSONSchema(fields Fields) map[string]interface{} {
	props := make(map[string]interface{}, len(fields))
	for name, t := range fields {
		props[name] = map[string]interface{}{"type": string(t)}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
}

// FromJSONSchema extracts the property types of an object JSON schema. A
// property typed as a list such as ["null","integer"] takes its first
// non-null entry.
func FromJSONSchema(schema map[string]interface{}) (Fields, error) {
	props, _ := schema["properties"].(map[string]interface{})
	fields := make(Fields, len(props))
	for name, raw := range props {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("property %s is not an object", name)
		}
		t, err := propertyType(prop["type"])
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		fields[name] = t
	}
	return fields, nil
}

func propertyType(raw interface{}) (Type, error) {
	switch v := raw.(type) {
	case string:
		return parseType(v)
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if ok && s != string(Null) {
				return parseType(s)
			}
		}
		return Null, nil
	case nil:
		return String, nil
	default:
		return "", fmt.Errorf("unsupported type declaration %v", raw)
	}
}

func parseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Null, Boolean, Integer, Number, String, Object, Array:
		return t, nil
	default:
		return "", fmt.Errorf("unknown type %q", s)
	}
}

// ParseInputSchema parses a user supplied schema. Both a JSON schema object
// and the short form {"column": "type", ...} are accepted.
func ParseInputSchema(input string) (Fields, error) {
	var doc map[string]interface{}
	if err := gojson.Unmarshal([]byte(input), &doc); err != nil {
		return nil, fmt.Errorf("input schema is not valid JSON: %w", err)
	}
	if _, ok := doc["properties"]; ok {
		return FromJSONSchema(doc)
	}

	fields := make(Fields, len(doc))
	for name, raw := range doc {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("type of column %s must be a string", name)
		}
		t, err := parseType(s)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		fields[name] = t
	}
	return fields, nil
}

// Conforms reports whether every value of record is allowed by fields.
// Nulls are always allowed; integers satisfy number fields; fields missing
// from the schema fail.
func Conforms(record map[string]interface{}, fields Fields) bool {
	for k, v := range record {
		want, ok := fields[k]
		if !ok {
			return false
		}
		got := TypeOf(v)
		if got == Null || got == want {
			continue
		}
		if got == Integer && want == Number {
			continue
		}
		return false
	}
	return true
}

// Names returns the field names in sorted order
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
