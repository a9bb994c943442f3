package parsers

import (
	"context"
	"encoding/base64"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// AvroParser reads Avro object container files. Union values are
// unwrapped to the value of their branch.
type AvroParser struct{}

// Mode implements filebased.Parser
func (p *AvroParser) Mode() filebased.FileReadMode {
	return filebased.ModeText
}

// InferSchema implements filebased.Parser. The writer schema embedded in
// the file header is translated; no records are read.
func (p *AvroParser) InferSchema(ctx context.Context, stream filebased.StreamConfig, file filebased.RemoteFile, reader filebased.StreamReader) (schema.Fields, error) {
	var fields schema.Fields
	err := p.withReader(ctx, file, reader, func(ocf *goavro.OCFReader, s *avroSchema) error {
		record, ok := s.resolve(s.root).(map[string]interface{})
		if !ok || record["type"] != "record" {
			return errors.New(errors.ErrorTypeData, "avro schema is not a record")
		}
		fields = schema.Fields{}
		for _, f := range avroFields(record) {
			fields[f.name] = s.jsonType(f.schema, stream.Format.DoubleAsString)
		}
		return nil
	})
	return fields, err
}

// ParseRecords implements filebased.Parser
func (p *AvroParser) ParseRecords(ctx context.Context, stream filebased.StreamConfig, file filebased.RemoteFile, reader filebased.StreamReader, fields schema.Fields, fn func(filebased.Record) error) error {
	doubleAsString := stream.Format.DoubleAsString
	return p.withReader(ctx, file, reader, func(ocf *goavro.OCFReader, s *avroSchema) error {
		for ocf.Scan() {
			if err := ctx.Err(); err != nil {
				return err
			}
			datum, err := ocf.Read()
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "failed to decode avro record")
			}
			record, ok := s.convert(s.root, datum, doubleAsString).(map[string]interface{})
			if !ok {
				return errors.New(errors.ErrorTypeData, "avro datum is not a record")
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return ocf.Err()
	})
}

func (p *AvroParser) withReader(ctx context.Context, file filebased.RemoteFile, reader filebased.StreamReader, fn func(*goavro.OCFReader, *avroSchema) error) error {
	rc, err := openText(ctx, reader, file)
	if err != nil {
		return err
	}
	defer rc.Close()

	ocf, err := goavro.NewOCFReader(rc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "invalid avro file")
	}
	s, err := parseAvroSchema(ocf.Codec().Schema())
	if err != nil {
		return err
	}
	return fn(ocf, s)
}

// avroSchema is a decoded writer schema with its named types indexed
type avroSchema struct {
	root  interface{}
	named map[string]interface{}
}

type avroField struct {
	name   string
	schema interface{}
}

func parseAvroSchema(text string) (*avroSchema, error) {
	var root interface{}
	if err := jsonpool.Unmarshal([]byte(text), &root); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid avro schema")
	}
	s := &avroSchema{root: root, named: map[string]interface{}{}}
	s.index(root, "")
	return s, nil
}

// index registers every named type under its short and full name
func (s *avroSchema) index(node interface{}, namespace string) {
	switch n := node.(type) {
	case []interface{}:
		for _, branch := range n {
			s.index(branch, namespace)
		}
	case map[string]interface{}:
		if ns, ok := n["namespace"].(string); ok {
			namespace = ns
		}
		if name, ok := n["name"].(string); ok {
			switch n["type"] {
			case "record", "enum", "fixed":
				s.named[name] = n
				if namespace != "" && !strings.Contains(name, ".") {
					s.named[namespace+"."+name] = n
				}
				if i := strings.LastIndex(name, "."); i >= 0 {
					s.named[name[i+1:]] = n
				}
			}
		}
		for _, f := range avroFields(n) {
			s.index(f.schema, namespace)
		}
		if items, ok := n["items"]; ok {
			s.index(items, namespace)
		}
		if values, ok := n["values"]; ok {
			s.index(values, namespace)
		}
	}
}

// resolve follows named type references
func (s *avroSchema) resolve(node interface{}) interface{} {
	if name, ok := node.(string); ok {
		if named, ok := s.named[name]; ok {
			return named
		}
	}
	if m, ok := node.(map[string]interface{}); ok {
		if inner, ok := m["type"].(map[string]interface{}); ok && m["logicalType"] == nil {
			return s.resolve(inner)
		}
	}
	return node
}

func avroFields(record map[string]interface{}) []avroField {
	raw, _ := record["fields"].([]interface{})
	fields := make([]avroField, 0, len(raw))
	for _, r := range raw {
		f, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := f["name"].(string)
		fields = append(fields, avroField{name: name, schema: f["type"]})
	}
	return fields
}

// typeName is the primitive or complex type of node
func typeName(node interface{}) string {
	switch n := node.(type) {
	case string:
		return n
	case map[string]interface{}:
		if t, ok := n["type"].(string); ok {
			return t
		}
	}
	return ""
}

// jsonType maps an Avro schema node to its JSON-schema type
func (s *avroSchema) jsonType(node interface{}, doubleAsString bool) schema.Type {
	node = s.resolve(node)
	if branches, ok := node.([]interface{}); ok {
		t := schema.Type("")
		for _, b := range branches {
			t = schema.Widen(t, s.jsonType(b, doubleAsString))
		}
		if t == "" || t == schema.Null {
			return schema.String
		}
		return t
	}

	if m, ok := node.(map[string]interface{}); ok {
		if lt, ok := m["logicalType"].(string); ok {
			switch lt {
			case "decimal", "uuid", "date", "time-millis", "time-micros",
				"timestamp-millis", "timestamp-micros", "local-timestamp-millis", "local-timestamp-micros":
				return schema.String
			}
		}
	}

	switch typeName(node) {
	case "null":
		return schema.Null
	case "boolean":
		return schema.Boolean
	case "int", "long":
		return schema.Integer
	case "float":
		return schema.Number
	case "double":
		if doubleAsString {
			return schema.String
		}
		return schema.Number
	case "array":
		return schema.Array
	case "record", "map":
		return schema.Object
	default:
		return schema.String
	}
}

// convert turns a goavro native datum into its JSON representation
func (s *avroSchema) convert(node interface{}, value interface{}, doubleAsString bool) interface{} {
	if value == nil {
		return nil
	}
	node = s.resolve(node)

	if branches, ok := node.([]interface{}); ok {
		wrapped, ok := value.(map[string]interface{})
		if !ok || len(wrapped) != 1 {
			return s.convert(nil, value, doubleAsString)
		}
		for name, inner := range wrapped {
			return s.convert(s.branch(branches, name), inner, doubleAsString)
		}
	}

	switch v := value.(type) {
	case float64:
		if doubleAsString {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
		return v
	case float32:
		return float64(v)
	case int32:
		return int64(v)
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case *big.Rat:
		return v.FloatString(decimalScale(node))
	case time.Time:
		if logicalType(node) == "date" {
			return v.UTC().Format("2006-01-02")
		}
		return v.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return time.Time{}.Add(v).Format("15:04:05.000000")
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		m, _ := node.(map[string]interface{})
		if typeName(m) == "record" {
			for _, f := range avroFields(m) {
				out[f.name] = s.convert(f.schema, v[f.name], doubleAsString)
			}
			return out
		}
		var values interface{}
		if m != nil {
			values = m["values"]
		}
		for k, item := range v {
			out[k] = s.convert(values, item, doubleAsString)
		}
		return out
	case []interface{}:
		var items interface{}
		if m, ok := node.(map[string]interface{}); ok {
			items = m["items"]
		}
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = s.convert(items, item, doubleAsString)
		}
		return out
	default:
		return v
	}
}

// branch finds the union branch goavro named name
func (s *avroSchema) branch(branches []interface{}, name string) interface{} {
	for _, b := range branches {
		resolved := s.resolve(b)
		if typeName(b) == name || typeName(resolved) == name {
			return b
		}
		if m, ok := resolved.(map[string]interface{}); ok {
			n, _ := m["name"].(string)
			if n == name || strings.HasSuffix(name, "."+n) {
				return b
			}
		}
	}
	return nil
}

func logicalType(node interface{}) string {
	if m, ok := node.(map[string]interface{}); ok {
		lt, _ := m["logicalType"].(string)
		return lt
	}
	return ""
}

func decimalScale(node interface{}) int {
	if m, ok := node.(map[string]interface{}); ok {
		switch scale := m["scale"].(type) {
		case float64:
			return int(scale)
		case jsonpool.Number:
			n, _ := scale.Int64()
			return int(n)
		}
	}
	return 0
}

var _ filebased.Parser = (*AvroParser)(nil)
