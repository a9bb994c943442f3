package parsers

import (
	"context"
	"io"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// JSONLParser reads newline delimited JSON objects. Objects may span
// several lines.
type JSONLParser struct{}

// Mode implements filebased.Parser
func (p *JSONLParser) Mode() filebased.FileReadMode {
	return filebased.ModeText
}

// InferSchema implements filebased.Parser
func (p *JSONLParser) InferSchema(ctx context.Context, stream filebased.StreamConfig, file filebased.RemoteFile, reader filebased.StreamReader) (schema.Fields, error) {
	inferrer := schema.NewInferrer()
	n := 0
	err := p.decode(ctx, file, reader, func(record filebased.Record) error {
		inferrer.Add(record)
		n++
		if n >= inferenceRecordLimit {
			return errStopRows
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopRows) {
		return nil, err
	}
	return inferrer.Fields(), nil
}

// ParseRecords implements filebased.Parser. Records are emitted as decoded.
func (p *JSONLParser) ParseRecords(ctx context.Context, stream filebased.StreamConfig, file filebased.RemoteFile, reader filebased.StreamReader, fields schema.Fields, fn func(filebased.Record) error) error {
	return p.decode(ctx, file, reader, fn)
}

func (p *JSONLParser) decode(ctx context.Context, file filebased.RemoteFile, reader filebased.StreamReader, fn func(filebased.Record) error) error {
	rc, err := openText(ctx, reader, file)
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := jsonpool.NewDecoder(rc)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, errors.ErrorTypeData, "invalid json")
		}
		record, ok := value.(map[string]interface{})
		if !ok {
			return errors.Newf(errors.ErrorTypeData, "value %d is not a json object", n)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
}

var _ filebased.Parser = (*JSONLParser)(nil)
