package filebased

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
)

// inferStreamSchema builds the JSON schema of a stream. A user supplied
// input_schema wins, schemaless streams expose a single data object, and
// otherwise the most recent files are sampled.
func (s *Source) inferStreamSchema(ctx context.Context, stream StreamConfig) (map[string]interface{}, error) {
	var fields schema.Fields
	switch {
	case stream.InputSchema != "":
		fields = stream.InputFields()
	case stream.Schemaless:
		fields = schema.Fields{"data": schema.Object}
	default:
		inferred, err := s.sampleSchema(ctx, stream)
		if err != nil {
			return nil, err
		}
		fields = inferred
	}

	jsonSchema := schema.ToJSONSchema(fields)
	props := jsonSchema["properties"].(map[string]interface{})
	props[SourceFileLastModified] = map[string]interface{}{"type": "string", "format": "date-time"}
	props[SourceFileURL] = map[string]interface{}{"type": "string"}
	return jsonSchema, nil
}

func (s *Source) sampleSchema(ctx context.Context, stream StreamConfig) (schema.Fields, error) {
	log := s.logger.With(zap.String("stream", stream.Name))

	parser, ok := s.parsers[stream.Format.Filetype]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no parser for filetype %q", stream.Format.Filetype)
	}

	files, err := s.reader.GetMatchingFiles(ctx, stream.Globs, stream.LegacyPrefix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		log.Warn(ErrMsgEmptyStream)
		return schema.Fields{}, nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].LastModified.After(files[j].LastModified)
	})
	if n := stream.RecentNFilesToReadForSchemaDiscovery; n > 0 && len(files) > n {
		files = files[:n]
	}
	log.Info("inferring schema", zap.Int("files", len(files)))

	merged := schema.Fields{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := parser.InferSchema(ctx, stream, file, s.reader)
		if err != nil {
			return nil, newFileError(errors.ErrorTypeData, ErrMsgSchemaInference, stream.Name, file, err)
		}
		merged = schema.Merge(merged, fields)
	}
	return merged, nil
}
