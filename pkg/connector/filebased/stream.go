package filebased

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// errStopStream is returned from the record callback when the validation
// policy asks the stream to stop
var errStopStream = errors.New(errors.ErrorTypeValidation, ErrMsgSchemaMismatch)

// readStream syncs one configured stream. Files that fail to parse are
// skipped and reported together once every other file has been read.
func (s *Source) readStream(ctx context.Context, cs *protocol.ConfiguredStream, stream StreamConfig, state core.State, emitter *protocol.Emitter, log *zap.Logger) error {
	parser, ok := s.parsers[stream.Format.Filetype]
	if !ok {
		return errors.Newf(errors.ErrorTypeConfig, "no parser for filetype %q", stream.Format.Filetype)
	}

	incremental := cs.SyncMode == protocol.SyncModeIncremental
	cursor := s.cursorFactory(stream)
	if incremental {
		if prior, ok := state.ForStream(stream.Name); ok {
			if err := cursor.SetInitialState(prior); err != nil {
				return errors.Wrap(err, errors.ErrorTypeState, "invalid state for stream "+stream.Name)
			}
		}
	}

	files, err := s.reader.GetMatchingFiles(ctx, stream.Globs, stream.LegacyPrefix)
	if err != nil {
		return err
	}
	s.metrics.FilesMatched(stream.Name, len(files))

	if incremental {
		files = cursor.FilesToSync(files)
	} else {
		SortFiles(files)
	}
	log.Info("files to sync", zap.Int("count", len(files)), zap.Bool("incremental", incremental))

	fields, err := catalogFields(cs, stream)
	if err != nil {
		return err
	}

	running := false
	var fileErrs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		fileCtx := context.WithValue(ctx, logger.FileKey, file.URI)
		timer := s.metrics.Timer(stream.Name)
		emitted := 0
		err := parser.ParseRecords(fileCtx, stream, file, s.reader, fields, func(record Record) error {
			if stream.Schemaless {
				record = Record{"data": record}
			}

			emit, stop := stream.ValidationPolicy.Apply(record, fields)
			if stop {
				return errStopStream
			}
			if !emit {
				s.metrics.RecordSkipped(stream.Name)
				return nil
			}

			record[SourceFileLastModified] = file.LastModifiedString()
			record[SourceFileURL] = file.URI

			if !running {
				running = true
				if err := emitter.EmitStreamStatus(stream.Name, protocol.StreamStatusRunning); err != nil {
					return err
				}
			}
			emitted++
			return emitter.EmitRecord(stream.Name, record)
		})
		timer.ObserveDuration()
		s.metrics.RecordEmitted(stream.Name, emitted)

		if errors.Is(err, errStopStream) {
			log.Warn("stopping stream until the schema is rediscovered", zap.String("file", file.URI))
			return nil
		}
		if err != nil {
			log.Warn("failed to read file", zap.String("file", file.URI), zap.Error(err))
			s.metrics.ParseError(stream.Name)
			fileErrs = append(fileErrs, newFileError(errors.ErrorTypeData, ErrMsgRecordParsing, stream.Name, file, err))
			continue
		}

		s.metrics.FileSynced(stream.Name, file.Size)
		if incremental {
			cursor.AddFile(file)
			if err := emitter.EmitState(streamState(stream.Name, cursor.State())); err != nil {
				return err
			}
		}
	}

	if len(fileErrs) > 0 {
		return &ReadErrors{Stream: stream.Name, Errors: fileErrs}
	}
	return nil
}

// catalogFields returns the schema records are validated against: the
// catalog schema without the columns the source adds itself. Schemaless
// streams have no schema.
func catalogFields(cs *protocol.ConfiguredStream, stream StreamConfig) (schema.Fields, error) {
	if stream.Schemaless {
		return nil, nil
	}
	if len(cs.Stream.JSONSchema) == 0 {
		return stream.InputFields(), nil
	}
	fields, err := schema.FromJSONSchema(cs.Stream.JSONSchema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCatalog, "invalid schema for stream "+stream.Name)
	}
	delete(fields, SourceFileLastModified)
	delete(fields, SourceFileURL)
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func streamState(name string, state map[string]interface{}) *protocol.StateMessage {
	return &protocol.StateMessage{
		Type: protocol.StateTypeStream,
		Stream: &protocol.StreamState{
			StreamDescriptor: protocol.StreamDescriptor{Name: name},
			StreamState:      state,
		},
	}
}
