package filebased

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/observability"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// errStopParsing ends parsing after the first record during a check
var errStopParsing = errors.New(errors.ErrorTypeInternal, "record sampled")

// Check implements core.Source. Every stream must match at least one file
// and its most recent file must yield a record. Problems are reported as a
// FAILED status.
func (s *Source) Check(ctx context.Context, raw map[string]interface{}) (status *protocol.ConnectionStatus, err error) {
	ctx, span := observability.StartSpan(ctx, "check")
	defer func() { observability.EndSpan(span, err) }()

	cfg, err := s.configure(raw)
	if err != nil {
		return failed(err), nil
	}

	for _, stream := range cfg.Streams {
		if err := s.checkStream(ctx, stream); err != nil {
			s.logger.Warn("check failed", zap.String("stream", stream.Name), zap.Error(err))
			return failed(err), nil
		}
	}
	return &protocol.ConnectionStatus{Status: protocol.StatusSucceeded}, nil
}

func (s *Source) checkStream(ctx context.Context, stream StreamConfig) error {
	parser, ok := s.parsers[stream.Format.Filetype]
	if !ok {
		return errors.Newf(errors.ErrorTypeConfig, "no parser for filetype %q", stream.Format.Filetype)
	}

	files, err := s.reader.GetMatchingFiles(ctx, stream.Globs, stream.LegacyPrefix)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New(errors.ErrorTypeConfig, ErrMsgEmptyStream).WithDetail("stream", stream.Name)
	}

	SortFiles(files)
	file := files[len(files)-1]
	err = parser.ParseRecords(ctx, stream, file, s.reader, stream.InputFields(), func(Record) error {
		return errStopParsing
	})
	if err != nil && !errors.Is(err, errStopParsing) {
		return newFileError(errors.ErrorTypeData, ErrMsgRecordParsing, stream.Name, file, err)
	}
	return nil
}

func failed(err error) *protocol.ConnectionStatus {
	return &protocol.ConnectionStatus{
		Status:  protocol.StatusFailed,
		Message: fmt.Sprintf("%v", err),
	}
}
