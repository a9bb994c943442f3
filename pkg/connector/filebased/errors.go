package filebased

import (
	"fmt"

	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
)

// User facing messages shared by check, discover and read
const (
	ErrMsgEmptyStream     = "No files were identified in the stream. This may be because there are no files in the specified container, or because your glob patterns did not match any files. Please verify that your source contains files last modified after the start_date and that your glob patterns are not overly strict."
	ErrMsgSchemaInference = "Error inferring schema from files. Are the files valid?"
	ErrMsgRecordParsing   = "Error parsing record. This could be due to a mismatch between the config's file type and the actual file type, or because the file or record is not parseable."
	ErrMsgStreamNotInCfg  = "The stream is in the catalog but not in the configuration. Please update the configured catalog."
	ErrMsgReadErrors      = "Some errors occurred while reading from the source."
	ErrMsgSchemaMismatch  = "The schema of a record does not match the stream schema. Please run discover again."
)

func newConfigError(format string, args ...interface{}) *errors.Error {
	return errors.Newf(errors.ErrorTypeConfig, format, args...)
}

// newFileError wraps a failure tied to a single file of a stream
func newFileError(errType errors.ErrorType, msg, stream string, file RemoteFile, cause error) *errors.Error {
	var err *errors.Error
	if cause != nil {
		err = errors.Wrap(cause, errType, msg)
	} else {
		err = errors.New(errType, msg)
	}
	return err.WithDetail("stream", stream).WithDetail("file", file.URI)
}

// ReadErrors collects the per-file failures of a stream so that one bad
// file does not stop the others from syncing
type ReadErrors struct {
	Stream string
	Errors []error
}

func (e *ReadErrors) Error() string {
	return fmt.Sprintf("%s stream=%s errors=%d first=%v", ErrMsgReadErrors, e.Stream, len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (e *ReadErrors) Unwrap() []error {
	return e.Errors
}
