package protocol

import (
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
)

// GenericErrorMessage is shown to users when a failure is not caused by
// anything they supplied.
const GenericErrorMessage = "Something went wrong in the connector. See the logs for more details."

// NewErrorTrace builds a TRACE message of type ERROR carrying only a summary
// and a stack trace.
func NewErrorTrace(emittedAt int64, message, stackTrace string) *Message {
	return &Message{
		Type: TypeTrace,
		Trace: &TraceMessage{
			Type:      TraceTypeError,
			EmittedAt: emittedAt,
			Error: &ErrorTraceMessage{
				Message:    message,
				StackTrace: stackTrace,
			},
		},
	}
}

// ErrorTraceFromError converts err into an ERROR trace. Operator mistakes are
// reported verbatim as config errors; everything else gets the generic
// summary with the error text kept as the internal message.
func ErrorTraceFromError(err error, emittedAt int64) *Message {
	msg := NewErrorTrace(emittedAt, GenericErrorMessage, errors.StackTrace(err))
	trace := msg.Trace.Error

	switch {
	case errors.IsUserFacing(err):
		trace.Message = err.Error()
		trace.FailureType = FailureTypeConfig
	case errors.IsRetryable(err):
		trace.InternalMessage = err.Error()
		trace.FailureType = FailureTypeTransient
	default:
		trace.InternalMessage = err.Error()
		trace.FailureType = FailureTypeSystem
	}
	return msg
}
