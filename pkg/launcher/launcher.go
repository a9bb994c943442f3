// Package launcher decides which S3 source variant serves a process
// invocation, builds it, and hands it to the protocol entrypoint.
//
// The spec command is answered by the legacy variant so the published
// configuration document stays unchanged. Every other command builds the
// current variant. A failure while building it is reported as a single
// ERROR trace on the output and nothing is launched.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/sources/s3"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/sources/s3legacy"
	"github.com/ajitpratap0/nebula-source-s3/pkg/entrypoint"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// StartupErrorMessage is the summary of every construction failure
const StartupErrorMessage = "Error starting the sync. This could be due to an invalid configuration or catalog. Please contact Support for assistance."

// Variant identifies a connector implementation
type Variant int

const (
	// VariantCurrent is the multi-stream S3 source
	VariantCurrent Variant = iota
	// VariantLegacy reports the single-stream configuration document
	VariantLegacy
)

func (v Variant) String() string {
	switch v {
	case VariantLegacy:
		return "legacy"
	case VariantCurrent:
		return "current"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

const specCommand = "spec"

// SelectVariant picks the variant from the command name, the first argument
func SelectVariant(args []string) (Variant, error) {
	if len(args) == 0 {
		return 0, errors.New(errors.ErrorTypeValidation, "no command given")
	}
	if args[0] == specCommand {
		return VariantLegacy, nil
	}
	return VariantCurrent, nil
}

// ConstructionError is a failure to build the current variant
type ConstructionError struct {
	Summary string
	Cause   error
	// Trace is the diagnostic text written as the trace's stack_trace
	Trace string
}

func (e *ConstructionError) Error() string {
	if e.Cause == nil {
		return e.Summary
	}
	return e.Summary + ": " + e.Cause.Error()
}

func (e *ConstructionError) Unwrap() error {
	return e.Cause
}

// LegacyFactory builds the legacy variant
type LegacyFactory func() (core.Source, error)

// CurrentFactory builds the current variant from the paths found in the
// arguments. An empty CatalogPath means no catalog was given.
type CurrentFactory func(opts registry.Options) (core.Source, error)

// LaunchFunc runs a constructed source with the invocation arguments
type LaunchFunc func(ctx context.Context, source core.Source, args []string) error

// Launcher routes one invocation
type Launcher struct {
	legacy  LegacyFactory
	current CurrentFactory
	launch  LaunchFunc
	out     io.Writer
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Launcher
type Option func(*Launcher)

// WithLegacyFactory overrides how the legacy variant is built
func WithLegacyFactory(f LegacyFactory) Option {
	return func(l *Launcher) {
		l.legacy = f
	}
}

// WithCurrentFactory overrides how the current variant is built
func WithCurrentFactory(f CurrentFactory) Option {
	return func(l *Launcher) {
		l.current = f
	}
}

// WithLaunchFunc overrides the hand-off, entrypoint.Launch by default
func WithLaunchFunc(f LaunchFunc) Option {
	return func(l *Launcher) {
		l.launch = f
	}
}

// WithOutput redirects the startup error trace, stdout by default
func WithOutput(w io.Writer) Option {
	return func(l *Launcher) {
		l.out = w
	}
}

// WithClock overrides the time source of emitted_at
func WithClock(now func() time.Time) Option {
	return func(l *Launcher) {
		l.now = now
	}
}

// WithLogger overrides the logger
func WithLogger(log *zap.Logger) Option {
	return func(l *Launcher) {
		l.logger = log
	}
}

// New creates a Launcher backed by the connector registry
func New(opts ...Option) *Launcher {
	l := &Launcher{
		legacy: func() (core.Source, error) {
			return registry.CreateSource(s3legacy.Name, registry.Options{})
		},
		current: func(opts registry.Options) (core.Source, error) {
			return registry.CreateSource(s3.Name, opts)
		},
		launch: func(ctx context.Context, source core.Source, args []string) error {
			return entrypoint.Launch(ctx, source, args)
		},
		out: os.Stdout,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().With(zap.String("component", "launcher"))
	}
	return l
}

// Run selects and builds the variant for args and launches it. launched is
// false when the current variant could not be built; the failure has then
// already been written to the output and err is nil. A non-nil err comes
// from the launch itself or from an empty argument list.
func (l *Launcher) Run(ctx context.Context, args []string) (launched bool, err error) {
	variant, err := SelectVariant(args)
	if err != nil {
		return false, err
	}
	l.logger.Debug("selected connector variant", zap.Stringer("variant", variant), zap.String("command", args[0]))

	var source core.Source
	switch variant {
	case VariantLegacy:
		if source, err = l.legacy(); err != nil {
			return false, err
		}
	default:
		source, err = l.buildCurrent(args)
		if err != nil {
			var cerr *ConstructionError
			if !errors.As(err, &cerr) {
				return false, err
			}
			// stdout may carry log messages; the trace must stay the only line
			l.logger.Debug("failed to build source", zap.Error(cerr.Cause))
			if writeErr := l.report(cerr); writeErr != nil {
				l.logger.Error("failed to write startup error", zap.Error(writeErr))
			}
			return false, nil
		}
	}

	return true, l.launch(ctx, source, args)
}

// buildCurrent is the error boundary around construction. Errors and panics
// both come back as a *ConstructionError.
func (l *Launcher) buildCurrent(args []string) (source core.Source, err error) {
	defer func() {
		if r := recover(); r != nil {
			source = nil
			err = &ConstructionError{
				Summary: StartupErrorMessage,
				Cause:   errors.Newf(errors.ErrorTypeInternal, "panic while building source: %v", r),
				Trace:   fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()),
			}
		}
	}()

	opts := registry.Options{}
	opts.CatalogPath, _ = entrypoint.ExtractCatalog(args)
	opts.ConfigPath, _ = entrypoint.ExtractConfig(args)
	opts.StatePath, _ = entrypoint.ExtractState(args)

	source, err = l.current(opts)
	if err == nil && source == nil {
		err = errors.New(errors.ErrorTypeInternal, "source factory returned nothing")
	}
	if err != nil {
		// plain errors carry no frames of their own; capture them here
		var structured *errors.Error
		if !errors.As(err, &structured) {
			err = errors.Wrap(err, errors.ErrorTypeInternal, "failed to build source")
		}
		return nil, &ConstructionError{
			Summary: StartupErrorMessage,
			Cause:   err,
			Trace:   errors.StackTrace(err),
		}
	}
	return source, nil
}

// report writes the single startup trace line
func (l *Launcher) report(cerr *ConstructionError) error {
	msg := protocol.NewErrorTrace(protocol.Millis(l.now()), cerr.Summary, cerr.Trace)
	return jsonpool.MarshalLine(l.out, msg)
}
