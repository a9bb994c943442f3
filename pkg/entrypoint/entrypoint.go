// Package entrypoint runs a source connector as a command line program
// speaking the connector protocol.
//
// The program understands four commands:
//
//	spec
//	check    --config <path>
//	discover --config <path>
//	read     --config <path> --catalog <path> [--state <path>]
//
// Every result is written to standard output as protocol messages. A failing
// command, including one missing a required path, is reported as an ERROR
// trace and returned so the caller can exit with a non-zero status. Unknown
// commands and flags are rejected by argument parsing and only returned.
package entrypoint

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/nebula-source-s3/pkg/config"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/core"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/observability"
	"github.com/ajitpratap0/nebula-source-s3/pkg/protocol"
)

// Option configures Launch
type Option func(*runner)

// WithOutput redirects protocol messages, stdout by default
func WithOutput(w io.Writer) Option {
	return func(r *runner) {
		r.out = w
	}
}

// WithClock overrides the time source of emitted_at
func WithClock(now func() time.Time) Option {
	return func(r *runner) {
		r.now = now
	}
}

// WithLogger overrides the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *runner) {
		r.logger = l
	}
}

type runner struct {
	source  core.Source
	out     io.Writer
	now     func() time.Time
	logger  *zap.Logger
	emitter *protocol.Emitter
}

// Launch parses args and runs the matching command against source
func Launch(ctx context.Context, source core.Source, args []string, opts ...Option) error {
	r := &runner{source: source, out: os.Stdout, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().With(zap.String("component", "entrypoint"))
	}
	r.emitter = protocol.NewEmitter(r.out, protocol.WithClock(r.now))

	root := r.rootCommand()
	root.SetArgs(args)
	root.SetOut(os.Stderr)
	root.SetErr(os.Stderr)
	return root.ExecuteContext(ctx)
}

func (r *runner) rootCommand() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "source-s3",
		Short:         "S3 source connector",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logger.SetLevel(zapcore.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		r.specCommand(),
		r.checkCommand(),
		r.discoverCommand(),
		r.readCommand(),
	)
	return root
}

func (r *runner) specCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "spec",
		Short: "Output the connector specification",
		Args:  cobra.NoArgs,
		RunE: r.run("spec", func(ctx context.Context) error {
			spec, err := r.source.Spec(ctx)
			if err != nil {
				return err
			}
			return r.emitter.Emit(&protocol.Message{Type: protocol.TypeSpec, Spec: spec})
		}),
	}
}

func (r *runner) checkCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the configuration can be used to connect",
		Args:  cobra.NoArgs,
		RunE: r.run("check", func(ctx context.Context) error {
			raw, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			status, err := r.source.Check(ctx, raw)
			if err != nil {
				return err
			}
			return r.emitter.Emit(&protocol.Message{Type: protocol.TypeConnectionStatus, ConnectionStatus: status})
		}),
	}
	configFlag(cmd, &configPath)
	return cmd
}

func (r *runner) discoverCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Output the catalog of available streams",
		Args:  cobra.NoArgs,
		RunE: r.run("discover", func(ctx context.Context) error {
			raw, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			catalog, err := r.source.Discover(ctx, raw)
			if err != nil {
				return err
			}
			return r.emitter.Emit(&protocol.Message{Type: protocol.TypeCatalog, Catalog: catalog})
		}),
	}
	configFlag(cmd, &configPath)
	return cmd
}

func (r *runner) readCommand() *cobra.Command {
	var configPath, catalogPath, statePath string
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Sync the configured catalog",
		Args:  cobra.NoArgs,
		RunE: r.run("read", func(ctx context.Context) error {
			raw, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := required("catalog", catalogPath); err != nil {
				return err
			}
			catalog, err := protocol.ReadConfiguredCatalog(catalogPath)
			if err != nil {
				return err
			}
			var state core.State
			if statePath != "" {
				msgs, err := protocol.ReadState(statePath)
				if err != nil {
					return err
				}
				state = core.State(msgs)
			}
			return r.source.Read(ctx, raw, catalog, state, r.emitter)
		}),
	}
	configFlag(cmd, &configPath)
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Path to the configured catalog")
	cmd.Flags().StringVar(&statePath, "state", "", "Path to the state file")
	return cmd
}

// Required paths are checked inside the command body rather than with
// MarkFlagRequired so a missing flag is reported as a trace like any other
// failure.
func configFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVar(path, "config", "", "Path to the connector configuration (JSON or YAML)")
}

func required(flag, value string) error {
	if value == "" {
		return errors.Newf(errors.ErrorTypeConfig, "--%s is required", flag)
	}
	return nil
}

// run wraps a command body with a span and reports its error as a trace
func (r *runner) run(name string, fn func(ctx context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		ctx := context.WithValue(cmd.Context(), logger.CommandKey, name)
		ctx, span := observability.StartSpan(ctx, "command", attribute.String("command", name))
		defer func() { observability.EndSpan(span, err) }()

		r.logger.Debug("running command", zap.String("command", name))
		if err = fn(ctx); err != nil {
			r.logger.Error("command failed", zap.String("command", name), zap.Error(err))
			if emitErr := r.emitter.EmitError(err); emitErr != nil {
				r.logger.Error("failed to emit error trace", zap.Error(emitErr))
			}
		}
		return err
	}
}

func loadConfig(path string) (map[string]interface{}, error) {
	if err := required("config", path); err != nil {
		return nil, err
	}
	raw, err := config.LoadRaw(path)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeConfig) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load config "+path)
	}
	return raw, nil
}
