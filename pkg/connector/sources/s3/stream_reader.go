package s3

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
	"github.com/ajitpratap0/nebula-source-s3/pkg/metrics"
	"github.com/ajitpratap0/nebula-source-s3/pkg/observability"
)

const (
	defaultRegion = "us-east-1"

	// ExternalIDEnv holds the external ID sent when assuming role_arn
	ExternalIDEnv = "AWS_ASSUME_ROLE_EXTERNAL_ID"

	roleSessionName = "source-s3"

	defaultPartSize    = 16 * 1024 * 1024
	defaultConcurrency = 4
)

// S3 error codes that point at the configuration rather than the service
const (
	codeAccessDenied     = "AccessDenied"
	codeInvalidKeyID     = "InvalidAccessKeyId"
	codeSignature        = "SignatureDoesNotMatch"
	codeNoSuchBucket     = "NoSuchBucket"
	codePermRedirect     = "PermanentRedirect"
	codeAuthHeader       = "AuthorizationHeaderMalformed"
	codeNoSuchKey        = "NoSuchKey"
	codeSlowDown         = "SlowDown"
	codeServiceUnavail   = "ServiceUnavailable"
	codeRequestTimeout   = "RequestTimeout"
	codeInternalError    = "InternalError"
	codeExpiredToken     = "ExpiredToken"
	codeAllAccessDisable = "AllAccessDisabled"
)

// API is the subset of the S3 client used by the reader
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ClientFactory builds the S3 client for a configuration
type ClientFactory func(ctx context.Context, cfg *Config) (API, error)

// StreamReader lists and opens objects of an S3 bucket. It implements
// filebased.StreamReader.
type StreamReader struct {
	mu        sync.Mutex
	config    *Config
	client    API
	newClient ClientFactory

	partSize    int64
	concurrency int

	logger  *zap.Logger
	metrics *metrics.Collector
}

// ReaderOption configures a StreamReader
type ReaderOption func(*StreamReader)

// WithClientFactory replaces the AWS client construction, mainly for tests
func WithClientFactory(f ClientFactory) ReaderOption {
	return func(r *StreamReader) {
		r.newClient = f
	}
}

// WithReaderLogger overrides the logger
func WithReaderLogger(l *zap.Logger) ReaderOption {
	return func(r *StreamReader) {
		r.logger = l
	}
}

// WithReaderMetrics records API calls on m
func WithReaderMetrics(m *metrics.Collector) ReaderOption {
	return func(r *StreamReader) {
		r.metrics = m
	}
}

// WithPartSize sets the ranged download part size used for seekable reads
func WithPartSize(n int64) ReaderOption {
	return func(r *StreamReader) {
		r.partSize = n
	}
}

// NewStreamReader creates an unconfigured reader. SetConfig must be called
// before listing or opening files.
func NewStreamReader(opts ...ReaderOption) *StreamReader {
	r := &StreamReader{
		newClient:   NewClient,
		partSize:    defaultPartSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().With(zap.String("component", "s3_stream_reader"))
	}
	if r.metrics == nil {
		r.metrics = metrics.NewCollector("s3_stream_reader")
	}
	return r
}

// SetConfig implements filebased.StreamReader. The client is rebuilt on
// next use.
func (r *StreamReader) SetConfig(cfg filebased.SourceConfig) error {
	c, ok := cfg.(*Config)
	if !ok {
		return errors.Newf(errors.ErrorTypeConfig, "s3 stream reader needs an *s3.Config, got %T", cfg)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = c
	r.client = nil
	return nil
}

// Config returns the configuration set by SetConfig
func (r *StreamReader) Config() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config
}

func (r *StreamReader) s3Client(ctx context.Context) (API, *Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.config == nil {
		return nil, nil, errors.New(errors.ErrorTypeConfig, "s3 stream reader used before SetConfig")
	}
	if r.client == nil {
		client, err := r.newClient(ctx, r.config)
		if err != nil {
			return nil, nil, err
		}
		r.client = &instrumentedAPI{
			api:     client,
			limiter: newLimiter(r.config.RequestsPerSecond),
			metrics: r.metrics,
		}
	}
	return r.client, r.config, nil
}

// GetMatchingFiles implements filebased.StreamReader. Each static glob
// prefix is listed once; keys are matched against the full globs.
func (r *StreamReader) GetMatchingFiles(ctx context.Context, globs []string, prefix string) (files []filebased.RemoteFile, err error) {
	client, cfg, err := r.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "s3.list", attribute.String("bucket", cfg.Bucket))
	defer func() { observability.EndSpan(span, err) }()

	start, err := cfg.StartTime()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range filebased.GlobPrefixes(globs, prefix) {
		input := &s3.ListObjectsV2Input{Bucket: aws.String(cfg.Bucket)}
		if p != "" {
			input.Prefix = aws.String(p)
		}

		paginator := s3.NewListObjectsV2Paginator(client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, classifyError(err, "ListObjectsV2", cfg.Bucket, p)
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if key == "" || strings.HasSuffix(key, "/") || seen[key] {
					continue
				}
				if !filebased.MatchGlobs(key, globs) {
					continue
				}
				modified := aws.ToTime(obj.LastModified).UTC()
				if !start.IsZero() && modified.Before(start) {
					continue
				}
				seen[key] = true
				files = append(files, filebased.RemoteFile{
					URI:          key,
					LastModified: modified,
					Size:         aws.ToInt64(obj.Size),
					ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				})
			}
		}
	}

	r.logger.Debug("listed bucket",
		zap.String("bucket", cfg.Bucket),
		zap.Strings("globs", globs),
		zap.Int("matched", len(files)))
	return files, nil
}

// OpenFile implements filebased.StreamReader. Text mode streams the object
// body; seekable mode downloads the object into memory with ranged reads.
func (r *StreamReader) OpenFile(ctx context.Context, file filebased.RemoteFile, mode filebased.FileReadMode) (filebased.FileHandle, error) {
	client, cfg, err := r.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(file.URI),
	}

	if mode == filebased.ModeSeekable {
		downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = r.partSize
			d.Concurrency = r.concurrency
		})
		buf := manager.NewWriteAtBuffer(make([]byte, 0, file.Size))
		n, err := downloader.Download(ctx, buf, input)
		if err != nil {
			return nil, classifyError(err, "GetObject", cfg.Bucket, file.URI)
		}
		return memoryFile{bytes.NewReader(buf.Bytes()[:n])}, nil
	}

	out, err := client.GetObject(ctx, input)
	if err != nil {
		return nil, classifyError(err, "GetObject", cfg.Bucket, file.URI)
	}
	return out.Body, nil
}

// memoryFile is a downloaded object. It implements filebased.SeekableFile.
type memoryFile struct {
	*bytes.Reader
}

func (memoryFile) Close() error { return nil }

// instrumentedAPI throttles and counts every call to the wrapped client
type instrumentedAPI struct {
	api     API
	limiter *rate.Limiter
	metrics *metrics.Collector
}

func (c *instrumentedAPI) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRateLimit, "rate limiter wait failed")
	}
	return nil
}

func (c *instrumentedAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.api.ListObjectsV2(ctx, params, optFns...)
	c.metrics.Request("ListObjectsV2", err)
	return out, err
}

func (c *instrumentedAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.api.GetObject(ctx, params, optFns...)
	c.metrics.Request("GetObject", err)
	return out, err
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// NewClient builds an S3 client from cfg. Credentials are taken from the
// assumed role_arn, the static key pair, or none at all for public buckets.
func NewClient(ctx context.Context, cfg *Config) (API, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.RegionName != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.RegionName))
	}
	switch {
	case cfg.AWSAccessKeyID != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	case cfg.RoleARN == "":
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS config")
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	if cfg.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = roleSessionName
			if id := os.Getenv(ExternalIDEnv); id != "" {
				o.ExternalID = aws.String(id)
			}
		})
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := NormalizeEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// classifyError maps S3 failures onto the structured error types. Errors
// the user can fix in the configuration become config errors.
func classifyError(err error, operation, bucket, key string) error {
	var structured *errors.Error
	if errors.As(err, &structured) {
		return err
	}

	errType := errors.ErrorTypeConnection
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case codeAccessDenied, codeInvalidKeyID, codeSignature, codeNoSuchBucket,
			codePermRedirect, codeAuthHeader, codeExpiredToken, codeAllAccessDisable:
			errType = errors.ErrorTypeConfig
		case codeNoSuchKey:
			errType = errors.ErrorTypeNotFound
		case codeSlowDown:
			errType = errors.ErrorTypeRateLimit
		case codeRequestTimeout:
			errType = errors.ErrorTypeTimeout
		case codeServiceUnavail, codeInternalError:
			errType = errors.ErrorTypeConnection
		}
	}

	msg := operation + " failed for bucket " + bucket
	if errType == errors.ErrorTypeConfig {
		msg += ". Please check that the bucket exists and that the credentials can list and read it"
	}
	return errors.Wrap(err, errType, msg).WithDetail("key", key)
}

var _ filebased.StreamReader = (*StreamReader)(nil)
