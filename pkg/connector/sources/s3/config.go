package s3

import (
	_ "embed"
	"net"
	"net/url"
	"strings"

	"github.com/ajitpratap0/nebula-source-s3/pkg/config"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// DocumentationURL is the public documentation of the connector
const DocumentationURL = "https://docs.airbyte.com/integrations/sources/s3"

//go:embed spec.json
var specDocument []byte

// Config is the S3 source configuration
type Config struct {
	filebased.Config

	Bucket             string `json:"bucket"`
	AWSAccessKeyID     string `json:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey string `json:"aws_secret_access_key,omitempty"`
	RoleARN            string `json:"role_arn,omitempty"`
	Endpoint           string `json:"endpoint,omitempty"`
	RegionName         string `json:"region_name,omitempty"`

	// RequestsPerSecond throttles calls to the S3 API. Zero disables the
	// limit.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// Validate checks the S3 settings and the shared file-based settings
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New(errors.ErrorTypeConfig, "bucket is required")
	}
	if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		return errors.New(errors.ErrorTypeConfig, "aws_access_key_id and aws_secret_access_key must be provided together")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New(errors.ErrorTypeConfig, "requests_per_second cannot be negative")
	}
	if err := validateEndpoint(c.Endpoint); err != nil {
		return err
	}
	return c.Config.Validate()
}

// validateEndpoint accepts https endpoints, and plain http only for local
// S3-compatible services
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil
	}
	u, err := url.Parse(NormalizeEndpoint(endpoint))
	if err != nil || u.Host == "" {
		return errors.Newf(errors.ErrorTypeConfig, "endpoint %q is not a valid URL", endpoint)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLocalHost(u.Hostname()) {
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeConfig, "endpoint %q must use https", endpoint)
}

// NormalizeEndpoint adds the https scheme to endpoints given as a bare
// host
func NormalizeEndpoint(endpoint string) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

func isLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// Spec describes and parses the S3 configuration. It implements
// filebased.ConfigSpec.
type Spec struct{}

// Parse decodes raw into a Config. Documents in the legacy layout are
// converted first.
func (Spec) Parse(raw map[string]interface{}) (filebased.SourceConfig, error) {
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig is Parse with the concrete return type
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	var cfg *Config
	if IsLegacyDocument(raw) {
		var legacy LegacyConfig
		if err := config.Decode(raw, &legacy); err != nil {
			return nil, err
		}
		transformed, err := TransformLegacy(legacy)
		if err != nil {
			return nil, err
		}
		cfg = transformed
	} else {
		cfg = &Config{}
		if err := config.Decode(raw, cfg); err != nil {
			return nil, err
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Schema returns the connectionSpecification document
func (Spec) Schema() map[string]interface{} {
	var doc map[string]interface{}
	if err := jsonpool.Unmarshal(specDocument, &doc); err != nil {
		panic(err)
	}
	return doc
}

// DocumentationURL implements filebased.ConfigSpec
func (Spec) DocumentationURL() string {
	return DocumentationURL
}

var _ filebased.ConfigSpec = Spec{}
