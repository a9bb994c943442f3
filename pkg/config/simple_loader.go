// Package config loads connector configuration documents.
//
// Files ending in .yaml or .yml are parsed as YAML after ${VAR_NAME}
// references are replaced with environment values. Anything else is parsed
// as JSON, verbatim.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	jsonpool "github.com/ajitpratap0/nebula-source-s3/pkg/json"
)

// LoadRaw reads a configuration file into a generic document
func LoadRaw(filePath string) (map[string]interface{}, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller and validated
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	var doc map[string]interface{}
	if isYAML(filePath) {
		content := substituteEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
		}
	} else {
		if err := jsonpool.UnmarshalNumber(data, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse JSON")
		}
	}

	if doc == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "config file is empty")
	}
	return doc, nil
}

// Load reads a configuration file into config. Struct fields are matched
// by their json tags regardless of the file format.
func Load(filePath string, config interface{}) error {
	doc, err := LoadRaw(filePath)
	if err != nil {
		return err
	}
	return Decode(doc, config)
}

// Decode converts a generic document into config through its json tags
func Decode(doc map[string]interface{}, config interface{}) error {
	data, err := jsonpool.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to encode config")
	}
	if err := jsonpool.Unmarshal(data, config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}
	return nil
}

func isYAML(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
