package filebased

import (
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
)

// ValidationPolicy decides what happens to records that do not match the
// stream schema
type ValidationPolicy string

const (
	// PolicyEmitRecord emits every record
	PolicyEmitRecord ValidationPolicy = "Emit Record"
	// PolicySkipRecord drops records that do not conform
	PolicySkipRecord ValidationPolicy = "Skip Record"
	// PolicyWaitForDiscover stops the stream at the first nonconforming
	// record until the schema is rediscovered
	PolicyWaitForDiscover ValidationPolicy = "Wait for Discover"
)

// Validate checks p is a known policy
func (p ValidationPolicy) Validate() error {
	switch p {
	case PolicyEmitRecord, PolicySkipRecord, PolicyWaitForDiscover:
		return nil
	default:
		return newConfigError("unknown validation_policy %q", string(p))
	}
}

// Apply reports whether record should be emitted and whether the stream
// should stop reading. A nil schema accepts everything.
func (p ValidationPolicy) Apply(record map[string]interface{}, fields schema.Fields) (emit, stop bool) {
	if fields == nil || schema.Conforms(record, fields) {
		return true, false
	}
	switch p {
	case PolicySkipRecord:
		return false, false
	case PolicyWaitForDiscover:
		return false, true
	default:
		return true, false
	}
}
