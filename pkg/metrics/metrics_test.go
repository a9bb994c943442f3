package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector("source_s3")

	c.RecordEmitted("orders", 3)
	c.RecordEmitted("orders", 2)
	c.RecordSkipped("orders")
	c.FileSynced("orders", 1024)
	c.FileSynced("orders", 0)
	c.ParseError("users")

	assert.Equal(t, 5.0, testutil.ToFloat64(c.recordsEmitted.WithLabelValues("orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recordsSkipped.WithLabelValues("orders")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.filesSynced.WithLabelValues("orders")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(c.bytesRead.WithLabelValues("orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.parseErrors.WithLabelValues("users")))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("a")
	b := NewCollector("b")

	a.RecordEmitted("orders", 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.recordsEmitted.WithLabelValues("orders")))
}

func TestRequestStatus(t *testing.T) {
	c := NewCollector("source_s3")
	c.Request("ListObjectsV2", nil)
	c.Request("GetObject", errors.New("denied"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("ListObjectsV2", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GetObject", "error")))
}

func TestSummary(t *testing.T) {
	c := NewCollector("source_s3")
	c.RecordEmitted("orders", 7)
	c.FilesMatched("orders", 2)
	c.Timer("orders").ObserveDuration()

	summary := c.Summary()
	assert.Equal(t, 7.0, summary["source_s3_records_emitted_total{stream=orders}"])
	assert.Equal(t, 2.0, summary["source_s3_files_matched{stream=orders}"])
	assert.Equal(t, 1.0, summary["source_s3_file_read_duration_seconds{stream=orders}"])
}
