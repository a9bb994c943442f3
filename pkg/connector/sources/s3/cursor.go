package s3

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/cursor"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
)

// State written by the single-stream connector layout
const (
	legacyDateFormat     = "2006-01-02"
	legacyDateTimeFormat = "2006-01-02T15:04:05Z"

	// MinSyncDateKey holds the earliest modification time synced after a
	// migration from the legacy state
	MinSyncDateKey = "v3_min_sync_date"

	migrationBuffer = time.Hour
)

// Cursor is the S3 cursor. It behaves like the default cursor and in
// addition understands the legacy state layout, where history maps a day
// to the files synced on it.
type Cursor struct {
	*cursor.DefaultCursor

	mu               sync.Mutex
	runningMigration bool
	minSyncDate      time.Time
	logger           *zap.Logger
}

// NewCursor creates the cursor of stream
func NewCursor(stream filebased.StreamConfig, opts ...cursor.Option) *Cursor {
	return &Cursor{
		DefaultCursor: cursor.New(stream, opts...),
		logger:        logger.Get().With(zap.String("component", "s3_cursor"), zap.String("stream", stream.Name)),
	}
}

// CursorFactory returns a filebased.CursorFactory building S3 cursors
func CursorFactory(opts ...cursor.Option) filebased.CursorFactory {
	return func(stream filebased.StreamConfig) filebased.Cursor {
		return NewCursor(stream, opts...)
	}
}

// SetInitialState implements filebased.Cursor. Legacy state is converted
// before it is loaded, and every file not older than the legacy cursor
// minus one hour is synced again during that first run.
func (c *Cursor) SetInitialState(state map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.runningMigration = false
	if isLegacyState(state) {
		converted, err := convertLegacyState(state)
		if err != nil {
			return err
		}
		c.logger.Info("converting legacy state",
			zap.Any("legacy_cursor", state[cursor.CursorKey]),
			zap.Int("files", len(converted[cursor.HistoryKey].(map[string]interface{}))))
		c.runningMigration = true
		state = converted
	}

	c.minSyncDate = time.Time{}
	if raw, ok := state[MinSyncDateKey]; ok {
		s, _ := raw.(string)
		t, err := time.Parse(filebased.DateTimeFormat, s)
		if err != nil {
			return errors.Newf(errors.ErrorTypeState, "%s %q is not a valid timestamp", MinSyncDateKey, s)
		}
		c.minSyncDate = t
	}

	return c.DefaultCursor.SetInitialState(state)
}

// FilesToSync implements filebased.Cursor
func (c *Cursor) FilesToSync(files []filebased.RemoteFile) []filebased.RemoteFile {
	if c.IsHistoryFull() {
		c.logger.Warn("file history is full, files modified before the sync window may be skipped")
	}
	return cursor.FilterFiles(files, c.ShouldSync)
}

// ShouldSync skips files older than the migration cutoff, syncs every
// other file while a migration runs and otherwise defers to the default
// cursor.
func (c *Cursor) ShouldSync(file filebased.RemoteFile) bool {
	c.mu.Lock()
	minSync, migrating := c.minSyncDate, c.runningMigration
	c.mu.Unlock()

	switch {
	case !minSync.IsZero() && file.LastModified.Before(minSync):
		return false
	case migrating:
		return true
	default:
		return c.DefaultCursor.ShouldSync(file)
	}
}

// State implements filebased.Cursor
func (c *Cursor) State() map[string]interface{} {
	state := c.DefaultCursor.State()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.minSyncDate.IsZero() {
		state[MinSyncDateKey] = c.minSyncDate.UTC().Format(filebased.DateTimeFormat)
	}
	return state
}

// isLegacyState reports whether history is keyed by day and the cursor
// uses the second-precision layout
func isLegacyState(state map[string]interface{}) bool {
	if len(state) == 0 {
		return false
	}
	if history, ok := state[cursor.HistoryKey].(map[string]interface{}); ok {
		for day := range history {
			if _, err := time.Parse(legacyDateFormat, day); err != nil {
				return false
			}
		}
	}
	value, _ := state[cursor.CursorKey].(string)
	if value == "" {
		return false
	}
	_, err := time.Parse(legacyDateTimeFormat, value)
	return err == nil
}

// convertLegacyState turns {"history": {day: [uri...]}} into the current
// {"history": {uri: timestamp}} layout. A file listed on several days keeps
// the latest one.
func convertLegacyState(state map[string]interface{}) (map[string]interface{}, error) {
	legacyCursor, err := time.Parse(legacyDateTimeFormat, state[cursor.CursorKey].(string))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "legacy cursor is not a valid timestamp")
	}

	converted := make(map[string]time.Time)
	history, _ := state[cursor.HistoryKey].(map[string]interface{})
	for day, raw := range history {
		date, err := time.Parse(legacyDateFormat, day)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeState, "legacy history day is not a valid date")
		}
		ts := adjustedTimestamp(legacyCursor, date)

		uris, ok := raw.([]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeState, "legacy history for %s is not a list of files", day)
		}
		for _, u := range uris {
			uri, ok := u.(string)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeState, "legacy history for %s contains a non-string file", day)
			}
			if prev, seen := converted[uri]; !seen || ts.After(prev) {
				converted[uri] = ts
			}
		}
	}

	out := make(map[string]interface{}, len(converted))
	for uri, ts := range converted {
		out[uri] = ts.Format(filebased.DateTimeFormat)
	}
	result := map[string]interface{}{
		cursor.HistoryKey: out,
		MinSyncDateKey:    legacyCursor.Add(-migrationBuffer).Format(filebased.DateTimeFormat),
	}
	if latest := latestEntry(converted); latest != "" {
		result[cursor.CursorKey] = converted[latest].Format(filebased.DateTimeFormat) + "_" + latest
	}
	return result, nil
}

// adjustedTimestamp is the modification time assumed for files synced on
// date. Files from the cursor's day take the cursor itself; earlier days
// take their last instant.
func adjustedTimestamp(legacyCursor, date time.Time) time.Time {
	y, m, d := legacyCursor.Date()
	if date.Year() == y && date.Month() == m && date.Day() == d {
		return legacyCursor
	}
	return date.AddDate(0, 0, 1).Add(-time.Microsecond)
}

func latestEntry(history map[string]time.Time) string {
	uris := make([]string, 0, len(history))
	for uri := range history {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool {
		a, b := history[uris[i]], history[uris[j]]
		if !a.Equal(b) {
			return a.Before(b)
		}
		return uris[i] < uris[j]
	})
	if len(uris) == 0 {
		return ""
	}
	return uris[len(uris)-1]
}

var _ filebased.Cursor = (*Cursor)(nil)
