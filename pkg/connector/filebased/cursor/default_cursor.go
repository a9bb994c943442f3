// Package cursor tracks which files of a stream have already been synced.
//
// The cursor keeps a history of file URI to modification time. The history
// is capped; once full, the oldest entries are evicted and files older than
// the earliest remaining entry are only synced when they fall inside a
// trailing time window.
package cursor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
)

// State keys
const (
	HistoryKey = "history"
	CursorKey  = filebased.SourceFileLastModified
)

// DefaultMaxHistorySize is the number of files remembered per stream
const DefaultMaxHistorySize = 10000

// DefaultCursor is the history based cursor used by file-based streams
type DefaultCursor struct {
	mu             sync.Mutex
	history        map[string]time.Time
	maxHistorySize int
	window         time.Duration
	now            func() time.Time
	logger         *zap.Logger

	// earliest entry of the history loaded from state, used once the
	// history is full
	initialEarliest *filebased.RemoteFile
}

// Option configures a DefaultCursor
type Option func(*DefaultCursor)

// WithMaxHistorySize overrides DefaultMaxHistorySize
func WithMaxHistorySize(n int) Option {
	return func(c *DefaultCursor) {
		c.maxHistorySize = n
	}
}

// WithClock overrides the time source of the sync window
func WithClock(now func() time.Time) Option {
	return func(c *DefaultCursor) {
		c.now = now
	}
}

// WithLogger overrides the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *DefaultCursor) {
		c.logger = l
	}
}

// New creates a cursor for stream
func New(stream filebased.StreamConfig, opts ...Option) *DefaultCursor {
	days := stream.DaysToSyncIfHistoryIsFull
	if days <= 0 {
		days = filebased.DefaultDaysToSyncIfHistoryIsFull
	}
	c := &DefaultCursor{
		history:        make(map[string]time.Time),
		maxHistorySize: DefaultMaxHistorySize,
		window:         time.Duration(days) * 24 * time.Hour,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().With(zap.String("component", "cursor"), zap.String("stream", stream.Name))
	}
	return c
}

// Factory returns a filebased.CursorFactory building default cursors
func Factory(opts ...Option) filebased.CursorFactory {
	return func(stream filebased.StreamConfig) filebased.Cursor {
		return New(stream, opts...)
	}
}

// SetInitialState loads the history from a previous checkpoint
func (c *DefaultCursor) SetInitialState(state map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, _ := state[HistoryKey].(map[string]interface{})
	history := make(map[string]time.Time, len(raw))
	for uri, v := range raw {
		s, ok := v.(string)
		if !ok {
			return errors.Newf(errors.ErrorTypeState, "history entry for %s is not a string", uri)
		}
		t, err := time.Parse(filebased.DateTimeFormat, s)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeState, fmt.Sprintf("history entry for %s has an invalid timestamp", uri))
		}
		history[uri] = t
	}
	c.history = history
	c.initialEarliest = c.earliestLocked()
	return nil
}

// AddFile records file as synced, evicting the oldest entries beyond the
// history limit
func (c *DefaultCursor) AddFile(file filebased.RemoteFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history[file.URI] = file.LastModified.UTC()
	for len(c.history) > c.maxHistorySize {
		oldest := c.earliestLocked()
		delete(c.history, oldest.URI)
	}
}

// FilesToSync returns the files that still need syncing, oldest first
func (c *DefaultCursor) FilesToSync(files []filebased.RemoteFile) []filebased.RemoteFile {
	if c.IsHistoryFull() {
		c.logger.Warn("file history is full, files modified before the sync window may be skipped",
			zap.Int("max_history_size", c.maxHistorySize))
	}
	return FilterFiles(files, c.ShouldSync)
}

// FilterFiles sorts files by modification time and keeps those accepted
// by shouldSync
func FilterFiles(files []filebased.RemoteFile, shouldSync func(filebased.RemoteFile) bool) []filebased.RemoteFile {
	sorted := make([]filebased.RemoteFile, len(files))
	copy(sorted, files)
	filebased.SortFiles(sorted)

	out := sorted[:0]
	for _, f := range sorted {
		if shouldSync(f) {
			out = append(out, f)
		}
	}
	return out
}

// ShouldSync decides whether a single file needs syncing
func (c *DefaultCursor) ShouldSync(file filebased.RemoteFile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if synced, ok := c.history[file.URI]; ok {
		if file.LastModified.Before(synced) {
			c.logger.Warn("file last modified time is older than the synced version",
				zap.String("file", file.URI))
		}
		return file.LastModified.After(synced)
	}

	if !c.isHistoryFullLocked() {
		return true
	}

	earliest := c.initialEarliest
	switch {
	case earliest == nil:
		return true
	case file.LastModified.After(earliest.LastModified):
		return true
	case file.LastModified.Equal(earliest.LastModified):
		return file.URI > earliest.URI
	default:
		return !file.LastModified.Before(c.startTimeLocked())
	}
}

// State returns the checkpoint: the history plus a cursor value made of
// the newest file's timestamp and URI
func (c *DefaultCursor) State() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make(map[string]interface{}, len(c.history))
	for uri, t := range c.history {
		history[uri] = t.UTC().Format(filebased.DateTimeFormat)
	}

	state := map[string]interface{}{HistoryKey: history}
	if latest := c.latestLocked(); latest != nil {
		state[CursorKey] = latest.LastModifiedString() + "_" + latest.URI
	}
	return state
}

// StartTime is the earliest modification time still synced. It is the
// zero time while the history has room.
func (c *DefaultCursor) StartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTimeLocked()
}

// IsHistoryFull reports whether the history reached its limit
func (c *DefaultCursor) IsHistoryFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isHistoryFullLocked()
}

func (c *DefaultCursor) isHistoryFullLocked() bool {
	return len(c.history) >= c.maxHistorySize
}

func (c *DefaultCursor) startTimeLocked() time.Time {
	if !c.isHistoryFullLocked() {
		return time.Time{}
	}
	windowStart := c.now().UTC().Add(-c.window)
	if earliest := c.earliestLocked(); earliest != nil && earliest.LastModified.Before(windowStart) {
		return earliest.LastModified
	}
	return windowStart
}

func (c *DefaultCursor) sortedLocked() []filebased.RemoteFile {
	files := make([]filebased.RemoteFile, 0, len(c.history))
	for uri, t := range c.history {
		files = append(files, filebased.RemoteFile{URI: uri, LastModified: t})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].LastModified.Equal(files[j].LastModified) {
			return files[i].LastModified.Before(files[j].LastModified)
		}
		return files[i].URI < files[j].URI
	})
	return files
}

func (c *DefaultCursor) earliestLocked() *filebased.RemoteFile {
	files := c.sortedLocked()
	if len(files) == 0 {
		return nil
	}
	return &files[0]
}

func (c *DefaultCursor) latestLocked() *filebased.RemoteFile {
	files := c.sortedLocked()
	if len(files) == 0 {
		return nil
	}
	return &files[len(files)-1]
}

var _ filebased.Cursor = (*DefaultCursor)(nil)
