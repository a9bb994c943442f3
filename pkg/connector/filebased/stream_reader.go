// Package filebased implements a source over files in an object store.
//
// A Source combines three collaborators: a StreamReader that lists and
// opens remote files, a ConfigSpec that parses the connector configuration,
// and a CursorFactory that decides which files still need syncing. Parsers
// turn file contents into records, one per supported file type.
package filebased

import (
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DateTimeFormat is the layout of timestamps kept in stream state and
// emitted in _ab_source_file_last_modified.
const DateTimeFormat = "2006-01-02T15:04:05.000000Z"

// RemoteFile describes an object in the remote store
type RemoteFile struct {
	URI          string
	LastModified time.Time
	Size         int64
	ETag         string
}

// LastModifiedString formats LastModified in DateTimeFormat
func (f RemoteFile) LastModifiedString() string {
	return f.LastModified.UTC().Format(DateTimeFormat)
}

// FileReadMode selects how a file is opened
type FileReadMode int

const (
	// ModeText returns a forward-only stream
	ModeText FileReadMode = iota
	// ModeSeekable returns a handle with random access, needed by columnar
	// formats that keep their metadata at the end of the file
	ModeSeekable
)

// FileHandle is an open remote file
type FileHandle interface {
	io.Reader
	io.Closer
}

// SeekableFile is returned by OpenFile in ModeSeekable
type SeekableFile interface {
	FileHandle
	io.ReaderAt
	io.Seeker
	Size() int64
}

// StreamReader lists and opens files in a remote store
type StreamReader interface {
	// SetConfig hands the parsed configuration to the reader. It must be
	// called before any other method.
	SetConfig(cfg SourceConfig) error

	// GetMatchingFiles returns the files matching any of globs, each file
	// at most once. prefix narrows the listing for stores that support it.
	GetMatchingFiles(ctx context.Context, globs []string, prefix string) ([]RemoteFile, error)

	// OpenFile opens file for reading in the given mode
	OpenFile(ctx context.Context, file RemoteFile, mode FileReadMode) (FileHandle, error)
}

// MatchGlobs reports whether uri matches any of globs. Globs support "**"
// for any number of path segments.
func MatchGlobs(uri string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, uri); err == nil && ok {
			return true
		}
	}
	return false
}

// ValidateGlobs checks every glob is well formed
func ValidateGlobs(globs []string) error {
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return newConfigError("invalid glob pattern %q", g)
		}
	}
	return nil
}

// GlobPrefixes returns the static prefixes under which matching files can
// live. A prefix covering another is dropped, so listing every returned
// prefix visits each key once. The empty prefix means "list everything".
func GlobPrefixes(globs []string, legacyPrefix string) []string {
	prefixes := make([]string, 0, len(globs))
	for _, g := range globs {
		base, _ := doublestar.SplitPattern(g)
		if base == "." {
			base = ""
		}
		if base != "" && !strings.HasSuffix(base, "/") && base != g {
			base += "/"
		}
		if legacyPrefix != "" && strings.HasPrefix(legacyPrefix, base) {
			base = legacyPrefix
		}
		prefixes = append(prefixes, base)
	}

	sort.Strings(prefixes)
	out := prefixes[:0]
	for _, p := range prefixes {
		if len(out) > 0 && strings.HasPrefix(p, out[len(out)-1]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortFiles orders files by modification time, then by URI
func SortFiles(files []RemoteFile) {
	sort.Slice(files, func(i, j int) bool {
		if !files[i].LastModified.Equal(files[j].LastModified) {
			return files[i].LastModified.Before(files[j].LastModified)
		}
		return files[i].URI < files[j].URI
	})
}
