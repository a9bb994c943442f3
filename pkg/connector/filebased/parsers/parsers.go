// Package parsers turns remote files into records for the file-based
// source. Compressed files are detected by extension and decompressed
// transparently.
package parsers

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-source-s3/pkg/compression"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
	"github.com/ajitpratap0/nebula-source-s3/pkg/logger"
)

// Default returns a parser for every supported filetype
func Default() filebased.Parsers {
	log := logger.Get().With(zap.String("component", "parser"))
	return filebased.Parsers{
		filebased.FiletypeCSV:     NewCSVParser(log),
		filebased.FiletypeJSONL:   &JSONLParser{},
		filebased.FiletypeParquet: &ParquetParser{},
		filebased.FiletypeAvro:    &AvroParser{},
	}
}

// decompressedFile closes the decoder and the underlying handle together
type decompressedFile struct {
	io.ReadCloser
	handle filebased.FileHandle
}

func (d *decompressedFile) Close() error {
	err := d.ReadCloser.Close()
	if cerr := d.handle.Close(); err == nil {
		err = cerr
	}
	return err
}

// openText opens file as a forward-only stream, decompressing it when its
// name carries a compression extension
func openText(ctx context.Context, reader filebased.StreamReader, file filebased.RemoteFile) (io.ReadCloser, error) {
	handle, err := reader.OpenFile(ctx, file, filebased.ModeText)
	if err != nil {
		return nil, err
	}
	rc, _, err := compression.Open(file.URI, handle)
	if err != nil {
		handle.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to decompress "+file.URI)
	}
	return &decompressedFile{ReadCloser: rc, handle: handle}, nil
}

// openSeekable opens file with random access
func openSeekable(ctx context.Context, reader filebased.StreamReader, file filebased.RemoteFile) (filebased.SeekableFile, error) {
	handle, err := reader.OpenFile(ctx, file, filebased.ModeSeekable)
	if err != nil {
		return nil, err
	}
	sf, ok := handle.(filebased.SeekableFile)
	if !ok {
		handle.Close()
		return nil, errors.Newf(errors.ErrorTypeInternal, "reader returned a non seekable handle for %s", file.URI)
	}
	return sf, nil
}
