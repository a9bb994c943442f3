package parsers

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased"
	"github.com/ajitpratap0/nebula-source-s3/pkg/connector/filebased/schema"
	"github.com/ajitpratap0/nebula-source-s3/pkg/errors"
)

const parquetBatchSize = 1024

// ParquetParser reads Parquet files through their Arrow representation.
// Decimals are emitted as strings unless decimal_as_float is set.
type ParquetParser struct{}

// Mode implements filebased.Parser. Parquet keeps its footer at the end of
// the file, so it needs random access.
func (p *ParquetParser) Mode() filebased.FileReadMode {
	return filebased.ModeSeekable
}

// InferSchema implements filebased.Parser. Only the file metadata is read.
func (p *ParquetParser) InferSchema(ctx context.Context, stream filebased.StreamConfig, f filebased.RemoteFile, reader filebased.StreamReader) (schema.Fields, error) {
	var fields schema.Fields
	err := p.withReader(ctx, f, reader, func(fr *pqarrow.FileReader) error {
		arrowSchema, err := fr.Schema()
		if err != nil {
			return err
		}
		fields = make(schema.Fields, arrowSchema.NumFields())
		for _, field := range arrowSchema.Fields() {
			fields[field.Name] = arrowType(field.Type, stream.Format.DecimalAsFloat)
		}
		return nil
	})
	return fields, err
}

// ParseRecords implements filebased.Parser
func (p *ParquetParser) ParseRecords(ctx context.Context, stream filebased.StreamConfig, f filebased.RemoteFile, reader filebased.StreamReader, fields schema.Fields, fn func(filebased.Record) error) error {
	asFloat := stream.Format.DecimalAsFloat
	return p.withReader(ctx, f, reader, func(fr *pqarrow.FileReader) error {
		rr, err := fr.GetRecordReader(ctx, nil, nil)
		if err != nil {
			return err
		}
		defer rr.Release()

		for rr.Next() {
			batch := rr.Record()
			names := batch.Schema().Fields()
			for row := 0; row < int(batch.NumRows()); row++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				record := make(filebased.Record, len(names))
				for col, field := range names {
					record[field.Name] = arrowValue(batch.Column(col), row, asFloat)
				}
				if err := fn(record); err != nil {
					return err
				}
			}
		}
		// the reader reports io.EOF once the last batch has been consumed
		if err := rr.Err(); err != nil && !stderrors.Is(err, io.EOF) {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to read parquet rows")
		}
		return nil
	})
}

func (p *ParquetParser) withReader(ctx context.Context, f filebased.RemoteFile, reader filebased.StreamReader, fn func(*pqarrow.FileReader) error) error {
	sf, err := openSeekable(ctx, reader, f)
	if err != nil {
		return err
	}
	defer sf.Close()

	pf, err := file.NewParquetReader(sf)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "invalid parquet file")
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: parquetBatchSize}, memory.DefaultAllocator)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to read parquet schema")
	}
	return fn(fr)
}

// arrowType maps an Arrow type to its JSON-schema type
func arrowType(dt arrow.DataType, decimalAsFloat bool) schema.Type {
	switch dt.ID() {
	case arrow.BOOL:
		return schema.Boolean
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return schema.Integer
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return schema.Number
	case arrow.DECIMAL128, arrow.DECIMAL256:
		if decimalAsFloat {
			return schema.Number
		}
		return schema.String
	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST:
		return schema.Array
	case arrow.STRUCT, arrow.MAP:
		return schema.Object
	case arrow.DICTIONARY:
		return arrowType(dt.(*arrow.DictionaryType).ValueType, decimalAsFloat)
	case arrow.NULL:
		return schema.Null
	default:
		return schema.String
	}
}

// arrowValue converts the value at row of col to its JSON representation
func arrowValue(col arrow.Array, row int, decimalAsFloat bool) interface{} {
	if col.IsNull(row) {
		return nil
	}

	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(row)
	case *array.Int8:
		return int64(c.Value(row))
	case *array.Int16:
		return int64(c.Value(row))
	case *array.Int32:
		return int64(c.Value(row))
	case *array.Int64:
		return c.Value(row)
	case *array.Uint8:
		return uint64(c.Value(row))
	case *array.Uint16:
		return uint64(c.Value(row))
	case *array.Uint32:
		return uint64(c.Value(row))
	case *array.Uint64:
		return c.Value(row)
	case *array.Float32:
		return float64(c.Value(row))
	case *array.Float64:
		return c.Value(row)
	case *array.String:
		return c.Value(row)
	case *array.LargeString:
		return c.Value(row)
	case *array.Binary:
		return string(c.Value(row))
	case *array.LargeBinary:
		return string(c.Value(row))
	case *array.Decimal128:
		scale := c.DataType().(*arrow.Decimal128Type).Scale
		if decimalAsFloat {
			return c.Value(row).ToFloat64(scale)
		}
		return c.Value(row).ToString(scale)
	case *array.Decimal256:
		s := c.ValueStr(row)
		if decimalAsFloat {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	case *array.Date32:
		return c.Value(row).ToTime().Format("2006-01-02")
	case *array.Date64:
		return c.Value(row).ToTime().Format("2006-01-02")
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(row).ToTime(unit).UTC().Format(time.RFC3339Nano)
	case *array.Struct:
		st := c.DataType().(*arrow.StructType)
		out := make(map[string]interface{}, st.NumFields())
		for i := 0; i < st.NumFields(); i++ {
			out[st.Field(i).Name] = arrowValue(c.Field(i), row, decimalAsFloat)
		}
		return out
	case *array.Map:
		start, end := c.ValueOffsets(row)
		keys, items := c.Keys(), c.Items()
		out := make(map[string]interface{}, end-start)
		for i := start; i < end; i++ {
			out[fmt.Sprint(arrowValue(keys, int(i), decimalAsFloat))] = arrowValue(items, int(i), decimalAsFloat)
		}
		return out
	case array.ListLike:
		start, end := c.ValueOffsets(row)
		values := c.ListValues()
		out := make([]interface{}, 0, end-start)
		for i := start; i < end; i++ {
			out = append(out, arrowValue(values, int(i), decimalAsFloat))
		}
		return out
	case *array.Dictionary:
		return arrowValue(c.Dictionary(), c.GetValueIndex(row), decimalAsFloat)
	default:
		return col.ValueStr(row)
	}
}

var _ filebased.Parser = (*ParquetParser)(nil)
