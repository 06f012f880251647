package client

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Column names of encoded record batches.
const (
	TextColumn = "text"
	IDsColumn  = "ids"
)

var ErrNoColumn = errors.New("record has no usable column")

// RecordBatchBuilder creates Arrow record batches from encoded vectors.
type RecordBatchBuilder struct {
	mem memory.Allocator
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// EncodedSchema returns the schema of BuildRecordBatch output.
func EncodedSchema(withText bool) *arrow.Schema {
	fields := []arrow.Field{{Name: IDsColumn, Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)}}
	if withText {
		fields = append([]arrow.Field{{Name: TextColumn, Type: arrow.BinaryTypes.String}}, fields...)
	}
	return arrow.NewSchema(fields, nil)
}

// BuildRecordBatch converts encoded vectors into a record batch with an ids
// list<int64> column, preceded by a text column when texts is non-nil.
func (b *RecordBatchBuilder) BuildRecordBatch(texts []string, vectors [][]int64) (arrow.RecordBatch, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	if texts != nil && len(texts) != len(vectors) {
		return nil, fmt.Errorf("%d texts for %d vectors", len(texts), len(vectors))
	}

	schema := EncodedSchema(texts != nil)
	cols := make([]arrow.Array, 0, 2)
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	if texts != nil {
		sb := array.NewStringBuilder(b.mem)
		defer sb.Release()
		sb.AppendValues(texts, nil)
		cols = append(cols, sb.NewArray())
	}

	listBuilder := array.NewListBuilder(b.mem, arrow.PrimitiveTypes.Int64)
	defer listBuilder.Release()
	valueBuilder := listBuilder.ValueBuilder().(*array.Int64Builder)
	for _, v := range vectors {
		listBuilder.Append(true)
		valueBuilder.AppendValues(v, nil)
	}
	cols = append(cols, listBuilder.NewArray())

	return array.NewRecordBatch(schema, cols, int64(len(vectors))), nil
}

// TextsFromRecord reads the text column of rec, or its first column when none
// is named "text". String, LargeString and Binary columns are accepted.
func TextsFromRecord(rec arrow.RecordBatch) ([]string, error) {
	if rec.NumCols() == 0 {
		return nil, ErrNoColumn
	}
	col := rec.Column(0)
	if idx := rec.Schema().FieldIndices(TextColumn); len(idx) > 0 {
		col = rec.Column(idx[0])
	}

	texts := make([]string, col.Len())
	switch arr := col.(type) {
	case *array.String:
		for i := range texts {
			texts[i] = arr.Value(i)
		}
	case *array.LargeString:
		for i := range texts {
			texts[i] = arr.Value(i)
		}
	case *array.Binary:
		for i := range texts {
			texts[i] = string(arr.Value(i))
		}
	default:
		return nil, fmt.Errorf("%w: text column has type %s", ErrNoColumn, col.DataType())
	}
	return texts, nil
}

// VectorsFromRecord reads the ids list<int64> column of rec.
func VectorsFromRecord(rec arrow.RecordBatch) ([][]int64, error) {
	idx := rec.Schema().FieldIndices(IDsColumn)
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: missing %q", ErrNoColumn, IDsColumn)
	}
	list, ok := rec.Column(idx[0]).(*array.List)
	if !ok {
		return nil, fmt.Errorf("%w: %q has type %s", ErrNoColumn, IDsColumn, rec.Column(idx[0]).DataType())
	}
	values, ok := list.ListValues().(*array.Int64)
	if !ok {
		return nil, fmt.Errorf("%w: %q values have type %s", ErrNoColumn, IDsColumn, list.ListValues().DataType())
	}

	vectors := make([][]int64, list.Len())
	for i := range vectors {
		start, end := list.ValueOffsets(i)
		v := make([]int64, end-start)
		for j := range v {
			v[j] = values.Value(int(start) + j)
		}
		vectors[i] = v
	}
	return vectors, nil
}
