package dataset

import (
	"context"
	"strings"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
)

// extractFloat64 scans column in full and returns its values coerced to
// float64 alongside the row address each value came from, the shape
// scalarindex.BuildBTree needs. Only columns with a numeric mapping
// below contribute values; for any other column every row is skipped
// and the result is empty.
func (ds *Dataset) extractFloat64(ctx context.Context, column string) (values []float64, rows []int64, err error) {
	sc, err := ds.fullColumnScanner(ctx, column)
	if err != nil {
		return nil, nil, err
	}
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			return values, rows, nil
		}
		for i, rec := range batch.Records {
			f, ok := numericField(rec, column)
			if !ok {
				continue
			}
			values = append(values, f)
			rows = append(rows, batch.RowAddresses[i])
		}
	}
}

// extractStrings scans column in full and returns its string values,
// whether each is null (empty), and the originating row address — the
// shape scalarindex.BuildBitmap needs.
func (ds *Dataset) extractStrings(ctx context.Context, column string) (values []string, isNull []bool, rows []int64, err error) {
	sc, err := ds.fullColumnScanner(ctx, column)
	if err != nil {
		return nil, nil, nil, err
	}
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		if batch == nil {
			return values, isNull, rows, nil
		}
		for i, rec := range batch.Records {
			v, ok := stringField(rec, column)
			if !ok {
				return nil, nil, nil, contextframe.NewError(contextframe.ValidationErr, "column %q has no string extraction defined", column)
			}
			values = append(values, v)
			isNull = append(isNull, v == "")
			rows = append(rows, batch.RowAddresses[i])
		}
	}
}

// extractStringLists scans column in full and returns its array values
// plus originating row address — the shape scalarindex.BuildLabelList
// and scalarindex.BuildNgram (after flattening) need.
func (ds *Dataset) extractStringLists(ctx context.Context, column string) (values [][]string, rows []int64, err error) {
	sc, err := ds.fullColumnScanner(ctx, column)
	if err != nil {
		return nil, nil, err
	}
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			return values, rows, nil
		}
		for i, rec := range batch.Records {
			v, ok := listField(rec, column)
			if !ok {
				return nil, nil, contextframe.NewError(contextframe.ValidationErr, "column %q has no array extraction defined", column)
			}
			values = append(values, v)
			rows = append(rows, batch.RowAddresses[i])
		}
	}
}

// extractVectors scans column in full and returns its vectors plus
// originating row address — the shape vectorindex.Build needs. Rows
// with a nil/unset vector are skipped (Build also filters NaN vectors;
// an absent vector is the same "cannot index this row" case).
func (ds *Dataset) extractVectors(ctx context.Context, column string) (vectors [][]float32, rows []int64, err error) {
	sc, err := ds.fullColumnScanner(ctx, column)
	if err != nil {
		return nil, nil, err
	}
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			return vectors, rows, nil
		}
		for i, rec := range batch.Records {
			if len(rec.Vector) == 0 {
				continue
			}
			vectors = append(vectors, rec.Vector)
			rows = append(rows, batch.RowAddresses[i])
		}
	}
}

// extractConcatText scans columns in full and returns, per live row, its
// row address and the whitespace-concatenation of every named column's
// text — the per-document string scalarindex.FTSIndex.AddDocument wants
// for a multi-column index. Columns are concatenated at index-build
// time; the inverted index does not track which column a term came
// from.
func (ds *Dataset) extractConcatText(ctx context.Context, columns []string) (rows []int64, texts []string, err error) {
	req := query.DefaultScanRequest()
	req.Columns = append([]string{}, columns...)
	req.WithRowAddress = true
	sc, err := query.NewScanner(ds.st, ds.reg, ds.manifest, nil, nil, nil, req)
	if err != nil {
		return nil, nil, err
	}
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, nil, err
		}
		if batch == nil {
			return rows, texts, nil
		}
		for i, rec := range batch.Records {
			parts := make([]string, 0, len(columns))
			for _, c := range columns {
				if v, ok := stringField(rec, c); ok && v != "" {
					parts = append(parts, v)
				}
			}
			rows = append(rows, batch.RowAddresses[i])
			texts = append(texts, strings.Join(parts, " "))
		}
	}
}

func (ds *Dataset) fullColumnScanner(ctx context.Context, column string) (*query.Scanner, error) {
	req := query.DefaultScanRequest()
	req.Columns = []string{column}
	req.WithRowAddress = true
	return query.NewScanner(ds.st, ds.reg, ds.manifest, nil, nil, nil, req)
}

// numericField maps a column name to the record.Record field an index
// over it orders by.
func numericField(rec *record.Record, column string) (float64, bool) {
	switch column {
	case "collection_position":
		return float64(rec.CollectionPosition), true
	default:
		return 0, false
	}
}

// stringField maps a column name to its scalar string representation.
// Empty string is treated as null throughout this package's index
// builders.
func stringField(rec *record.Record, column string) (string, bool) {
	switch column {
	case "uuid":
		return rec.UUID, true
	case "title":
		return rec.Title, true
	case "text_content":
		return rec.TextContent, true
	case "version":
		return rec.Version, true
	case "author":
		return rec.Author, true
	case "status":
		return rec.Status, true
	case "collection":
		return rec.Collection, true
	case "collection_id":
		return rec.CollectionID, true
	case "record_type":
		return string(rec.RecordType), true
	case "raw_data_type":
		return rec.RawDataType, true
	default:
		return "", false
	}
}

// isNullField reports whether rec holds no value for column, used by
// Stats's per-column null count. created_at/updated_at are never null
// (New always sets them); collection_position has no null tracking
// (record.Record's hasCollectionPos flag is write-time-only, never
// surfaced) so is conservatively reported as always set.
func isNullField(rec *record.Record, column string) bool {
	switch column {
	case "tags", "contributors":
		v, _ := listField(rec, column)
		return len(v) == 0
	case "custom_metadata":
		return len(rec.CustomMetadata) == 0
	case "relationships":
		return len(rec.Relationships) == 0
	case "context":
		return len(rec.Context) == 0
	case "created_at", "updated_at", "collection_position":
		return false
	default:
		v, ok := stringField(rec, column)
		return ok && v == ""
	}
}

// listField maps a column name to its array-of-string representation.
func listField(rec *record.Record, column string) ([]string, bool) {
	switch column {
	case "tags":
		return rec.Tags, true
	case "contributors":
		return rec.Contributors, true
	default:
		return nil, false
	}
}
