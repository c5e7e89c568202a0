package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store/objectstore"
)

// encodeColumn serializes one column's values to its on-disk chunk form
// (spec §4.3): raw float32 for the fixed-width vector column, a packed
// (blob_id,offset,length) triple array for the opaque-binary column, and
// a plain JSON array for every other type. The JSON form is a
// deliberate simplification of the dictionary+RLE/bit-packed encodings
// the spec sketches for scalar columns; content-hashed chunk files and a
// blob side-store the scan path never touches unless the column is
// projected hold regardless of the scalar encoding chosen. No stats
// footer or checksum is written with the chunk.
func encodeColumn(t schema.ColumnType, values []interface{}, blobs *BlobWriter) ([]byte, error) {
	switch t {
	case schema.FixedFloat32List:
		buf := make([]byte, 0, len(values)*4)
		for _, v := range values {
			vec, _ := v.([]float32)
			for _, f := range vec {
				var b [4]byte
				binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
				buf = append(buf, b[:]...)
			}
		}
		header := make([]byte, 0, len(values)*4)
		for _, v := range values {
			vec, _ := v.([]float32)
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(len(vec)))
			header = append(header, b[:]...)
		}
		out := make([]byte, 4+len(header)+len(buf))
		binary.LittleEndian.PutUint32(out[:4], uint32(len(values)))
		copy(out[4:], header)
		copy(out[4+len(header):], buf)
		return out, nil
	case schema.OpaqueBinary:
		refs := make([]BlobRef, len(values))
		for i, v := range values {
			data, _ := v.([]byte)
			if data == nil {
				refs[i] = BlobRef{}
				continue
			}
			refs[i] = blobs.Append(data)
		}
		return encodeBlobRefs(refs), nil
	default:
		bs, err := json.Marshal(values)
		if err != nil {
			return nil, contextframe.Wrap(contextframe.IOErr, err, "encoding column chunk")
		}
		return bs, nil
	}
}

// decodeColumn is encodeColumn's inverse.
func decodeColumn(t schema.ColumnType, data []byte, n int) ([]interface{}, error) {
	switch t {
	case schema.FixedFloat32List:
		if len(data) < 4 {
			return nil, contextframe.NewError(contextframe.CorruptionErr, "vector column chunk truncated")
		}
		count := int(binary.LittleEndian.Uint32(data[:4]))
		lens := make([]int, count)
		off := 4
		for i := 0; i < count; i++ {
			lens[i] = int(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		out := make([]interface{}, count)
		for i := 0; i < count; i++ {
			vec := make([]float32, lens[i])
			for j := 0; j < lens[i]; j++ {
				vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
				off += 4
			}
			if lens[i] > 0 {
				out[i] = vec
			} else {
				out[i] = nil
			}
		}
		return out, nil
	case schema.OpaqueBinary:
		refs, err := decodeBlobRefs(data)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(refs))
		for i, r := range refs {
			out[i] = r
		}
		return out, nil
	default:
		var raw []interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, contextframe.Wrap(contextframe.CorruptionErr, err, "decoding column chunk")
		}
		return coerceColumn(t, raw), nil
	}
}

// coerceColumn normalizes values decoded from JSON (which yields
// float64/[]interface{} for everything) back to the Go type the rest of
// the engine expects for the given column type.
func coerceColumn(t schema.ColumnType, raw []interface{}) []interface{} {
	switch t {
	case schema.Int64:
		out := make([]interface{}, len(raw))
		for i, v := range raw {
			if f, ok := v.(float64); ok {
				out[i] = int64(f)
			}
		}
		return out
	case schema.VarStructList:
		out := make([]interface{}, len(raw))
		for i, v := range raw {
			if lst, ok := v.([]interface{}); ok {
				fixed := make([]interface{}, len(lst))
				for j, item := range lst {
					if m, ok := item.(map[string]interface{}); ok {
						fixed[j] = m
					} else {
						fixed[j] = item
					}
				}
				out[i] = fixed
			} else {
				out[i] = v
			}
		}
		return out
	default:
		return raw
	}
}

// WrittenFragment is the staged, not-yet-committed output of writing a
// batch of records to a new fragment: the manifest ref plus the raw
// bytes for every file the commit must persist.
type WrittenFragment struct {
	Ref        FragmentRef
	ColumnData map[string][]byte // content-hashed key -> bytes
	BlobData   []byte            // may be empty
}

// WriteFragment encodes records into column chunks and an optional blob
// file, assigning fragmentID as the new fragment's identifier. It does
// not write anything to the object store; the caller (txn.Manager)
// stages the returned bytes and commits them as part of the manifest
// rename (spec §4.4).
func WriteFragment(fragmentID int64, records []*record.Record, reg *schema.Registry) (*WrittenFragment, error) {
	cols := reg.Columns()
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

	blobWriter := NewBlobWriter()
	columnValues := make(map[string][]interface{}, len(cols))
	for _, c := range cols {
		columnValues[c.Name] = make([]interface{}, len(records))
	}
	for i, rec := range records {
		row := toRow(rec)
		for _, c := range cols {
			columnValues[c.Name][i] = row[c.Name]
		}
	}

	ref := FragmentRef{ID: fragmentID, Rows: int64(len(records)), Columns: map[string]string{}}
	out := &WrittenFragment{Ref: ref, ColumnData: map[string][]byte{}}

	for _, c := range cols {
		data, err := encodeColumn(c.Type, columnValues[c.Name], blobWriter)
		if err != nil {
			return nil, contextframe.Wrap(contextframe.IOErr, err, "encoding column %s", c.Name)
		}
		key := "fragments/" + contentHash(data) + ".col"
		out.ColumnData[key] = data
		out.Ref.Columns[c.Name] = key
	}

	if !blobWriter.Empty() {
		out.BlobData = blobWriter.Bytes()
		out.Ref.BlobRef = blobKey(fragmentID)
	}

	return out, nil
}

// ReadColumn fetches and decodes one column of one fragment.
func ReadColumn(ctx context.Context, s objectstore.Store, ref FragmentRef, colName string, colType schema.ColumnType) ([]interface{}, error) {
	key, ok := ref.Columns[colName]
	if !ok {
		// Column missing from this fragment: either added after the
		// fragment was written (nullable, spec §4.2) or never present.
		return make([]interface{}, ref.Rows), nil
	}
	data, err := s.GetRange(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	return decodeColumn(colType, data, int(ref.Rows))
}

// ReadBlob returns a Handle for the opaque-binary value at rowIdx within
// a fragment's raw_data column, without reading the blob file itself.
func ReadBlob(s objectstore.Store, ref FragmentRef, rowIdx int, blobRefs []interface{}) (*Handle, error) {
	if rowIdx < 0 || rowIdx >= len(blobRefs) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "row index %d out of range", rowIdx)
	}
	br, ok := blobRefs[rowIdx].(BlobRef)
	if !ok {
		return nil, contextframe.NewError(contextframe.NotFoundErr, "row %d has no raw_data", rowIdx)
	}
	return NewHandle(s, ref.ID, br), nil
}

// RowToRecord exposes fromRow for packages outside store (query, relate)
// that need to reconstruct a Record from a projected row.
func RowToRecord(row map[string]interface{}) *record.Record {
	return fromRow(row)
}

// RecordToRow exposes toRow for packages that need the column-keyed view
// without going through a full fragment write (e.g. conflict detection
// indexing by uuid).
func RecordToRow(r *record.Record) map[string]interface{} {
	return toRow(r)
}
