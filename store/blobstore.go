package store

import (
	"context"
	"encoding/binary"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/store/objectstore"
)

// BlobRef locates one raw_data value inside a fragment's blob side-store
// file as a (blob_id, offset, length) triple, packed in that order
// (spec §4.3). The column
// chunk for an opaque-binary column stores BlobRefs, not bytes; the
// bytes live in <root>/blobs/<fragment_id>.blob. A scan of non-blob
// columns never touches this file.
type BlobRef struct {
	BlobID uint64
	Offset int64
	Length int64
}

// blobKey returns the object-store key of the blob side-store file for
// fragmentID.
func blobKey(fragmentID int64) string {
	return "blobs/" + itoa(fragmentID) + ".blob"
}

// BlobWriter accumulates raw_data values for one fragment and produces
// the packed .blob file plus the BlobRef for each appended value.
type BlobWriter struct {
	buf    []byte
	nextID uint64
}

// NewBlobWriter returns an empty blob writer.
func NewBlobWriter() *BlobWriter {
	return &BlobWriter{}
}

// Append stores data and returns its BlobRef.
func (w *BlobWriter) Append(data []byte) BlobRef {
	ref := BlobRef{BlobID: w.nextID, Offset: int64(len(w.buf)), Length: int64(len(data))}
	w.buf = append(w.buf, data...)
	w.nextID++
	return ref
}

// Bytes returns the packed blob file content built so far.
func (w *BlobWriter) Bytes() []byte {
	return w.buf
}

// Empty reports whether no blob has been appended, in which case the
// fragment has no blob side-store file at all.
func (w *BlobWriter) Empty() bool {
	return len(w.buf) == 0
}

// Handle is a lazily-read view over one blob value, returned to callers
// instead of eagerly materialized bytes (spec §9: blob columns served as
// "file-like" objects).
type Handle struct {
	store objectstore.Store
	key   string
	ref   BlobRef
}

// NewHandle returns a Handle bound to the blob side-store file at key
// for the given ref. Reading is deferred until ReadRange/ReadAll is
// called.
func NewHandle(s objectstore.Store, fragmentID int64, ref BlobRef) *Handle {
	return &Handle{store: s, key: blobKey(fragmentID), ref: ref}
}

// Len returns the blob's total length without reading any bytes.
func (h *Handle) Len() int64 {
	return h.ref.Length
}

// ReadRange reads length bytes starting at offset within this blob
// value (not the whole .blob file).
func (h *Handle) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > h.ref.Length {
		return nil, contextframe.NewError(contextframe.ValidationErr, "blob range [%d,%d) out of bounds for length %d", offset, offset+length, h.ref.Length)
	}
	return h.store.GetRange(ctx, h.key, h.ref.Offset+offset, length)
}

// ReadAll reads the entire blob value.
func (h *Handle) ReadAll(ctx context.Context) ([]byte, error) {
	return h.ReadRange(ctx, 0, h.ref.Length)
}

// encodeBlobRefs/decodeBlobRefs pack a column of BlobRef triples into the
// fixed-width binary form stored in an opaque-binary column chunk.
func encodeBlobRefs(refs []BlobRef) []byte {
	buf := make([]byte, len(refs)*24)
	for i, r := range refs {
		binary.LittleEndian.PutUint64(buf[i*24:], r.BlobID)
		binary.LittleEndian.PutUint64(buf[i*24+8:], uint64(r.Offset))
		binary.LittleEndian.PutUint64(buf[i*24+16:], uint64(r.Length))
	}
	return buf
}

func decodeBlobRefs(data []byte) ([]BlobRef, error) {
	if len(data)%24 != 0 {
		return nil, contextframe.NewError(contextframe.CorruptionErr, "blob ref column chunk has invalid length %d", len(data))
	}
	out := make([]BlobRef, len(data)/24)
	for i := range out {
		off := i * 24
		out[i] = BlobRef{
			BlobID: binary.LittleEndian.Uint64(data[off:]),
			Offset: int64(binary.LittleEndian.Uint64(data[off+8:])),
			Length: int64(binary.LittleEndian.Uint64(data[off+16:])),
		}
	}
	return out, nil
}
