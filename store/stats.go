package store

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ColumnStats describes per-column statistics for a fragment's column
// chunk: min/max (as their JSON textual form, since columns are
// heterogeneously typed), null count, the chunk's checksum and an
// optional bloom filter. No code path builds or persists a ColumnStats:
// WriteFragment writes no stats footer, and neither the column reader
// nor the planner looks for one.
type ColumnStats struct {
	MinJSON     string
	MaxJSON     string
	NullCount   int64
	Checksum    uint64
	BloomFilter []byte
}

// computeChecksum returns the xxhash64 digest of a column chunk's
// encoded bytes. The fragment writer and reader call neither it nor
// verifyChecksum, so a read does not check a chunk against a checksum.
func computeChecksum(data []byte) uint64 {
	return xxhash.Sum64(data)
}

func verifyChecksum(data []byte, want uint64) error {
	got := computeChecksum(data)
	if got != want {
		return fmt.Errorf("checksum mismatch: want %x got %x", want, got)
	}
	return nil
}
