package store

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// contentHash returns the hex-encoded BLAKE3 digest of data, used to name
// column chunk, deletion-vector and staging files so that two commits
// writing identical bytes share the same file (spec §6.3). Blob files are
// named by fragment id and manifests by version.
func contentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
