package scalarindex

import (
	"hash/fnv"

	"github.com/contextframe/contextframe/util"
)

// rowSetMap is the shared table type behind the bitmap and label_list
// index kinds: a util.HashMap (the teacher's generic hash-map container)
// keyed by string.
type rowSetMap = util.HashMap[string, *RowSet]

func newStringRowSetMap() *rowSetMap {
	return util.NewHashMap[string, *RowSet](stringEqual, stringHash)
}

func stringEqual(a, b any) bool {
	return a.(string) == b.(string)
}

func stringHash(v any) int {
	h := fnv.New32a()
	h.Write([]byte(v.(string)))
	return int(h.Sum32())
}
