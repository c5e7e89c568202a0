package scalarindex

import (
	"sync"

	"github.com/contextframe/contextframe"
)

// Catalog holds every built scalar/FTS index for one dataset version,
// keyed by the index name recorded in the owning store.Manifest's
// IndexCatalogEntry.Name (spec §4.3/§4.6). The query planner consults
// it to decide whether a predicate has an applicable index.
type Catalog struct {
	mu      sync.RWMutex
	btree   map[string]*BTreeIndex
	bitmap  map[string]*BitmapIndex
	labels  map[string]*LabelListIndex
	ngram   map[string]*NgramIndex
	fts     map[string]*FTSIndex
}

func NewCatalog() *Catalog {
	return &Catalog{
		btree:  map[string]*BTreeIndex{},
		bitmap: map[string]*BitmapIndex{},
		labels: map[string]*LabelListIndex{},
		ngram:  map[string]*NgramIndex{},
		fts:    map[string]*FTSIndex{},
	}
}

func (c *Catalog) PutBTree(name string, idx *BTreeIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.btree[name] = idx
}

func (c *Catalog) PutBitmap(name string, idx *BitmapIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bitmap[name] = idx
}

func (c *Catalog) PutLabelList(name string, idx *LabelListIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels[name] = idx
}

func (c *Catalog) PutNgram(name string, idx *NgramIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ngram[name] = idx
}

func (c *Catalog) PutFTS(name string, idx *FTSIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fts[name] = idx
}

func (c *Catalog) BTree(name string) (*BTreeIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.btree[name]
	if !ok {
		return nil, contextframe.NewError(contextframe.NotFoundErr, "no btree index named %q", name)
	}
	return idx, nil
}

func (c *Catalog) Bitmap(name string) (*BitmapIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.bitmap[name]
	if !ok {
		return nil, contextframe.NewError(contextframe.NotFoundErr, "no bitmap index named %q", name)
	}
	return idx, nil
}

func (c *Catalog) LabelList(name string) (*LabelListIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.labels[name]
	if !ok {
		return nil, contextframe.NewError(contextframe.NotFoundErr, "no label_list index named %q", name)
	}
	return idx, nil
}

func (c *Catalog) Ngram(name string) (*NgramIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.ngram[name]
	if !ok {
		return nil, contextframe.NewError(contextframe.NotFoundErr, "no ngram index named %q", name)
	}
	return idx, nil
}

func (c *Catalog) FTS(name string) (*FTSIndex, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.fts[name]
	if !ok {
		return nil, contextframe.NewError(contextframe.NotFoundErr, "no fts index named %q", name)
	}
	return idx, nil
}

// Drop removes any index registered under name, across all kinds.
func (c *Catalog) Drop(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.btree, name)
	delete(c.bitmap, name)
	delete(c.labels, name)
	delete(c.ngram, name)
	delete(c.fts, name)
}
