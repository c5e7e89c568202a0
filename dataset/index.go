package dataset

import (
	"context"
	"encoding/json"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/scalarindex"
	"github.com/contextframe/contextframe/store"
	"github.com/contextframe/contextframe/txn"
	"github.com/contextframe/contextframe/vectorindex"
)

// ftsParams is the JSON shape persisted in an IndexCatalogEntry.Params
// field for a "fts" entry: the columns it spans and the tokenization it
// was built with, both needed to rebuild the in-memory FTSIndex on open.
type ftsParams struct {
	Columns  []string                   `json:"columns"`
	Tokenize scalarindex.TokenizeOptions `json:"tokenize"`
}

// IndexInfo describes one entry in a dataset's index catalog (spec
// §6.2's list_indices()).
type IndexInfo struct {
	Name   string
	Kind   string
	Column string
}

// rebuildIndexes reconstructs every in-memory scalar/vector/FTS index
// structure from ds.manifest.Indices by re-scanning the source column(s)
// — this engine persists only the catalog entry (name/kind/column/
// params), never the index's own bytes, so "loading" an index is always
// "rebuilding" it (spec §4.6/§4.5: the manifest records what indexes
// exist; the bytes live only in the process that built them).
func (ds *Dataset) rebuildIndexes(ctx context.Context) error {
	for _, e := range ds.manifest.Indices {
		switch scalarindex.Kind(e.Kind) {
		case scalarindex.BTree:
			values, rows, err := ds.extractFloat64(ctx, e.Column)
			if err != nil {
				return err
			}
			idx, err := scalarindex.BuildBTree(e.Column, values, rows)
			if err != nil {
				return err
			}
			ds.catalog.PutBTree(e.Name, idx)
			ds.bindings = append(ds.bindings, query.IndexBinding{Column: e.Column, Kind: scalarindex.BTree, Name: e.Name})

		case scalarindex.Bitmap:
			values, isNull, rows, err := ds.extractStrings(ctx, e.Column)
			if err != nil {
				return err
			}
			idx, err := scalarindex.BuildBitmap(e.Column, values, rows, isNull)
			if err != nil {
				return err
			}
			ds.catalog.PutBitmap(e.Name, idx)
			ds.bindings = append(ds.bindings, query.IndexBinding{Column: e.Column, Kind: scalarindex.Bitmap, Name: e.Name})

		case scalarindex.LabelList:
			values, rows, err := ds.extractStringLists(ctx, e.Column)
			if err != nil {
				return err
			}
			idx, err := scalarindex.BuildLabelList(e.Column, values, rows)
			if err != nil {
				return err
			}
			ds.catalog.PutLabelList(e.Name, idx)
			ds.bindings = append(ds.bindings, query.IndexBinding{Column: e.Column, Kind: scalarindex.LabelList, Name: e.Name})

		case scalarindex.Ngram:
			values, _, rows, err := ds.extractStrings(ctx, e.Column)
			if err != nil {
				return err
			}
			idx, err := scalarindex.BuildNgram(e.Column, values, rows)
			if err != nil {
				return err
			}
			ds.catalog.PutNgram(e.Name, idx)
			ds.bindings = append(ds.bindings, query.IndexBinding{Column: e.Column, Kind: scalarindex.Ngram, Name: e.Name})

		case scalarindex.FTS:
			var params ftsParams
			if err := json.Unmarshal([]byte(e.Params), &params); err != nil {
				return contextframe.Wrap(contextframe.CorruptionErr, err, "decoding fts index %q params", e.Name)
			}
			idx := scalarindex.BuildFTS(params.Columns, params.Tokenize)
			rows, texts, err := ds.extractConcatText(ctx, params.Columns)
			if err != nil {
				return err
			}
			for i, row := range rows {
				idx.AddDocument(row, texts[i])
			}
			ds.ftsIndexes[e.Name] = idx
			ds.ftsColumns[e.Name] = params.Columns

		default: // one of vectorindex.Kind's values
			var params vectorindex.BuildParams
			if err := json.Unmarshal([]byte(e.Params), &params); err != nil {
				return contextframe.Wrap(contextframe.CorruptionErr, err, "decoding vector index %q params", e.Name)
			}
			vectors, rows, err := ds.extractVectors(ctx, e.Column)
			if err != nil {
				return err
			}
			idx, err := vectorindex.Build(vectors, rows, params)
			if err != nil {
				return err
			}
			ds.vecIndexes[e.Name] = idx
		}
	}
	return nil
}

// CreateVectorIndex builds an ANN index over column and commits its
// catalog entry (spec §6.2's create_vector_index(column, kind, params)).
// Returns the index's name.
func (ds *Dataset) CreateVectorIndex(ctx context.Context, column string, kind vectorindex.Kind, params vectorindex.BuildParams) (string, error) {
	if _, err := ds.reg.Column(column); err != nil {
		return "", err
	}
	params.Kind = kind
	name := column + "_" + string(kind)

	encoded, err := json.Marshal(params)
	if err != nil {
		return "", contextframe.Wrap(contextframe.InternalErr, err, "encoding vector index params")
	}

	if err := ds.commitIndex(ctx, &store.IndexCatalogEntry{
		Name:              name,
		Kind:              string(kind),
		Column:            column,
		Params:            string(encoded),
		ValidForFragments: fragmentIDs(ds.manifest.Fragments),
	}, "create_vector_index: "+name); err != nil {
		return "", err
	}
	return name, nil
}

// CreateScalarIndex builds a btree/bitmap/label_list/ngram index over
// column and commits its catalog entry (spec §6.2's
// create_scalar_index(column, kind, options)).
func (ds *Dataset) CreateScalarIndex(ctx context.Context, column string, kind scalarindex.Kind) (string, error) {
	if kind == scalarindex.FTS {
		return "", contextframe.NewError(contextframe.ValidationErr, "use CreateFTSIndex for kind %q", kind)
	}
	if _, err := ds.reg.Column(column); err != nil {
		return "", err
	}
	name := column + "_" + string(kind)

	if err := ds.commitIndex(ctx, &store.IndexCatalogEntry{
		Name:              name,
		Kind:              string(kind),
		Column:            column,
		ValidForFragments: fragmentIDs(ds.manifest.Fragments),
	}, "create_scalar_index: "+name); err != nil {
		return "", err
	}
	return name, nil
}

// CreateFTSIndex builds a BM25 full-text index spanning columns and
// commits its catalog entry. tokenize, if nil, uses ds.opts.Tokenize.
func (ds *Dataset) CreateFTSIndex(ctx context.Context, columns []string, tokenize *scalarindex.TokenizeOptions) (string, error) {
	if len(columns) == 0 {
		return "", contextframe.NewError(contextframe.ValidationErr, "full-text index needs at least one column")
	}
	for _, c := range columns {
		if _, err := ds.reg.Column(c); err != nil {
			return "", err
		}
	}
	opts := ds.opts.Tokenize
	if tokenize != nil {
		opts = *tokenize
	}
	name := "fts"
	for _, c := range columns {
		name += "_" + c
	}

	encoded, err := json.Marshal(ftsParams{Columns: columns, Tokenize: opts})
	if err != nil {
		return "", contextframe.Wrap(contextframe.InternalErr, err, "encoding fts index params")
	}

	if err := ds.commitIndex(ctx, &store.IndexCatalogEntry{
		Name:              name,
		Kind:              string(scalarindex.FTS),
		Column:            columns[0],
		Params:            string(encoded),
		ValidForFragments: fragmentIDs(ds.manifest.Fragments),
	}, "create_fts_index: "+name); err != nil {
		return "", err
	}
	return name, nil
}

// DropIndex removes name from the catalog (spec §6.2's drop_index(name)).
func (ds *Dataset) DropIndex(ctx context.Context, name string) error {
	newVersion, err := ds.mgr.CommitWithRetry(ctx, 5, func(ctx context.Context, base int64) (txn.Request, error) {
		return txn.Request{Kind: txn.DropIndex, Message: "drop_index: " + name, DropIndexName: name}, nil
	})
	if err != nil {
		return err
	}
	return ds.checkoutVersion(ctx, newVersion)
}

// ListIndices returns every entry currently in the catalog (spec §6.2's
// list_indices()).
func (ds *Dataset) ListIndices() []IndexInfo {
	out := make([]IndexInfo, len(ds.manifest.Indices))
	for i, e := range ds.manifest.Indices {
		out[i] = IndexInfo{Name: e.Name, Kind: e.Kind, Column: e.Column}
	}
	return out
}

// commitIndex commits a single AddIndex transaction and re-checks out
// the dataset at the resulting version, which rebuilds every index
// (including the freshly added one) from the new manifest.
func (ds *Dataset) commitIndex(ctx context.Context, entry *store.IndexCatalogEntry, message string) error {
	newVersion, err := ds.mgr.CommitWithRetry(ctx, 5, func(ctx context.Context, base int64) (txn.Request, error) {
		return txn.Request{Kind: txn.CreateIndex, Message: message, AddIndex: entry}, nil
	})
	if err != nil {
		return err
	}
	return ds.checkoutVersion(ctx, newVersion)
}

func fragmentIDs(fragments []store.FragmentRef) []int64 {
	out := make([]int64, len(fragments))
	for i, f := range fragments {
		out[i] = f.ID
	}
	return out
}
