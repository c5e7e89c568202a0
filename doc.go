// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package contextframe implements the ContextFrame Dataset Engine: a
// columnar, versioned document store for AI/RAG workloads that fuses a
// record model, a vector ANN index, a full-text inverted index, a scalar
// filter evaluator, and a relationship graph under one consistency model.
//
// The top-level entry point is package dataset, which composes the
// subpackages documented in SPEC_FULL.md:
//
//	record       - the Record/Relationship document model (C1)
//	schema       - the field registry records are validated against (C2)
//	store        - the on-disk fragment/manifest/blob layout (C3)
//	txn          - the transaction manager and commit protocol (C4)
//	vectorindex  - IVF-PQ / IVF-HNSW approximate nearest neighbor search (C5)
//	scalarindex  - btree/bitmap/ngram/label_list/FTS indices (C6)
//	query        - the filter grammar, planner, and scanner (C7)
//	relate       - the relationship subsystem (C8)
//	maintenance  - compaction, version GC, index delta merges (C9)
//	dataset      - the public Dataset/Record API tying the above together
//
// This root package holds only the error taxonomy shared by every
// subpackage.
package contextframe
