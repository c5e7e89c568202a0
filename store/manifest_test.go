package store_test

import (
	"testing"

	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
)

func TestManifestSchemaRegistryReconstructsEvolvedSchema(t *testing.T) {
	reg := schema.NewDefault(4)
	if err := reg.AddColumn("summary", schema.Utf8); err != nil {
		t.Fatal(err)
	}
	if err := reg.DropColumn("author"); err != nil {
		t.Fatal(err)
	}
	if err := reg.RenameColumn("summary", "abstract"); err != nil {
		t.Fatal(err)
	}

	man := store.NewManifest(1, nil, store.SnapshotSchema(reg), nil, nil, "evolve")
	rebuilt := man.SchemaRegistry()

	col, err := rebuilt.Column("abstract")
	if err != nil {
		t.Fatalf("expected renamed column %q to resolve after reconstruction: %v", "abstract", err)
	}
	if col.Type != schema.Utf8 {
		t.Fatalf("expected reconstructed column type %v, got %v", schema.Utf8, col.Type)
	}
	if rebuilt.EmbedDim() != 4 {
		t.Fatalf("expected embed_dim 4 to survive reconstruction, got %d", rebuilt.EmbedDim())
	}

	if err := rebuilt.ChangeEmbedDim(8); err == nil {
		t.Fatal("expected a reconstructed registry to treat embed_dim as already frozen")
	}

	found := false
	for _, c := range rebuilt.Columns() {
		if c.Name == "author" {
			found = true
			if !c.Dropped {
				t.Fatal("expected dropped column author to survive reconstruction marked Dropped")
			}
		}
	}
	if !found {
		t.Fatal("expected dropped column author to still be present, metadata-only")
	}
}
