package record_test

import (
	"strings"
	"testing"

	"github.com/contextframe/contextframe"
	"github.com/contextframe/contextframe/record"
)

type fakeSchema struct{ dim int }

func (f fakeSchema) EmbedDim() int { return f.dim }

func TestNewGeneratesUUIDAndTimestamps(t *testing.T) {
	r, err := record.New("A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.UUID == "" {
		t.Fatal("expected non-empty uuid")
	}
	if r.CreatedAt == "" || r.UpdatedAt == "" {
		t.Fatal("expected created_at/updated_at to be set")
	}
	if r.CreatedAt != r.UpdatedAt {
		t.Fatalf("expected created_at == updated_at on construction, got %s vs %s", r.CreatedAt, r.UpdatedAt)
	}
	if r.RecordType != record.TypeDocument {
		t.Fatalf("expected default record_type document, got %s", r.RecordType)
	}
}

func TestNewEmptyTitleFails(t *testing.T) {
	_, err := record.New("   ")
	if !contextframe.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTouchRefreshesUpdatedAt(t *testing.T) {
	r, err := record.New("A")
	if err != nil {
		t.Fatal(err)
	}
	before := r.UpdatedAt
	r.Touch()
	if r.UpdatedAt == before {
		t.Skip("clock resolution too coarse to observe change in this environment")
	}
}

func TestAddRelationshipRejectsUnknownType(t *testing.T) {
	r, _ := record.New("A")
	err := r.AddRelationship(record.Relationship{Type: "bogus", UUID: "x"})
	if !contextframe.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAddRelationshipRejectsMultipleTargets(t *testing.T) {
	r, _ := record.New("A")
	err := r.AddRelationship(record.Relationship{Type: record.RelChild, UUID: "x", URI: "y"})
	if !contextframe.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAddRelationshipRejectsNoTarget(t *testing.T) {
	r, _ := record.New("A")
	err := r.AddRelationship(record.Relationship{Type: record.RelChild})
	if !contextframe.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAddRelationshipOK(t *testing.T) {
	r, _ := record.New("A")
	if err := r.AddRelationship(record.Relationship{Type: record.RelChild, UUID: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(r.Relationships))
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	r, _ := record.New("A")
	r.Vector = []float32{1, 2, 3}
	r.RawData = []byte("x")
	r.CustomMetadata = map[string]string{"k": string([]byte{0xff, 0xfe})}

	err := r.Validate(fakeSchema{dim: 4})
	if !contextframe.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	cfErr, ok := err.(*contextframe.Error)
	if !ok {
		t.Fatalf("expected *contextframe.Error, got %T", err)
	}
	if len(cfErr.Violations) < 3 {
		t.Fatalf("expected validation to collect all 3+ violations, got %v", cfErr.Violations)
	}
	joined := strings.Join(cfErr.Violations, "|")
	for _, want := range []string{"vector length", "raw_data_type", "UTF-8"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected a violation mentioning %q, got %v", want, cfErr.Violations)
		}
	}
}

func TestValidateVectorLengthMatchesEmbedDim(t *testing.T) {
	r, _ := record.New("A")
	r.Vector = []float32{1, 2, 3, 4}
	if err := r.Validate(fakeSchema{dim: 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r, _ := record.New("A")
	r.Tags = []string{"x"}
	r.CustomMetadata = map[string]string{"a": "b"}

	cp := r.Clone()
	cp.Tags[0] = "y"
	cp.CustomMetadata["a"] = "z"

	if r.Tags[0] != "x" {
		t.Fatalf("expected original tags untouched, got %v", r.Tags)
	}
	if r.CustomMetadata["a"] != "b" {
		t.Fatalf("expected original metadata untouched, got %v", r.CustomMetadata)
	}
}

func TestBuilderChaining(t *testing.T) {
	r, err := record.NewBuilder("A").
		WithTextContent("body").
		WithVector([]float32{1, 0, 0, 0}).
		WithTags("x", "y").
		WithStatus("draft").
		Build(fakeSchema{dim: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TextContent != "body" || r.Status != "draft" || len(r.Tags) != 2 {
		t.Fatalf("builder did not apply all setters: %+v", r)
	}
}

func TestBuilderPropagatesRelationshipError(t *testing.T) {
	_, err := record.NewBuilder("A").
		WithRelationship(record.Relationship{Type: "bogus"}).
		Build(nil)
	if !contextframe.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
