package maintenance

import (
	"context"

	"github.com/contextframe/contextframe/query"
	"github.com/contextframe/contextframe/record"
	"github.com/contextframe/contextframe/schema"
	"github.com/contextframe/contextframe/store"
)

// DanglingRelationship names one relationship whose uuid target does not
// resolve to any currently-live row.
type DanglingRelationship struct {
	SourceUUID       string
	RelationshipType record.RelationshipType
	TargetUUID       string
}

// ValidateRelationships scans every live row twice — once to collect the
// set of live uuids, once to check every outgoing uuid-targeted
// relationship against it — and reports the dangling ones. This is the
// optional validate_relationships maintenance task (spec §9: "not
// mandatory, run on demand"); referential integrity is never enforced at
// write time (spec §3.2), so a relationship can point at a uuid that was
// since deleted, or never existed, without this task ever having run.
func ValidateRelationships(ctx context.Context, s *store.Store, reg *schema.Registry, manifest *store.Manifest) ([]DanglingRelationship, error) {
	live, err := liveUUIDs(ctx, s, reg, manifest)
	if err != nil {
		return nil, err
	}

	req := query.DefaultScanRequest()
	req.Columns = []string{"uuid", "relationships"}
	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, req)
	if err != nil {
		return nil, err
	}

	var dangling []DanglingRelationship
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return dangling, nil
		}
		for _, rec := range batch.Records {
			for _, rel := range rec.Relationships {
				if rel.UUID == "" || live[rel.UUID] {
					continue
				}
				dangling = append(dangling, DanglingRelationship{
					SourceUUID:       rec.UUID,
					RelationshipType: rel.Type,
					TargetUUID:       rel.UUID,
				})
			}
		}
	}
}

func liveUUIDs(ctx context.Context, s *store.Store, reg *schema.Registry, manifest *store.Manifest) (map[string]bool, error) {
	req := query.DefaultScanRequest()
	req.Columns = []string{"uuid"}
	sc, err := query.NewScanner(s, reg, manifest, nil, nil, nil, req)
	if err != nil {
		return nil, err
	}
	live := map[string]bool{}
	for {
		batch, err := sc.Next(ctx)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return live, nil
		}
		for _, rec := range batch.Records {
			live[rec.UUID] = true
		}
	}
}
