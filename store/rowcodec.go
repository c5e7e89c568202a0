package store

import (
	"github.com/contextframe/contextframe/record"
)

// toRow flattens a Record into the column-keyed representation the
// fragment writer operates on. Keys match schema.NewDefault's column
// names (spec §3.1/§4.2).
func toRow(r *record.Record) map[string]interface{} {
	row := map[string]interface{}{
		"uuid":         r.UUID,
		"title":        r.Title,
		"text_content": r.TextContent,
		"created_at":   r.CreatedAt,
		"updated_at":   r.UpdatedAt,
		"version":      r.Version,
		"author":       r.Author,
		"status":       r.Status,
		"record_type":  string(r.RecordType),
		"collection":    r.Collection,
		"collection_id": r.CollectionID,
	}
	if r.Vector != nil {
		row["vector"] = r.Vector
	}
	if r.Tags != nil {
		row["tags"] = toAnySlice(r.Tags)
	}
	if r.Contributors != nil {
		row["contributors"] = toAnySlice(r.Contributors)
	}
	row["collection_position"] = r.CollectionPosition
	if r.CustomMetadata != nil {
		row["custom_metadata"] = customMetadataToStructs(r.CustomMetadata)
	}
	if r.Relationships != nil {
		row["relationships"] = relationshipsToStructs(r.Relationships)
	}
	if r.RawData != nil {
		row["raw_data"] = r.RawData
		row["raw_data_type"] = r.RawDataType
	}
	if r.Context != nil {
		row["context"] = contextToStructs(r.Context)
	}
	return row
}

func toAnySlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// customMetadataToStructs converts the map form to the canonical
// columnar list-of-{key,value} form (spec §4.2).
func customMetadataToStructs(m map[string]string) []interface{} {
	out := make([]interface{}, 0, len(m))
	for k, v := range m {
		out = append(out, map[string]interface{}{"key": k, "value": v})
	}
	return out
}

func structsToCustomMetadata(vals []interface{}) map[string]string {
	out := map[string]string{}
	for _, v := range vals {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		k, _ := m["key"].(string)
		val, _ := m["value"].(string)
		out[k] = val
	}
	return out
}

func relationshipsToStructs(rels []record.Relationship) []interface{} {
	out := make([]interface{}, len(rels))
	for i, rel := range rels {
		out[i] = map[string]interface{}{
			"type":        string(rel.Type),
			"uuid":        rel.UUID,
			"uri":         rel.URI,
			"path":        rel.Path,
			"cid":         rel.CID,
			"title":       rel.Title,
			"description": rel.Description,
		}
	}
	return out
}

func structsToRelationships(vals []interface{}) []record.Relationship {
	out := make([]record.Relationship, 0, len(vals))
	for _, v := range vals {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		str := func(k string) string { s, _ := m[k].(string); return s }
		out = append(out, record.Relationship{
			Type:        record.RelationshipType(str("type")),
			UUID:        str("uuid"),
			URI:         str("uri"),
			Path:        str("path"),
			CID:         str("cid"),
			Title:       str("title"),
			Description: str("description"),
		})
	}
	return out
}

func contextToStructs(m map[string]string) []interface{} {
	out := make([]interface{}, 0, len(m))
	for k, v := range m {
		out = append(out, map[string]interface{}{"key": k, "value": v})
	}
	return out
}

func structsToContext(vals []interface{}) map[string]string {
	out := map[string]string{}
	for _, v := range vals {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		k, _ := m["key"].(string)
		val, _ := m["value"].(string)
		out[k] = val
	}
	return out
}

// fromRow reconstructs a Record from its column-keyed representation.
func fromRow(row map[string]interface{}) *record.Record {
	r := &record.Record{}
	str := func(k string) string { s, _ := row[k].(string); return s }
	r.UUID = str("uuid")
	r.Title = str("title")
	r.TextContent = str("text_content")
	r.CreatedAt = str("created_at")
	r.UpdatedAt = str("updated_at")
	r.Version = str("version")
	r.Author = str("author")
	r.Status = str("status")
	r.RecordType = record.RecordType(str("record_type"))
	r.Collection = str("collection")
	r.CollectionID = str("collection_id")
	if v, ok := row["collection_position"].(int64); ok {
		r.CollectionPosition = v
	}
	if v, ok := row["vector"].([]float32); ok {
		r.Vector = v
	}
	if v, ok := row["tags"].([]interface{}); ok {
		for _, s := range v {
			if sv, ok := s.(string); ok {
				r.Tags = append(r.Tags, sv)
			}
		}
	}
	if v, ok := row["contributors"].([]interface{}); ok {
		for _, s := range v {
			if sv, ok := s.(string); ok {
				r.Contributors = append(r.Contributors, sv)
			}
		}
	}
	if v, ok := row["custom_metadata"].([]interface{}); ok {
		r.CustomMetadata = structsToCustomMetadata(v)
	}
	if v, ok := row["relationships"].([]interface{}); ok {
		r.Relationships = structsToRelationships(v)
	}
	if v, ok := row["raw_data"].([]byte); ok {
		r.RawData = v
		r.RawDataType = str("raw_data_type")
	}
	if v, ok := row["context"].([]interface{}); ok {
		r.Context = structsToContext(v)
	}
	return r
}
