// Package weaviate implements the index capability interface on top of a
// Weaviate collection. Chunk ids ("{url}_{index}") are mapped to
// deterministic object UUIDs so re-adding an id replaces the stored object.
package weaviate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"webrag/internal/index"
)

type Store struct {
	client    *weaviate.Client
	className string
}

func NewStore(client *weaviate.Client, className string) *Store {
	return &Store{client: client, className: className}
}

func (s *Store) Name() string { return s.className }

// objectID derives the stable Weaviate object UUID for a chunk id.
func objectID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (s *Store) Add(ctx context.Context, ids []string, vectors [][]float32, documents []string, metadatas []map[string]interface{}) error {
	if len(ids) != len(vectors) || len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("mismatched batch lengths: ids=%d vectors=%d documents=%d metadatas=%d",
			len(ids), len(vectors), len(documents), len(metadatas))
	}

	for i, id := range ids {
		props := map[string]interface{}{
			"content": documents[i],
			"chunkId": id,
		}
		if url, ok := metadatas[i]["url"].(string); ok {
			props["url"] = url
		}
		if title, ok := metadatas[i]["title"].(string); ok {
			props["title"] = title
		}
		if idx, ok := metadatas[i]["chunk_index"].(int); ok {
			props["chunkIndex"] = idx
		}
		if total, ok := metadatas[i]["total_chunks"].(int); ok {
			props["totalChunks"] = total
		}

		oid := objectID(id)

		// Best-effort delete so re-indexing the same chunk id overwrites.
		// A 404 for a fresh id is expected and ignored.
		_ = s.client.Data().Deleter().
			WithClassName(s.className).
			WithID(oid).
			Do(ctx)

		_, err := s.client.Data().Creator().
			WithClassName(s.className).
			WithID(oid).
			WithProperties(props).
			WithVector(vectors[i]).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("store chunk %q: %w", id, err)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "url"},
		{Name: "title"},
		{Name: "chunkIndex"},
		{Name: "totalChunks"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var hits []index.Hit
	for _, props := range s.rows(res.Data) {
		hit := index.Hit{Metadata: make(map[string]interface{})}

		if content, ok := props["content"].(string); ok {
			hit.Document = content
		}
		if id, ok := props["chunkId"].(string); ok {
			hit.ID = id
		}
		fillMetadata(hit.Metadata, props)

		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				hit.Distance = float32(distance)
			}
		}

		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*index.Record, error) {
	where := filters.Where().
		WithPath([]string{"chunkId"}).
		WithOperator(filters.Equal).
		WithValueString(id)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "url"},
		{Name: "title"},
		{Name: "chunkIndex"},
		{Name: "totalChunks"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "vector"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithWhere(where).
		WithLimit(1).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	rows := s.rows(res.Data)
	if len(rows) == 0 {
		return nil, fmt.Errorf("chunk %q: %w", id, index.ErrNotFound)
	}
	props := rows[0]

	rec := &index.Record{Metadata: make(map[string]interface{})}
	if content, ok := props["content"].(string); ok {
		rec.Document = content
	}
	fillMetadata(rec.Metadata, props)

	if additional, ok := props["_additional"].(map[string]interface{}); ok {
		if raw, ok := additional["vector"].([]interface{}); ok {
			rec.Vector = make([]float32, 0, len(raw))
			for _, v := range raw {
				if f, ok := v.(float64); ok {
					rec.Vector = append(rec.Vector, float32(f))
				}
			}
		}
	}
	return rec, nil
}

func (s *Store) Sample(ctx context.Context, limit int) ([]index.Record, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkId"},
		{Name: "url"},
		{Name: "title"},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var records []index.Record
	for _, props := range s.rows(res.Data) {
		rec := index.Record{Metadata: make(map[string]interface{})}
		if content, ok := props["content"].(string); ok {
			rec.Document = content
		}
		fillMetadata(rec.Metadata, props)
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	meta := graphql.Field{
		Name:   "meta",
		Fields: []graphql.Field{{Name: "count"}},
	}

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(meta).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := agg[s.className].([]interface{}); ok && len(classes) > 0 {
			if entry, ok := classes[0].(map[string]interface{}); ok {
				if m, ok := entry["meta"].(map[string]interface{}); ok {
					if count, ok := m["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, fmt.Errorf("unexpected aggregate response shape")
}

// DeleteByURL removes every chunk stored for the given page URL. The
// indexer calls this before re-adding so stale chunk counts don't linger.
func (s *Store) DeleteByURL(ctx context.Context, url string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"url"}).
			WithOperator(filters.Equal).
			WithValueString(url)).
		Do(ctx)
	return err
}

// rows unpacks the Get response for this class into property maps.
func (s *Store) rows(data map[string]models.JSONObject) []map[string]interface{} {
	var out []map[string]interface{}
	if get, ok := data["Get"].(map[string]interface{}); ok {
		if objs, ok := get[s.className].([]interface{}); ok {
			for _, o := range objs {
				if props, ok := o.(map[string]interface{}); ok {
					out = append(out, props)
				}
			}
		}
	}
	return out
}

func fillMetadata(meta map[string]interface{}, props map[string]interface{}) {
	if url, ok := props["url"].(string); ok {
		meta["url"] = url
	}
	if title, ok := props["title"].(string); ok {
		meta["title"] = title
	}
	if idx, ok := props["chunkIndex"].(float64); ok {
		meta["chunk_index"] = int(idx)
	}
	if total, ok := props["totalChunks"].(float64); ok {
		meta["total_chunks"] = int(total)
	}
}
