package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"selflearning/apps/worker/internal/retrieval"
	"selflearning/apps/worker/internal/vector"
	"selflearning/apps/worker/internal/worker"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, schemaClient{s.client})
}

func (s *Store) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	_, err := s.client.Data().Creator().
		WithClassName(vector.ClassName).
		WithProperties(map[string]interface{}{
			"content":     chunk.Content,
			"lessonId":    chunk.LessonID,
			"lessonTitle": chunk.LessonTitle,
			"chunkIndex":  chunk.ChunkIndex,
			"sourceType":  chunk.SourceType,
		}).
		WithVector(chunk.Vector).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("store chunk %d of lesson %s: %w", chunk.ChunkIndex, chunk.LessonID, err)
	}
	return nil
}

func (s *Store) DeleteLessonChunks(ctx context.Context, lessonID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(lessonFilter(lessonID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("delete chunks of lesson %s: %w", lessonID, err)
	}
	return nil
}

// CountChunks counts stored chunks, for one lesson or all when lessonID is empty.
func (s *Store) CountChunks(ctx context.Context, lessonID string) (int, error) {
	agg := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if lessonID != "" {
		agg = agg.WithWhere(lessonFilter(lessonID))
	}

	res, err := agg.Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("count chunks: graphql error: %s", res.Errors[0].Message)
	}

	aggregate, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := aggregate[vector.ClassName].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

// Search returns the lesson's chunks nearest to vector. Score is cosine
// similarity, 1 - distance.
func (s *Store) Search(ctx context.Context, lessonID string, vec []float32, limit int) ([]retrieval.Result, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "lessonTitle"},
		{Name: "chunkIndex"},
		{Name: "sourceType"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(lessonFilter(lessonID)).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search lesson %s: %w", lessonID, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("search lesson %s: graphql error: %s", lessonID, res.Errors[0].Message)
	}

	get, _ := res.Data["Get"].(map[string]interface{})
	objects, _ := get[vector.ClassName].([]interface{})

	results := make([]retrieval.Result, 0, len(objects))
	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		r := retrieval.Result{}
		r.Content, _ = props["content"].(string)
		r.LessonTitle, _ = props["lessonTitle"].(string)
		r.SourceType, _ = props["sourceType"].(string)
		if idx, ok := props["chunkIndex"].(float64); ok {
			r.ChunkIndex = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				r.Score = float32(1 - d)
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func lessonFilter(lessonID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"lessonId"}).
		WithOperator(filters.Equal).
		WithValueString(lessonID)
}

type schemaClient struct {
	client *weaviate.Client
}

func (a schemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a schemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	return a.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a schemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a schemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}
