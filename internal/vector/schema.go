package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding embedded lesson chunks.
const ClassName = "LessonChunk"

type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func properties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "lessonId", DataType: []string{"string"}},
		{Name: "lessonTitle", DataType: []string{"text"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "sourceType", DataType: []string{"string"}},
	}
}

// EnsureSchema creates the chunk class, or adds properties an older
// deployment is missing. Vectors are supplied by the embedder.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return fmt.Errorf("check class %s: %w", ClassName, err)
	}

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "An embedded chunk of lesson content",
			Vectorizer:  "none",
			Properties:  properties(),
		}
		if err := client.CreateClass(ctx, class); err != nil {
			return fmt.Errorf("create class %s: %w", ClassName, err)
		}
		return nil
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return fmt.Errorf("get class %s: %w", ClassName, err)
	}

	existing := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties() {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, ClassName, p); err != nil {
			return fmt.Errorf("add property %s: %w", p.Name, err)
		}
	}
	return nil
}
