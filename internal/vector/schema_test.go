package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

type fakeSchemaClient struct {
	existing  *models.Class
	created   *models.Class
	added     []string
	existsErr error
}

func (f *fakeSchemaClient) ClassExists(context.Context, string) (bool, error) {
	return f.existing != nil, f.existsErr
}

func (f *fakeSchemaClient) CreateClass(_ context.Context, class *models.Class) error {
	f.created = class
	return nil
}

func (f *fakeSchemaClient) GetClass(context.Context, string) (*models.Class, error) {
	return f.existing, nil
}

func (f *fakeSchemaClient) AddProperty(_ context.Context, _ string, p *models.Property) error {
	f.added = append(f.added, p.Name)
	return nil
}

func TestEnsureSchema_CreatesClass(t *testing.T) {
	client := &fakeSchemaClient{}
	require.NoError(t, EnsureSchema(context.Background(), client))

	require.NotNil(t, client.created)
	assert.Equal(t, ClassName, client.created.Class)
	assert.Equal(t, "none", client.created.Vectorizer)

	types := map[string]string{}
	for _, p := range client.created.Properties {
		types[p.Name] = p.DataType[0]
	}
	assert.Equal(t, map[string]string{
		"content":     "text",
		"lessonId":    "string",
		"lessonTitle": "text",
		"chunkIndex":  "int",
		"sourceType":  "string",
	}, types)
}

func TestEnsureSchema_AddsMissingProperties(t *testing.T) {
	client := &fakeSchemaClient{existing: &models.Class{
		Class: ClassName,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "lessonId", DataType: []string{"string"}},
		},
	}}

	require.NoError(t, EnsureSchema(context.Background(), client))
	assert.Nil(t, client.created)
	assert.ElementsMatch(t, []string{"lessonTitle", "chunkIndex", "sourceType"}, client.added)
}

func TestEnsureSchema_Error(t *testing.T) {
	client := &fakeSchemaClient{existsErr: errors.New("connection refused")}
	err := EnsureSchema(context.Background(), client)
	assert.ErrorContains(t, err, "connection refused")
}
