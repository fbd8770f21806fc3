package settings

import (
	"context"
	"errors"
	"strings"
)

const DefaultEmbeddingModel = "gemini-embedding-001"

var ErrInvalidSettings = errors.New("invalid settings")

// KeySource tells where the effective Gemini key came from.
type KeySource string

const (
	KeyStored KeySource = "stored"
	KeyEnv    KeySource = "env"
	KeyNone   KeySource = "none"
)

type Settings struct {
	GeminiAPIKey   string    `json:"gemini_api_key"`
	EmbeddingModel string    `json:"embedding_model"`
	KeySource      KeySource `json:"key_source,omitempty"`
}

// Masked hides all but the last four characters of the API key.
func (s Settings) Masked() Settings {
	s.GeminiAPIKey = maskKey(s.GeminiAPIKey)
	return s
}

func maskKey(key string) string {
	n := len(key)
	if n == 0 {
		return ""
	}
	keep := 4
	if n <= keep {
		keep = 0
	}
	return strings.Repeat("*", n-keep) + key[n-keep:]
}

// Patch is a partial update. Empty fields keep the stored value, and a key
// equal to the masked form served by GET counts as unchanged.
type Patch struct {
	GeminiAPIKey   string `json:"gemini_api_key"`
	EmbeddingModel string `json:"embedding_model"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo       Repository
	defaultKey string
}

// NewService falls back to defaultKey when no key has been stored.
func NewService(repo Repository, defaultKey string) *Service {
	return &Service{repo: repo, defaultKey: defaultKey}
}

// Get returns the effective settings the embedder runs with.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.effective(*stored), nil
}

// Update merges p into the stored row and returns the effective result.
func (s *Service) Update(ctx context.Context, p Patch) (*Settings, error) {
	model := strings.TrimSpace(p.EmbeddingModel)
	if strings.ContainsAny(model, " /") {
		return nil, errors.Join(ErrInvalidSettings, errors.New("embedding_model must be a bare model name"))
	}

	stored, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	next := *stored
	next.KeySource = ""

	key := strings.TrimSpace(p.GeminiAPIKey)
	if key != "" && key != maskKey(s.effective(*stored).GeminiAPIKey) {
		next.GeminiAPIKey = key
	}
	if model != "" {
		next.EmbeddingModel = model
	}
	if next.EmbeddingModel == "" {
		next.EmbeddingModel = DefaultEmbeddingModel
	}

	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, err
	}
	return s.effective(next), nil
}

func (s *Service) effective(set Settings) *Settings {
	switch {
	case set.GeminiAPIKey != "":
		set.KeySource = KeyStored
	case s.defaultKey != "":
		set.GeminiAPIKey = s.defaultKey
		set.KeySource = KeyEnv
	default:
		set.KeySource = KeyNone
	}
	if set.EmbeddingModel == "" {
		set.EmbeddingModel = DefaultEmbeddingModel
	}
	return &set
}
