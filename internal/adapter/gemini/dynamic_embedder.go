package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"selflearning/apps/worker/internal/settings"
)

var ErrNoAPIKey = errors.New("gemini api key not configured")

type SettingsProvider interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// DynamicEmbedder reads the API key and model from settings on every call
// and rebuilds its client when the key changes.
type DynamicEmbedder struct {
	settings   SettingsProvider
	clientOpts []option.ClientOption

	mu         sync.RWMutex
	client     *genai.Client
	currentKey string
}

func NewDynamicEmbedder(provider SettingsProvider, opts ...option.ClientOption) *DynamicEmbedder {
	return &DynamicEmbedder{
		settings:   provider,
		clientOpts: opts,
	}
}

func (e *DynamicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s, err := e.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, ErrNoAPIKey
	}

	client, err := e.getClient(ctx, s.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	model := s.EmbeddingModel
	if model == "" {
		model = settings.DefaultEmbeddingModel
	}
	slog.DebugContext(ctx, "embedding content", "model", model, "length", len(text))

	res, err := client.EmbeddingModel(model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("empty embedding received")
	}
	return res.Embedding.Values, nil
}

// Close releases the current client, if any.
func (e *DynamicEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	e.currentKey = ""
	return err
}

func (e *DynamicEmbedder) getClient(ctx context.Context, key string) (*genai.Client, error) {
	e.mu.RLock()
	if e.client != nil && e.currentKey == key {
		defer e.mu.RUnlock()
		return e.client, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil && e.currentKey == key {
		return e.client, nil
	}

	if e.client != nil {
		if err := e.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(append([]option.ClientOption(nil), e.clientOpts...), option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	e.client = client
	e.currentKey = key
	return client, nil
}
