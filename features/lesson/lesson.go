package lesson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("lesson not found")
	ErrNoContent = errors.New("lesson has no content")
)

type Lesson struct {
	ID       string
	Title    string
	Articles []string
}

// contentItem is one entry of a lesson's content array. Only article text is
// embedded; pdf and video items are skipped.
type contentItem struct {
	Type  string `json:"type"`
	Value struct {
		Content string `json:"content"`
	} `json:"value"`
}

// ParseContent extracts the non-empty article texts from raw lesson content.
func ParseContent(raw []byte) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNoContent
	}
	var items []contentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse lesson content: %w", err)
	}

	var articles []string
	for _, item := range items {
		if item.Type != "article" {
			continue
		}
		if text := strings.TrimSpace(item.Value.Content); text != "" {
			articles = append(articles, text)
		}
	}
	return articles, nil
}
