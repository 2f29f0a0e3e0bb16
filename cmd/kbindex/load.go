package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kbchat/internal/chunker"
	"kbchat/internal/domain"
)

// loadDocuments reads documents from the given paths. Plain .txt files
// become one document each with the path as source id; .json files use
// the crawler export shape {source_id|url, title, text}.
func loadDocuments(paths []string) ([]domain.Document, error) {
	var docs []domain.Document
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			doc, err := loadDocument(m)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", m, err)
			}
			if strings.TrimSpace(doc.Text) == "" {
				continue
			}
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found")
	}
	return docs, nil
}

func loadDocument(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		var raw struct {
			SourceID string `json:"source_id"`
			URL      string `json:"url"`
			Title    string `json:"title"`
			Text     string `json:"text"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return domain.Document{}, err
		}
		sourceID := raw.SourceID
		if sourceID == "" {
			sourceID = raw.URL
		}
		if sourceID == "" {
			sourceID = path
		}
		return domain.Document{
			SourceID:    sourceID,
			Title:       raw.Title,
			Text:        raw.Text,
			ContentHash: chunker.HashText(chunker.Normalize(raw.Text)),
		}, nil
	}
	text := string(data)
	return domain.Document{
		SourceID:    path,
		Title:       filepath.Base(path),
		Text:        text,
		ContentHash: chunker.HashText(chunker.Normalize(text)),
	}, nil
}
