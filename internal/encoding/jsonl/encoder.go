// Package jsonl encodes articles as JSON Lines, one object per article.
package jsonl

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

// Encoder implements crawler.Encoder.
type Encoder struct{}

// New returns a JSON Lines Encoder.
func New() *Encoder {
	return &Encoder{}
}

// ContentType implements crawler.Encoder.
func (*Encoder) ContentType() string { return "application/x-ndjson" }

// Extension implements crawler.Encoder.
func (*Encoder) Extension() string { return "jsonl" }

// Encode writes each article on its own line. HTML escaping is disabled so
// Arabic text and URLs stay readable.
func (*Encoder) Encode(articles []crawler.Article) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, a := range articles {
		if err := enc.Encode(a); err != nil {
			return nil, fmt.Errorf("encode article %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
