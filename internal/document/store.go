// Package document holds the text of open documents and splits it into the
// batches a provider executes.
package document

import (
	"sync"
	"time"

	"duck-query/internal/domain"
)

var _ domain.DocumentSource = (*Store)(nil)

// Document is the stored text of one document.
type Document struct {
	URI       string    `json:"document"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is an in-memory document store safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{docs: make(map[string]Document)}
}

// Put stores text under uri, replacing any previous text.
func (s *Store) Put(uri, text string) (Document, error) {
	if uri == "" {
		return Document{}, domain.ErrValidation("document uri is required")
	}
	doc := Document{URI: uri, Text: text, UpdatedAt: time.Now().UTC()}
	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	return doc, nil
}

// Get returns the stored document for uri.
func (s *Store) Get(uri string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, domain.ErrNotFound("document %q not found", uri)
	}
	return doc, nil
}

// Text implements domain.DocumentSource.
func (s *Store) Text(uri string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc.Text, ok
}

// Delete removes the document stored under uri.
func (s *Store) Delete(uri string) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
}
