package recordstore

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore はプロセス内メモリに文書を保持するStore。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]Document)}
}

// Get は文書のコピーを返す。
func (s *MemoryStore) Get(_ context.Context, collection, key string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][key]
	if !ok {
		return nil, nil
	}
	return maps.Clone(doc), nil
}

// Set は文書全体を書き込む。
func (s *MemoryStore) Set(_ context.Context, collection, key string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]Document)
	}
	s.docs[collection][key] = maps.Clone(doc)
	return nil
}

// Update は指定フィールドだけを上書きする。
func (s *MemoryStore) Update(_ context.Context, collection, key string, partial Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][key]
	if !ok {
		return ErrNotFound
	}
	s.docs[collection][key] = merge(doc, partial)
	return nil
}

// Delete は文書を削除する。存在しない場合は何もしない。
func (s *MemoryStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], key)
	return nil
}

// compile-time interface check
var (
	_ Store   = (*MemoryStore)(nil)
	_ Deleter = (*MemoryStore)(nil)
)
