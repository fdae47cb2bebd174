package remote

import (
	"context"
	"sync"

	"github.com/sestako/eunio-app-sub009/store"
)

// MemoryStore is an in-memory Store used in tests and offline development.
// Failures can be injected to exercise the retry and conflict paths.
type MemoryStore struct {
	mu        sync.Mutex
	docs      map[string]*store.PreferenceDocument
	backups   map[string][]byte
	pushCount int
	failures  []error
	stickyErr error
}

// NewMemoryStore creates an empty in-memory remote store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]*store.PreferenceDocument),
		backups: make(map[string][]byte),
	}
}

// FailNext queues n injected failures; each push or pull consumes one.
func (s *MemoryStore) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.failures = append(s.failures, err)
	}
}

// SetError makes every operation fail with err until reset with nil.
func (s *MemoryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stickyErr = err
}

// PushCount returns how many pushes reached the store, failed ones included.
func (s *MemoryStore) PushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushCount
}

// Document returns the stored document for userID, or nil.
func (s *MemoryStore) Document(userID string) *store.PreferenceDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[userID]; ok {
		return doc.Clone()
	}
	return nil
}

// SetDocument seeds a remote document.
func (s *MemoryStore) SetDocument(doc *store.PreferenceDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.UserID] = doc.Clone()
}

// SetBackup seeds a remote backup snapshot.
func (s *MemoryStore) SetBackup(userID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups[userID] = payload
}

func (s *MemoryStore) nextErrLocked() error {
	if s.stickyErr != nil {
		return s.stickyErr
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	return nil
}

// PushDocument implements Store.
func (s *MemoryStore) PushDocument(_ context.Context, doc *store.PreferenceDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushCount++
	if err := s.nextErrLocked(); err != nil {
		return err
	}
	s.docs[doc.UserID] = doc.Clone()
	return nil
}

// PullDocument implements Store.
func (s *MemoryStore) PullDocument(_ context.Context, userID string) (*store.PreferenceDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextErrLocked(); err != nil {
		return nil, err
	}
	if doc, ok := s.docs[userID]; ok {
		return doc.Clone(), nil
	}
	return nil, nil
}

// PullLatestBackup implements Store.
func (s *MemoryStore) PullLatestBackup(_ context.Context, userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextErrLocked(); err != nil {
		return nil, err
	}
	return s.backups[userID], nil
}
