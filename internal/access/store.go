package access

import (
	"context"
	"sync"
	"time"

	"breakfear-decoder/internal/models"
)

// Store persists visitor records. Load returns a fresh Welcome-page record for
// an unknown id.
type Store interface {
	Load(ctx context.Context, visitorID string) (*models.Visitor, error)
	Save(ctx context.Context, visitor *models.Visitor) error
}

// MemoryStore keeps visitors in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	visitors map[string]*models.Visitor
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		visitors: make(map[string]*models.Visitor),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Load(_ context.Context, visitorID string) (*models.Visitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.visitors[visitorID]; ok {
		return v.Clone(), nil
	}
	return models.NewVisitor(visitorID, s.now()), nil
}

func (s *MemoryStore) Save(_ context.Context, visitor *models.Visitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visitors[visitor.ID] = visitor.Clone()
	return nil
}

// Len is the number of stored visitors.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visitors)
}
