package ledgerstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"drinkPassAPI/internal/types/entitlement"
)

// MemoryStore is an in-process Store with the same atomicity guarantees as
// the Firestore implementation. Used by tests and local development without
// Firebase credentials.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*entitlement.Record
	idByKey map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*entitlement.Record),
		idByKey: make(map[string]string),
	}
}

func (s *MemoryStore) FindOrCreate(ctx context.Context, rec *entitlement.Record) (*entitlement.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.idByKey[rec.PublicKey]; ok {
		out := *s.byID[id]
		return &out, false, nil
	}

	stored := *rec
	stored.ID = uuid.New().String()
	s.byID[stored.ID] = &stored
	s.idByKey[stored.PublicKey] = stored.ID

	out := stored
	return &out, true, nil
}

func (s *MemoryStore) Decrement(ctx context.Context, id string, kind entitlement.Kind, now time.Time) (*entitlement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrRecordVanished
	}

	if rec.Remaining(kind) <= 0 {
		return nil, ErrExhausted
	}

	if kind == entitlement.KindMeal {
		rec.RemainingMeals--
	} else {
		rec.RemainingDrinks--
	}
	rec.LastRedemptionType = kind
	ts := now
	rec.LastRedemptionAt = &ts

	out := *rec
	return &out, nil
}

// Delete removes a record. Only tests use this, to simulate a record
// vanishing between find-or-create and redeem.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byID[id]; ok {
		delete(s.idByKey, rec.PublicKey)
		delete(s.byID, id)
	}
}
