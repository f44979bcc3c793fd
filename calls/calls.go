package calls

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/a-h/voicerag/d365"
	"github.com/a-h/voicerag/db"
)

// Store is implemented by *db.Queries and *MemoryStore.
type Store interface {
	CallPut(ctx context.Context, call db.Call) error
	CallPutCaller(ctx context.Context, call db.Call) error
	CallGet(ctx context.Context, id string) (call db.Call, ok bool, err error)
	CallList(ctx context.Context, limit int) ([]db.Call, error)
}

// CRM is implemented by *d365.Client.
type CRM interface {
	LookupContactByPhone(ctx context.Context, phone string) (contact d365.Contact, ok bool, err error)
	LogPhoneCall(ctx context.Context, pc d365.PhoneCall) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls: map[string]db.Call{},
	}
}

// MemoryStore is used when no database is configured. Records are lost on restart.
type MemoryStore struct {
	m     sync.RWMutex
	calls map[string]db.Call
}

func (s *MemoryStore) CallPut(ctx context.Context, call db.Call) error {
	s.m.Lock()
	defer s.m.Unlock()
	if existing, ok := s.calls[call.ID]; ok {
		call.CreatedAt = existing.CreatedAt
	}
	s.calls[call.ID] = call
	return nil
}

// CallPutCaller stores the call, or sets the caller and contact of an existing record,
// keeping its status and timestamps.
func (s *MemoryStore) CallPutCaller(ctx context.Context, call db.Call) error {
	s.m.Lock()
	defer s.m.Unlock()
	if existing, ok := s.calls[call.ID]; ok {
		existing.CallerID = call.CallerID
		existing.ContactID = call.ContactID
		existing.ContactName = call.ContactName
		call = existing
	}
	s.calls[call.ID] = call
	return nil
}

func (s *MemoryStore) CallGet(ctx context.Context, id string) (call db.Call, ok bool, err error) {
	s.m.RLock()
	defer s.m.RUnlock()
	call, ok = s.calls[id]
	return call, ok, nil
}

func (s *MemoryStore) CallList(ctx context.Context, limit int) (calls []db.Call, err error) {
	s.m.RLock()
	for _, c := range s.calls {
		calls = append(calls, c)
	}
	s.m.RUnlock()
	slices.SortFunc(calls, func(a, b db.Call) int {
		return b.LastUpdatedAt.Compare(a.LastUpdatedAt)
	})
	if len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

// UpdateStatus sets the status of a call, creating the record if the answer was handled by
// another instance.
func UpdateStatus(ctx context.Context, store Store, id string, status db.CallStatus, now time.Time) (call db.Call, err error) {
	call, ok, err := store.CallGet(ctx, id)
	if err != nil {
		return call, err
	}
	if !ok {
		call = db.Call{ID: id, CreatedAt: now}
	}
	call.Status = status
	call.LastUpdatedAt = now
	return call, store.CallPut(ctx, call)
}
