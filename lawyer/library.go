package lawyer

import (
	"sync"

	"github.com/google/uuid"
)

const DefaultLibraryCapacity = 32

// Library holds indexed PDFs between requests. When full, the oldest is evicted.
type Library struct {
	m        sync.Mutex
	capacity int
	entries  map[string]Indexed
	order    []string
	newID    func() string
}

func NewLibrary(capacity int) *Library {
	if capacity <= 0 {
		capacity = DefaultLibraryCapacity
	}
	return &Library{
		capacity: capacity,
		entries:  make(map[string]Indexed),
		newID:    uuid.NewString,
	}
}

func (l *Library) Add(doc Indexed) (id string) {
	l.m.Lock()
	defer l.m.Unlock()
	id = l.newID()
	l.entries[id] = doc
	l.order = append(l.order, id)
	for len(l.order) > l.capacity {
		delete(l.entries, l.order[0])
		l.order = l.order[1:]
	}
	return id
}

func (l *Library) Get(id string) (doc Indexed, ok bool) {
	l.m.Lock()
	defer l.m.Unlock()
	doc, ok = l.entries[id]
	return doc, ok
}

func (l *Library) Len() int {
	l.m.Lock()
	defer l.m.Unlock()
	return len(l.entries)
}
