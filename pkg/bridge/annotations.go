package bridge

import (
	"sync"
	"time"
)

// Annotation is a transient text utterance received from the agent.
// Each annotation expires independently, a fixed TTL after creation.
type Annotation struct {
	ID        uint64    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// annotationStore holds the live annotations for one session.
// IDs are a session-scoped monotonically increasing counter; expiry uses one
// cancellable timer per annotation. An expired annotation is never
// resurrected.
type annotationStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	nextID uint64
	order  []uint64
	items  map[uint64]Annotation
	timers map[uint64]*time.Timer
}

func newAnnotationStore(ttl time.Duration) *annotationStore {
	return &annotationStore{
		ttl:    ttl,
		items:  make(map[uint64]Annotation),
		timers: make(map[uint64]*time.Timer),
	}
}

// Add creates a new annotation and schedules its expiry.
func (a *annotationStore) Add(text string) Annotation {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	ann := Annotation{
		ID:        a.nextID,
		Text:      text,
		CreatedAt: time.Now(),
	}

	a.items[ann.ID] = ann
	a.order = append(a.order, ann.ID)
	a.timers[ann.ID] = time.AfterFunc(a.ttl, func() {
		a.remove(ann.ID)
	})

	return ann
}

func (a *annotationStore) remove(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.items[id]; !ok {
		return
	}
	delete(a.items, id)
	delete(a.timers, id)
	for i, oid := range a.order {
		if oid == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// List returns live annotations in creation order.
func (a *annotationStore) List() []Annotation {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Annotation, 0, len(a.order))
	for _, id := range a.order {
		if ann, ok := a.items[id]; ok {
			out = append(out, ann)
		}
	}
	return out
}

// Len returns the number of live annotations.
func (a *annotationStore) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Clear cancels all timers and removes every annotation.
func (a *annotationStore) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
	a.items = make(map[uint64]Annotation)
	a.order = a.order[:0]
}
