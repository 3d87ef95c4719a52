package extension

import (
	"context"
	"sync"
)

// OperationSerializer orders operations per entity id. Operations on the
// same id execute strictly in arrival order; operations on distinct ids
// never block on each other.
type OperationSerializer interface {
	Serialize(ctx context.Context, entityID string, op func(ctx context.Context) error) error
}

// NewOperationSerializer creates the default serializer.
func NewOperationSerializer() OperationSerializer {
	return &serializer{tails: make(map[string]chan struct{})}
}

// serializer keeps one chain tail per entity id. Each call links itself
// behind the current tail and becomes the new tail; the entry is removed
// once the most recent operation finishes, so idle entities leave no
// residue.
type serializer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// Serialize runs op after every previously submitted operation for the
// same entity id has finished, regardless of whether those operations
// failed. If ctx is cancelled while queued, Serialize returns ctx.Err()
// without running op, but keeps the chain intact for later arrivals.
func (s *serializer) Serialize(ctx context.Context, entityID string, op func(ctx context.Context) error) error {
	done := make(chan struct{})

	s.mu.Lock()
	prev := s.tails[entityID]
	s.tails[entityID] = done
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep ordering for successors: release our slot only once
			// the predecessor has finished.
			go func() {
				<-prev
				s.release(entityID, done)
			}()
			return ctx.Err()
		}
	}

	err := op(ctx)
	s.release(entityID, done)
	return err
}

// release closes the slot and deletes the queue entry when no later
// operation has been appended behind it.
func (s *serializer) release(entityID string, done chan struct{}) {
	close(done)
	s.mu.Lock()
	if s.tails[entityID] == done {
		delete(s.tails, entityID)
	}
	s.mu.Unlock()
}

// pending reports how many entity queues currently exist. Test hook.
func (s *serializer) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
