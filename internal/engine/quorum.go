package engine

import "sync"

// SkipQuorum counts votes to cut the discussion short. It is reached once
// half the living players, rounded up, have asked to skip.
type SkipQuorum struct {
	mu       sync.Mutex
	votes    map[PlayerID]bool
	required int
	reached  chan struct{}
	closed   bool
}

func NewSkipQuorum(alive int) *SkipQuorum {
	q := &SkipQuorum{
		votes:    make(map[PlayerID]bool),
		required: (alive + 1) / 2,
		reached:  make(chan struct{}),
	}
	q.check()
	return q
}

// Vote records id's skip vote. Repeat votes count once.
func (q *SkipQuorum) Vote(id PlayerID) (count, required int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.votes[id] = true
	q.check()
	return len(q.votes), q.required
}

func (q *SkipQuorum) check() {
	if !q.closed && len(q.votes) >= q.required {
		q.closed = true
		close(q.reached)
	}
}

func (q *SkipQuorum) Reached() <-chan struct{} { return q.reached }
