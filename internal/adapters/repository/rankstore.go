package repository

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: stake DESC, then entity id ASC (deterministic). The BST
// comparator treats "less" as "ranks earlier", so an in-order traversal
// yields the leaderboard from best to worst. Priorities are derived from the
// entity id with a splitmix64 hash, which makes the tree shape a pure
// function of the key set regardless of operation order.

// treap node
type node struct {
	id    uint64
	stake *uint256.Int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aStake, aID) ranks earlier than (bStake, bID).
func less(aStake *uint256.Int, aID uint64, bStake *uint256.Int, bID uint64) bool {
	if c := aStake.Cmp(bStake); c != 0 {
		return c > 0 // higher stake ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

// splitmix64 mixes an entity id into a treap priority.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id uint64, stake *uint256.Int) *node {
	if n == nil {
		return &node{id: id, stake: stake, prio: splitmix64(id), size: 1}
	}
	if less(stake, id, n.stake, n.id) {
		n.left = insert(n.left, id, stake)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, stake)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id uint64, stake *uint256.Int) *node {
	if n == nil {
		return nil
	}
	if n.id == id {
		// Rotate the higher-priority child up until the target is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, stake)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, stake)
		}
	} else if less(stake, id, n.stake, n.id) {
		n.left = remove(n.left, id, stake)
	} else {
		n.right = remove(n.right, id, stake)
	}
	fix(n)
	return n
}

// rankOf returns the zero-based in-order position of (stake, id).
func rankOf(n *node, id uint64, stake *uint256.Int) int {
	pos := 0
	for n != nil {
		if n.id == id {
			return pos + nsize(n.left)
		}
		if less(stake, id, n.stake, n.id) {
			n = n.left
		} else {
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return pos
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{EntityID: n.id, Stake: new(uint256.Int).Set(n.stake)})
	}
	collectTopN(n.right, limit, out)
}

// RankStore is the treap-backed Store.
type RankStore struct {
	mu   sync.RWMutex
	root *node
	byID map[uint64]*uint256.Int
}

// Option applies a configuration option to the RankStore.
type Option func(*RankStore)

// NewRankStore constructs an empty ranking index.
func NewRankStore(opts ...Option) *RankStore {
	s := &RankStore{byID: make(map[uint64]*uint256.Int)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert sets the entity's current aggregate stake.
func (s *RankStore) Upsert(_ context.Context, entityID uint64, stake *uint256.Int) {
	if stake == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[entityID]; ok {
		s.root = remove(s.root, entityID, old)
	}
	cp := new(uint256.Int).Set(stake)
	s.byID[entityID] = cp
	s.root = insert(s.root, entityID, cp)
}

// Remove drops the entity from the ranking.
func (s *RankStore) Remove(_ context.Context, entityID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[entityID]
	if !ok {
		return
	}
	s.root = remove(s.root, entityID, old)
	delete(s.byID, entityID)
}

// Rank returns the current rank (1-based) and stake for an entity.
func (s *RankStore) Rank(_ context.Context, entityID uint64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stake, ok := s.byID[entityID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:     rankOf(s.root, entityID, stake) + 1,
		EntityID: entityID,
		Stake:    new(uint256.Int).Set(stake),
	}, nil
}

// TopN returns the top-N entries in rank order.
func (s *RankStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, n)
	collectTopN(s.root, n, &out)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// Count returns the number of entities tracked.
func (s *RankStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
