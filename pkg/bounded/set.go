package bounded

// Set is a size-capped set built on Map. Membership tests bump recency so
// frequently checked members survive eviction under LRU.
type Set[K comparable] struct {
	m *Map[K, struct{}]
}

// NewSet returns a bounded set holding at most maxSize members.
// onEvict (may be nil) receives each member evicted on overflow.
func NewSet[K comparable](maxSize int, policy Policy, onEvict func(member K)) *Set[K] {
	var evict EvictFunc[K, struct{}]
	if onEvict != nil {
		evict = func(key K, _ struct{}) { onEvict(key) }
	}
	return &Set[K]{m: NewMap[K, struct{}](maxSize, policy, evict)}
}

// Add inserts member, evicting per policy on overflow.
func (s *Set[K]) Add(member K) {
	s.m.Put(member, struct{}{})
}

// Contains reports membership and bumps the member per the policy.
func (s *Set[K]) Contains(member K) bool {
	_, ok := s.m.Get(member)
	return ok
}

// Remove deletes member, returning true if it was present.
func (s *Set[K]) Remove(member K) bool {
	return s.m.Delete(member)
}

// Len returns the number of members.
func (s *Set[K]) Len() int {
	return s.m.Len()
}

// Members returns all members, most recent first.
func (s *Set[K]) Members() []K {
	return s.m.Keys()
}

// Clear removes every member without firing eviction callbacks.
func (s *Set[K]) Clear() {
	s.m.Clear()
}
