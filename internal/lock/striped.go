package lock

import (
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

const DefaultStripes = 256

// Striped serialises work per key within one process using a fixed pool of
// mutexes. Keys that hash to the same stripe share a mutex.
type Striped struct {
	stripes []sync.Mutex
}

func NewStriped(n int) *Striped {
	if n <= 0 {
		n = DefaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

func (s *Striped) index(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(s.stripes)))
}

// Lock acquires the stripes for all keys in ascending stripe order, so two
// callers locking overlapping key sets cannot deadlock. The returned func
// releases them.
func (s *Striped) Lock(keys ...string) (unlock func()) {
	seen := make(map[int]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := s.index(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}
	sort.Ints(idx)

	for _, i := range idx {
		s.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.stripes[idx[j]].Unlock()
		}
	}
}
