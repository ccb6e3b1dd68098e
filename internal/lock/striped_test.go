package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerialisesSameKey(t *testing.T) {
	s := NewStriped(8)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("acc-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestLockOverlappingSetsDoNotDeadlock(t *testing.T) {
	s := NewStriped(4)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Lock("a", "b")()
		}()
		go func() {
			defer wg.Done()
			s.Lock("b", "a")()
		}()
	}
	wg.Wait()
}

func TestLockDuplicateKeys(t *testing.T) {
	s := NewStriped(1)
	// every key maps to the single stripe; locking twice would self-deadlock
	unlock := s.Lock("a", "b", "a")
	unlock()
	s.Lock("c")()
}
