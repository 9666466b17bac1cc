package finance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	m := newKeyedMutex[string]()

	var wg sync.WaitGroup
	var a, b int
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := m.Lock("a")
			defer unlock()
			a++
		}()
		go func() {
			defer wg.Done()
			unlock := m.Lock("b")
			defer unlock()
			b++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, a)
	assert.Equal(t, 50, b)
	assert.Equal(t, 2, m.Len())
}

func TestKeyedMutexKeysAreIndependent(t *testing.T) {
	m := newKeyedMutex[string]()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
