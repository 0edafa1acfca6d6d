package typeutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcurrentSet(t *testing.T) {
	set := NewConcurrentSet[string]()
	assert.True(t, set.Insert("a"))
	assert.False(t, set.Insert("a"))
	assert.True(t, set.Contain("a"))
	assert.Equal(t, 1, set.Len())

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set.Insert(string(rune('b' + i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 17, set.Len())
	assert.Len(t, set.Collect(), 17)

	assert.True(t, set.TryRemove("a"))
	assert.False(t, set.TryRemove("a"))
	assert.Equal(t, 16, set.Len())
}
