package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_ConfigAndUpdate(t *testing.T) {
	first := resolveConfig(DefaultConfig())
	h := NewHolder(first)
	assert.Same(t, first, h.Config())

	second := resolveConfig(DefaultConfig())
	second.Workers = 8
	h.Update(second)
	assert.Same(t, second, h.Config())
	assert.Equal(t, 8, h.Config().Workers)
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h := NewHolder(resolveConfig(DefaultConfig()))

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(2)

		go func() {
			defer wg.Done()
			h.Update(resolveConfig(DefaultConfig()))
		}()

		go func() {
			defer wg.Done()
			assert.NotNil(t, h.Config())
		}()
	}

	wg.Wait()
}
