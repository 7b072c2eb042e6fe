package util

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileExists(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "exists")
	assert.False(t, Exists(filePath))

	file, err := os.OpenFile(filePath, os.O_RDONLY|os.O_CREATE, 0666)
	assert.Nil(t, err)
	file.Close()
	assert.True(t, Exists(filePath))
}

func TestMax(t *testing.T) {
	assert.Equal(t, 2, Max(1, 2))
	assert.Equal(t, 2, Max(2, 1))
	assert.Equal(t, int64(105), MaxInt64(100, 105))
	assert.Equal(t, int64(105), MaxInt64(105, 101))
}

func TestInSlice(t *testing.T) {
	assert.True(t, StringInSlice("b", []string{"a", "b"}))
	assert.False(t, StringInSlice("c", []string{"a", "b"}))
	assert.False(t, StringInSlice("c", nil))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1h0m0s", FormatDuration(time.Hour))
	assert.Equal(t, "1d1h0m0s", FormatDuration(25*time.Hour))
	assert.Equal(t, "1y2d0s", FormatDuration(367*24*time.Hour))
}

func TestCacheLookup(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Lookup("a"))
	assert.True(t, c.Lookup("a"))
	assert.False(t, c.Lookup("b"))
	assert.Equal(t, 2, c.Len())
}

func TestCacheConcurrentLookup(t *testing.T) {
	c := NewCache()
	var firsts int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Lookup("key") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, firsts)
}
