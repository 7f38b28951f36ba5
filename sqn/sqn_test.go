package sqn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStartsAtOne(t *testing.T) {
	a := New()
	assert.Equal(t, uint8(1), a.Next())
	assert.Equal(t, uint8(2), a.Next())
}

func TestNextWrapsSkippingZero(t *testing.T) {
	a := New()
	for i := 0; i < 254; i++ {
		a.Next()
	}
	assert.Equal(t, uint8(255), a.Next())
	assert.Equal(t, uint8(1), a.Next())
}

func TestBindAndLast(t *testing.T) {
	a := New()
	_, _, ok := a.Last()
	assert.False(t, ok)

	n := a.Next()
	a.Bind(0x42)
	internal, external, ok := a.Last()
	assert.True(t, ok)
	assert.Equal(t, n, internal)
	assert.Equal(t, uint8(0x42), external)
}

func TestNextConcurrentSafe(t *testing.T) {
	a := New()
	done := make(chan struct{})
	seen := make(chan uint8, 2000)
	for i := 0; i < 2; i++ {
		go func() {
			for j := 0; j < 1000; j++ {
				seen <- a.Next()
			}
			done <- struct{}{}
		}()
	}
	<-done
	<-done
	close(seen)
	for v := range seen {
		assert.NotEqual(t, uint8(0), v)
	}
}
