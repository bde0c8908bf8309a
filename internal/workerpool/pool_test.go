package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunsAllSubmittedTasks(t *testing.T) {
	p := New(4, 16, nil)

	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		assert.True(t, p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	p.Shutdown()

	assert.Equal(t, int64(100), n.Load())
}

func TestPool_RecoversPanics(t *testing.T) {
	p := New(1, 4, nil)

	done := make(chan struct{})
	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })
	<-done
	p.Shutdown()
}

func TestPool_TrySubmitRejectsWhenFull(t *testing.T) {
	p := New(1, 1, nil)
	block := make(chan struct{})
	started := make(chan struct{})

	p.Submit(func() {
		close(started)
		<-block
	})
	<-started
	assert.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}))

	close(block)
	p.Shutdown()
	assert.False(t, p.Submit(func() {}))
}
