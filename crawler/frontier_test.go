package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierDeduplicatesAndLimits(t *testing.T) {
	f := newFrontier(2)

	assert.Equal(t, pushAdded, f.push(task{url: "a"}))
	assert.Equal(t, pushDuplicate, f.push(task{url: "a", depth: 1}))
	assert.Equal(t, pushAdded, f.push(task{url: "b"}))
	assert.Equal(t, pushRejected, f.push(task{url: "c"}))
	assert.Equal(t, pushDuplicate, f.push(task{url: "b"}), "seen URLs are duplicates even at the limit")

	rejected, interrupted := f.state()
	assert.True(t, rejected)
	assert.False(t, interrupted)
}

func TestFrontierPopDrainsWhenIdle(t *testing.T) {
	f := newFrontier(0)
	f.push(task{url: "a"})

	got, ok := f.pop()
	require.True(t, ok)
	assert.Equal(t, "a", got.url)

	// A second worker waits while the first is in flight
	result := make(chan bool, 1)
	go func() {
		_, ok := f.pop()
		result <- ok
	}()

	select {
	case <-result:
		t.Fatal("pop returned while work was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	f.done()
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not return after the frontier drained")
	}
}

func TestFrontierPopReceivesPushFromInFlightTask(t *testing.T) {
	f := newFrontier(0)
	f.push(task{url: "a"})
	_, _ = f.pop()

	result := make(chan task, 1)
	go func() {
		next, _ := f.pop()
		result <- next
	}()

	f.push(task{url: "b", depth: 1})
	f.done()

	select {
	case next := <-result:
		assert.Equal(t, task{url: "b", depth: 1}, next)
	case <-time.After(time.Second):
		t.Fatal("waiting worker never received the pushed task")
	}
}

func TestFrontierStop(t *testing.T) {
	f := newFrontier(0)
	f.push(task{url: "a"})
	f.push(task{url: "b"})
	_, _ = f.pop()

	f.stop()
	_, ok := f.pop()
	assert.False(t, ok)
	assert.Equal(t, pushStopped, f.push(task{url: "c"}))

	_, interrupted := f.state()
	assert.True(t, interrupted)
}
