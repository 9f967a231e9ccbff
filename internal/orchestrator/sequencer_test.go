package orchestrator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer_RunsTasksInSubmissionOrder(t *testing.T) {
	s := NewSequencer(256)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, s.Submit("branch-a", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	s.Close()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSequencer_KeysRunConcurrently(t *testing.T) {
	s := NewSequencer(8)

	// The task on key a blocks until the task on key b runs. Close would
	// deadlock if keys shared a worker.
	release := make(chan struct{})
	done := make(chan struct{})

	require.NoError(t, s.Submit("a", func() {
		<-release
		close(done)
	}))
	require.NoError(t, s.Submit("b", func() {
		close(release)
	}))

	s.Close()
	<-done
}

func TestSequencer_SubmitAfterClose(t *testing.T) {
	s := NewSequencer(8)
	s.Close()

	err := s.Submit("a", func() {})
	assert.Error(t, err)
}

func TestSequencer_CloseIsIdempotent(t *testing.T) {
	s := NewSequencer(8)
	require.NoError(t, s.Submit("a", func() {}))
	s.Close()
	s.Close()
}

func TestSequencer_RejectsWhenQueueFull(t *testing.T) {
	s := NewSequencer(1)

	started := make(chan struct{})
	gate := make(chan struct{})

	// Park the worker so the next submission sits in the queue.
	require.NoError(t, s.Submit("a", func() {
		close(started)
		<-gate
	}))
	<-started

	require.NoError(t, s.Submit("a", func() {}))

	err := s.Submit("a", func() {})
	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("queue for '%s' is full", "a"), err.Error())

	close(gate)
	s.Close()
}
