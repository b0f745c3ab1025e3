package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	eventModel "github.com/Avi18971911/Logship/pkg/event/model"
	"github.com/dgraph-io/ristretto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueue_EnqueueAndAck(t *testing.T) {
	t.Run("Resolves records oldest first", func(t *testing.T) {
		queue := openTestQueue(t, filepath.Join(t.TempDir(), "overflow.jsonl"), 0)
		defer queue.Close()

		_, err := queue.Enqueue("idx-1", overflowEvents("E1"), errors.New("refused"))
		assert.Nil(t, err)
		_, err = queue.Enqueue("idx-2", overflowEvents("E2"), errors.New("refused"))
		assert.Nil(t, err)
		assert.Equal(t, 2, queue.Pending())

		head, err := queue.Head()
		assert.Nil(t, err)
		assert.Equal(t, "idx-1", head.Index)

		events, err := queue.Events(head.Seq)
		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "E1", events[0].Message)

		assert.Nil(t, queue.Ack())
		head, err = queue.Head()
		assert.Nil(t, err)
		assert.Equal(t, "idx-2", head.Index)
	})

	t.Run("Returns ErrQueueEmpty when nothing is pending", func(t *testing.T) {
		queue := openTestQueue(t, filepath.Join(t.TempDir(), "overflow.jsonl"), 0)
		defer queue.Close()

		_, err := queue.Head()
		assert.Equal(t, ErrQueueEmpty, err)
		assert.Equal(t, ErrQueueEmpty, queue.Ack())
	})
}

func TestQueue_SurvivesRestart(t *testing.T) {
	t.Run("Unresolved records are replayed after reopening", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overflow.jsonl")

		queue := openTestQueue(t, path, 0)
		_, err := queue.Enqueue("idx-1", overflowEvents("E1"), errors.New("refused"))
		assert.Nil(t, err)
		_, err = queue.Enqueue("idx-2", overflowEvents("E2"), errors.New("refused"))
		assert.Nil(t, err)
		assert.Nil(t, queue.Ack())
		assert.Nil(t, queue.Close())

		reopened := openTestQueue(t, path, 0)
		defer reopened.Close()
		assert.Equal(t, 1, reopened.Pending())

		head, err := reopened.Head()
		assert.Nil(t, err)
		assert.Equal(t, "idx-2", head.Index)

		events, err := reopened.Events(head.Seq)
		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "E2", events[0].Message)
	})
}

func TestQueue_Bound(t *testing.T) {
	t.Run("Evicts the oldest record once the bound is exceeded", func(t *testing.T) {
		queue := openTestQueue(t, filepath.Join(t.TempDir(), "overflow.jsonl"), 2)
		defer queue.Close()

		for _, message := range []string{"E1", "E2", "E3"} {
			_, err := queue.Enqueue("idx", overflowEvents(message), errors.New("refused"))
			assert.Nil(t, err)
		}
		assert.Equal(t, 2, queue.Pending())

		head, err := queue.Head()
		assert.Nil(t, err)
		events, err := queue.Events(head.Seq)
		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "E2", events[0].Message)
	})
}

func TestQueue_Fail(t *testing.T) {
	t.Run("Requeues with an incremented attempt count below the bound", func(t *testing.T) {
		queue := openTestQueue(t, filepath.Join(t.TempDir(), "overflow.jsonl"), 0)
		defer queue.Close()

		_, err := queue.Enqueue("idx", overflowEvents("E1"), errors.New("refused"))
		assert.Nil(t, err)

		dropped, err := queue.Fail(3, errors.New("still refused"))
		assert.Nil(t, err)
		assert.False(t, dropped)
		assert.Equal(t, 1, queue.Pending())

		head, err := queue.Head()
		assert.Nil(t, err)
		assert.Equal(t, 1, head.Attempts)
		assert.Equal(t, "still refused", head.LastError)

		events, err := queue.Events(head.Seq)
		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "E1", events[0].Message)
	})

	t.Run("Drops the record once attempts exceed the bound", func(t *testing.T) {
		queue := openTestQueue(t, filepath.Join(t.TempDir(), "overflow.jsonl"), 0)
		defer queue.Close()

		_, err := queue.Enqueue("idx", overflowEvents("E1"), errors.New("refused"))
		assert.Nil(t, err)

		for i := 0; i < 2; i++ {
			dropped, err := queue.Fail(2, errors.New("refused"))
			assert.Nil(t, err)
			assert.False(t, dropped)
		}
		dropped, err := queue.Fail(2, errors.New("refused"))
		assert.Nil(t, err)
		assert.True(t, dropped)
		assert.Equal(t, 0, queue.Pending())
	})

	t.Run("Attempt counts survive a restart", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overflow.jsonl")

		queue := openTestQueue(t, path, 0)
		_, err := queue.Enqueue("idx", overflowEvents("E1"), errors.New("refused"))
		assert.Nil(t, err)
		_, err = queue.Fail(5, errors.New("refused"))
		assert.Nil(t, err)
		assert.Nil(t, queue.Close())

		reopened := openTestQueue(t, path, 0)
		defer reopened.Close()
		head, err := reopened.Head()
		assert.Nil(t, err)
		assert.Equal(t, 1, head.Attempts)
	})
}

func TestQueue_Compaction(t *testing.T) {
	t.Run("A sustained retry loop does not grow the segment file without bound", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overflow.jsonl")
		queue := openTestQueue(t, path, 0)
		defer queue.Close()

		_, err := queue.Enqueue("idx", overflowEvents("E1"), errors.New("refused"))
		assert.Nil(t, err)

		failUntil := func(total int) {
			for i := 0; i < total; i++ {
				dropped, err := queue.Fail(100000, errors.New("refused"))
				require.Nil(t, err)
				require.False(t, dropped)
			}
		}

		failUntil(120)
		grown, err := os.Stat(path)
		require.Nil(t, err)

		failUntil(280)
		compacted, err := os.Stat(path)
		require.Nil(t, err)

		assert.Less(t, compacted.Size(), grown.Size())
		assert.Equal(t, 1, queue.Pending())

		head, err := queue.Head()
		assert.Nil(t, err)
		assert.Equal(t, 400, head.Attempts)
		events, err := queue.Events(head.Seq)
		assert.Nil(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "E1", events[0].Message)
	})
}

func openTestQueue(t *testing.T, path string, maxPending int) *Queue {
	t.Helper()
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 12,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	require.Nil(t, err)
	queue, err := OpenQueue(path, maxPending, cache, zap.NewNop())
	require.Nil(t, err)
	return queue
}

func overflowEvents(messages ...string) []eventModel.LogEvent {
	events := make([]eventModel.LogEvent, 0, len(messages))
	for _, message := range messages {
		events = append(events, eventModel.LogEvent{
			Timestamp: time.Now().UTC().Truncate(time.Millisecond),
			Severity:  eventModel.InfoLevel,
			Message:   message,
		})
	}
	return events
}
