package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Push(Job{Symbol: "A"})
	q.Push(Job{Symbol: "B"})
	q.Push(Job{Symbol: "C"})
	require.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		job, ok := q.Pop(context.Background())
		require.True(t, ok)
		assert.Equal(t, want, job.Symbol)
	}
	assert.Zero(t, q.Len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	got := make(chan Job, 1)
	go func() {
		job, ok := q.Pop(context.Background())
		if ok {
			got <- job
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Job{Symbol: "LATE"})

	select {
	case job := <-got:
		assert.Equal(t, "LATE", job.Symbol)
	case <-time.After(2 * time.Second):
		t.Fatal("pop never woke up")
	}
}

func TestQueuePopCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

func TestQueueSignalSurvivesMultipleConsumers(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 10; i++ {
		q.Push(Job{Limit: i})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seen := make(chan int, 10)
	for w := 0; w < 3; w++ {
		go func() {
			for {
				job, ok := q.Pop(ctx)
				if !ok {
					return
				}
				seen <- job.Limit
			}
		}()
	}

	got := map[int]bool{}
	for i := 0; i < 10; i++ {
		select {
		case v := <-seen:
			got[v] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 10 jobs consumed", len(got))
		}
	}
	assert.Len(t, got, 10)
}
