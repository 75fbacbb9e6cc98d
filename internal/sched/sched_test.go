package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepRunsTasksBeforeDeferred(t *testing.T) {
	l := MakeLoop()
	var order []string
	l.Defer(func() { order = append(order, "deferred") })
	l.Post(func() { order = append(order, "task") })

	assert.Equal(t, 2, l.Step())
	assert.Equal(t, []string{"task", "deferred"}, order)
	assert.Equal(t, 0, l.Pending())
}

func TestDeferredQueuedDuringStepRunsNextStep(t *testing.T) {
	l := MakeLoop()
	ran := 0
	l.Defer(func() {
		l.Defer(func() { ran++ })
	})

	l.Step()
	assert.Equal(t, 0, ran)
	assert.Equal(t, 1, l.Pending())
	l.Step()
	assert.Equal(t, 1, ran)
}

func TestTaskDeferInSameStep(t *testing.T) {
	l := MakeLoop()
	ran := false
	l.Post(func() { l.Defer(func() { ran = true }) })

	l.Step()
	assert.True(t, ran)
}

func TestDrain(t *testing.T) {
	l := MakeLoop()
	n := 0
	var chain func()
	chain = func() {
		n++
		if n < 3 {
			l.Defer(chain)
		}
	}
	l.Defer(chain)

	assert.Equal(t, 3, l.Drain())
	assert.Equal(t, 3, n)
}

func TestRunExecutesPostsFromOtherGoroutines(t *testing.T) {
	l := MakeLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var wg sync.WaitGroup
	done := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Post(func() { done <- i })
		}(i)
	}
	wg.Wait()

	seen := map[int]bool{}
	for i := 0; i < 10; i++ {
		select {
		case v := <-done:
			seen[v] = true
		case <-time.After(time.Second):
			t.Fatal("loop did not run posted task")
		}
	}
	assert.Len(t, seen, 10)
}

func TestCoalescerCollapsesToLastValue(t *testing.T) {
	l := MakeLoop()
	var flushed []int
	c := MakeCoalescer(l, func(v int) { flushed = append(flushed, v) })

	for i := 1; i <= 50; i++ {
		c.Trigger(i)
	}
	assert.True(t, c.Pending())
	require.Equal(t, 1, l.Pending())

	l.Step()
	assert.Equal(t, []int{50}, flushed)
	assert.False(t, c.Pending())

	c.Trigger(7)
	l.Step()
	assert.Equal(t, []int{50, 7}, flushed)
}

func TestCoalescerTriggerDuringFlushSchedulesAnother(t *testing.T) {
	l := MakeLoop()
	var flushed []int
	var c *Coalescer[int]
	c = MakeCoalescer(l, func(v int) {
		flushed = append(flushed, v)
		if v == 1 {
			c.Trigger(2)
		}
	})

	c.Trigger(1)
	l.Drain()
	assert.Equal(t, []int{1, 2}, flushed)
}
