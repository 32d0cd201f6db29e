package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDueOrderAndCutoff(t *testing.T) {
	s := New(nil, nil)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	var order []string
	add := func(key string, at time.Time) {
		s.Schedule(key, at, func(context.Context) error {
			order = append(order, key)
			return nil
		})
	}
	add("c", base.Add(3*time.Minute))
	add("a", base.Add(1*time.Minute))
	add("b", base.Add(2*time.Minute))

	assert.Equal(t, 0, s.RunDue(context.Background(), base))
	assert.Equal(t, 2, s.RunDue(context.Background(), base.Add(2*time.Minute)))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, s.Pending())
}

func TestScheduleReplacesKey(t *testing.T) {
	s := New(nil, nil)
	base := time.Now()

	calls := 0
	run := func(context.Context) error { calls++; return nil }
	s.Schedule("inv", base.Add(time.Minute), run)
	s.Schedule("inv", base.Add(time.Hour), run)
	require.Equal(t, 1, s.Pending())

	assert.Equal(t, 0, s.RunDue(context.Background(), base.Add(2*time.Minute)))
	assert.Equal(t, 1, s.RunDue(context.Background(), base.Add(time.Hour)))
	assert.Equal(t, 1, calls)
}

func TestCancel(t *testing.T) {
	s := New(nil, nil)
	s.Schedule("x", time.Now(), func(context.Context) error { return nil })
	assert.True(t, s.Cancel("x"))
	assert.False(t, s.Cancel("x"))
	assert.Equal(t, 0, s.Pending())
}

func TestFailingJobDoesNotStopOthers(t *testing.T) {
	s := New(nil, nil)
	now := time.Now()
	ran := false
	s.Schedule("bad", now, func(context.Context) error { return errors.New("boom") })
	s.Schedule("good", now, func(context.Context) error { ran = true; return nil })

	assert.Equal(t, 2, s.RunDue(context.Background(), now))
	assert.True(t, ran)
}

func TestRunFiresDueJobs(t *testing.T) {
	s := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	s.Schedule("soon", time.Now().Add(20*time.Millisecond), func(context.Context) error {
		wg.Done()
		return nil
	})

	go s.Run(ctx)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}
