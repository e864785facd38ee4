package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPurgeTarget struct {
	calls   atomic.Int32
	release chan struct{}
	entered chan struct{}
	err     error
}

func (b *blockingPurgeTarget) PurgeExpired(ctx context.Context) (int64, error) {
	b.calls.Add(1)
	if b.entered != nil {
		b.entered <- struct{}{}
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 2, b.err
}

func TestNotificationPurgerRunOnce(t *testing.T) {
	target := &blockingPurgeTarget{}
	purger := NewNotificationPurger(target, "* * * * *")

	assert.True(t, purger.RunOnce(context.Background()))
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestNotificationPurgerRunOnceReportsFailureAsRun(t *testing.T) {
	target := &blockingPurgeTarget{err: errors.New("connection reset")}
	purger := NewNotificationPurger(target, "* * * * *")

	assert.True(t, purger.RunOnce(context.Background()))
}

func TestNotificationPurgerSkipsOverlappingRuns(t *testing.T) {
	target := &blockingPurgeTarget{
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	purger := NewNotificationPurger(target, "* * * * *")

	done := make(chan bool, 1)
	go func() { done <- purger.RunOnce(context.Background()) }()

	select {
	case <-target.entered:
	case <-time.After(time.Second):
		t.Fatal("first purge never started")
	}

	assert.False(t, purger.RunOnce(context.Background()))

	close(target.release)
	require.True(t, <-done)
	assert.Equal(t, int32(1), target.calls.Load())

	target.entered = nil
	assert.True(t, purger.RunOnce(context.Background()))
}

func TestNotificationPurgerDisabledWithoutCron(t *testing.T) {
	target := &blockingPurgeTarget{}
	purger := NewNotificationPurger(target, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	purger.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), target.calls.Load())
}
