package workers

import (
	"context"
	"testing"
	"time"

	"log/slog"

	"chat-presence/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRetentionWorker_PurgesOnEachTick(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	logMock := mocks.NewMockIMessageLog(ctrl)

	purged := make(chan struct{}, 10)
	logMock.EXPECT().
		PurgeOlderThan(24 * time.Hour).
		DoAndReturn(func(time.Duration) (int, error) {
			purged <- struct{}{}
			return 3, nil
		}).
		MinTimes(2)

	worker := NewRetentionWorker(slog.Default(), logMock, 24*time.Hour, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Wait for at least two purge rounds
	for i := 0; i < 2; i++ {
		select {
		case <-purged:
		case <-time.After(time.Second):
			req.Fail("retention worker never purged")
		}
	}
	cancel()

	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		req.Fail("retention worker did not stop on cancel")
	}
}

func TestRetentionWorker_KeepsRunningAfterPurgeError(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	logMock := mocks.NewMockIMessageLog(ctrl)

	calls := make(chan struct{}, 10)
	logMock.EXPECT().
		PurgeOlderThan(gomock.Any()).
		DoAndReturn(func(time.Duration) (int, error) {
			calls <- struct{}{}
			return 0, context.DeadlineExceeded
		}).
		MinTimes(2)

	worker := NewRetentionWorker(slog.Default(), logMock, time.Hour, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// A failing purge must not kill the loop
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			req.Fail("retention worker stopped after an error")
		}
	}
}
