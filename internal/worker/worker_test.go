package worker

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/backend/pkg/queue"
)

func TestRunStopsPromptlyOnCancel(t *testing.T) {
	// Unreachable broker: every Dequeue errors, which must not delay shutdown.
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { rdb.Close() })
	p := NewNotificationProcessor(nil, nil, queue.NewQueue(rdb, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
	require.Error(t, ctx.Err())
}
