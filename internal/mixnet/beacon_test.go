package mixnet

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/stretchr/testify/require"
)

func TestBeacon_BuildsFrameFailureIsSwallowed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	buildFrame := func() ([]byte, error) {
		calls.Add(1)
		return nil, context.Canceled
	}

	b := NewBeacon(&Handle{}, gateway.Recipient{}, buildFrame, clock, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	clock.Advance(SelfPingInterval)
	clock.BlockUntil(1)
	clock.Advance(SelfPingInterval)

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}
