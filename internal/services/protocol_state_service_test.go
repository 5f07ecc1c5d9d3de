package services

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"stablemint-backend/internal/pricing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// slowStateReader blocks every read until the poll context expires, modeling
// a ledger endpoint that hangs for the full poll budget.
type slowStateReader struct {
	mu    sync.Mutex
	polls int
}

func (r *slowStateReader) ProtocolState(ctx context.Context) (*pricing.ProtocolState, error) {
	r.mu.Lock()
	r.polls++
	r.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *slowStateReader) pollCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

type fastStateReader struct{}

func (r *fastStateReader) ProtocolState(ctx context.Context) (*pricing.ProtocolState, error) {
	return &pricing.ProtocolState{
		CollateralRatio:      big.NewInt(1_000_000),
		GovernancePriceUsd:   big.NewInt(1_000_000),
		MintPriceThreshold:   big.NewInt(1_010_000),
		RedeemPriceThreshold: big.NewInt(990_000),
		TimeWeightedAvgPrice: big.NewInt(980_000),
	}, nil
}

type capturingStateListener struct {
	snapshots chan *pricing.ProtocolState
}

func (l *capturingStateListener) OnProtocolState(state *pricing.ProtocolState, fetchedAt time.Time) {
	l.snapshots <- state
}

func TestPollerDeliversFirstSnapshotImmediately(t *testing.T) {
	poller := NewProtocolStateService(&fastStateReader{}, time.Hour, quietLogger())
	defer poller.Stop()

	listener := &capturingStateListener{snapshots: make(chan *pricing.ProtocolState, 1)}
	poller.RegisterListener(listener)
	poller.Start()

	select {
	case state := <-listener.snapshots:
		require.NotNil(t, state)
		assert.Equal(t, big.NewInt(1_000_000), state.CollateralRatio)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered after start")
	}
}

func TestPollerStopsWhileReadIsBlocked(t *testing.T) {
	reader := &slowStateReader{}
	poller := NewProtocolStateService(reader, 20*time.Millisecond, quietLogger())

	poller.Start()
	// Wait until the first poll is in flight, then stop mid-read. The read
	// holds the loop for a full interval, so the stop signal must survive
	// until the loop is back in its select.
	require.Eventually(t, func() bool { return reader.pollCount() == 1 },
		time.Second, time.Millisecond)
	poller.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, reader.pollCount(), "poller must not poll again after Stop")
}

func TestPollerStopIsIdempotent(t *testing.T) {
	poller := NewProtocolStateService(&fastStateReader{}, time.Hour, quietLogger())
	poller.Start()
	poller.Stop()
	poller.Stop()
}
