package services

import (
	"fmt"
	"testing"
	"time"

	"stablemint-backend/internal/orchestrator"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id string, eventType orchestrator.EventType, state orchestrator.OperationState, at time.Time) orchestrator.Event {
	return orchestrator.Event{
		Type:        eventType,
		OperationID: id,
		Kind:        orchestrator.KindMint,
		State:       state,
		Account:     common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"),
		Timestamp:   at,
	}
}

func TestRegistryTracksLatestState(t *testing.T) {
	registry := NewOperationRegistry()
	now := time.Now()

	registry.OnOperationEvent(event("op-1", orchestrator.EventTransactionStart, orchestrator.StateValidating, now))
	registry.OnOperationEvent(event("op-1", orchestrator.EventTransactionSubmitted, orchestrator.StateConfirming, now.Add(time.Second)))

	snapshot, ok := registry.Get("op-1")
	require.True(t, ok)
	assert.Equal(t, orchestrator.StateConfirming, snapshot.State)
	assert.Equal(t, now, snapshot.CreatedAt)
	assert.Equal(t, now.Add(time.Second), snapshot.UpdatedAt)
}

func TestRegistryKeepsTxHashAndError(t *testing.T) {
	registry := NewOperationRegistry()
	now := time.Now()

	hash := common.HexToHash("0x01")
	submitted := event("op-1", orchestrator.EventTransactionSubmitted, orchestrator.StateConfirming, now)
	submitted.TxHash = &hash
	registry.OnOperationEvent(submitted)

	failed := event("op-1", orchestrator.EventTransactionError, orchestrator.StateFailed, now.Add(time.Second))
	failed.Error = &orchestrator.ClassifiedError{Class: orchestrator.FailureReverted, Message: "reverted"}
	registry.OnOperationEvent(failed)

	snapshot, ok := registry.Get("op-1")
	require.True(t, ok)
	assert.Equal(t, hash.Hex(), snapshot.TxHash, "the hash survives later events that do not carry one")
	require.NotNil(t, snapshot.Error)
	assert.Equal(t, orchestrator.FailureReverted, snapshot.Error.Class)
}

func TestRegistryListNewestFirst(t *testing.T) {
	registry := NewOperationRegistry()
	base := time.Now()

	for i := 0; i < 3; i++ {
		registry.OnOperationEvent(event(
			fmt.Sprintf("op-%d", i),
			orchestrator.EventTransactionStart,
			orchestrator.StateValidating,
			base.Add(time.Duration(i)*time.Second),
		))
	}

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "op-2", list[0].ID)
	assert.Equal(t, "op-0", list[2].ID)
}

func TestRegistryPrunesOldest(t *testing.T) {
	registry := NewOperationRegistry()
	base := time.Now()

	for i := 0; i <= maxTrackedOperations; i++ {
		registry.OnOperationEvent(event(
			fmt.Sprintf("op-%d", i),
			orchestrator.EventTransactionStart,
			orchestrator.StateValidating,
			base.Add(time.Duration(i)*time.Millisecond),
		))
	}

	_, ok := registry.Get("op-0")
	assert.False(t, ok, "the oldest operation is pruned once the cap is exceeded")
	_, ok = registry.Get(fmt.Sprintf("op-%d", maxTrackedOperations))
	assert.True(t, ok)
}

func TestRegistryUnknownOperation(t *testing.T) {
	registry := NewOperationRegistry()
	_, ok := registry.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, registry.List())
}
