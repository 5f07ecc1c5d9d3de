package services

import (
	"sort"
	"sync"
	"time"

	"stablemint-backend/internal/orchestrator"
)

// maxTrackedOperations bounds the in-memory registry; oldest terminal
// operations are pruned first. No cross-session persistence by design.
const maxTrackedOperations = 1000

// OperationSnapshot is the externally visible view of one operation.
type OperationSnapshot struct {
	ID              string                        `json:"id"`
	Kind            orchestrator.OperationKind    `json:"kind"`
	State           orchestrator.OperationState   `json:"state"`
	Account         string                        `json:"account"`
	CollateralIndex uint64                        `json:"collateralIndex"`
	TxHash          string                        `json:"txHash,omitempty"`
	Error           *orchestrator.ClassifiedError `json:"error,omitempty"`
	CreatedAt       time.Time                     `json:"createdAt"`
	UpdatedAt       time.Time                     `json:"updatedAt"`
}

// OperationRegistry tracks in-flight and recently finished operations for
// the status endpoint. It observes the orchestrator's event stream; the
// orchestrator never knows it exists.
type OperationRegistry struct {
	mu  sync.RWMutex
	ops map[string]*OperationSnapshot
}

// NewOperationRegistry creates an empty registry.
func NewOperationRegistry() *OperationRegistry {
	return &OperationRegistry{
		ops: make(map[string]*OperationSnapshot),
	}
}

// OnOperationEvent records the operation's latest state.
func (r *OperationRegistry) OnOperationEvent(event orchestrator.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, ok := r.ops[event.OperationID]
	if !ok {
		snapshot = &OperationSnapshot{
			ID:        event.OperationID,
			CreatedAt: event.Timestamp,
		}
		r.ops[event.OperationID] = snapshot
		r.pruneLocked()
	}

	snapshot.Kind = event.Kind
	snapshot.State = event.State
	snapshot.Account = event.Account.Hex()
	snapshot.CollateralIndex = event.CollateralIndex
	snapshot.UpdatedAt = event.Timestamp
	if event.TxHash != nil {
		snapshot.TxHash = event.TxHash.Hex()
	}
	if event.Error != nil {
		snapshot.Error = event.Error
	}
}

// Get returns the snapshot for id.
func (r *OperationRegistry) Get(id string) (OperationSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot, ok := r.ops[id]
	if !ok {
		return OperationSnapshot{}, false
	}
	return *snapshot, true
}

// List returns all tracked operations, newest first.
func (r *OperationRegistry) List() []OperationSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]OperationSnapshot, 0, len(r.ops))
	for _, snapshot := range r.ops {
		out = append(out, *snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// pruneLocked drops the oldest entries once the registry exceeds its cap.
func (r *OperationRegistry) pruneLocked() {
	if len(r.ops) <= maxTrackedOperations {
		return
	}
	oldest := ""
	var oldestAt time.Time
	for id, snapshot := range r.ops {
		if oldest == "" || snapshot.CreatedAt.Before(oldestAt) {
			oldest = id
			oldestAt = snapshot.CreatedAt
		}
	}
	if oldest != "" {
		delete(r.ops, oldest)
	}
}
