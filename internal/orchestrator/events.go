package orchestrator

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies one entry in an operation's ordered event stream.
type EventType string

const (
	EventTransactionStart     EventType = "transaction_start"
	EventApprovalNeeded       EventType = "approval_needed"
	EventApprovalComplete     EventType = "approval_complete"
	EventTransactionSubmitted EventType = "transaction_submitted"
	EventTransactionSuccess   EventType = "transaction_success"
	EventTransactionError     EventType = "transaction_error"
)

// Event is a typed notification emitted by the orchestrator. One stream per
// operation, strictly ordered; listeners are invoked synchronously from the
// operation's own goroutine.
type Event struct {
	Type            EventType       `json:"type"`
	OperationID     string          `json:"operation_id"`
	Kind            OperationKind   `json:"kind"`
	State           OperationState  `json:"state"`
	Account         common.Address  `json:"account"`
	CollateralIndex uint64          `json:"collateral_index"`
	Token           *common.Address `json:"token,omitempty"`    // approval events
	TokenSymbol     string          `json:"token_symbol,omitempty"`
	TxHash          *common.Hash    `json:"tx_hash,omitempty"`
	Error           *ClassifiedError `json:"error,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Listener receives operation events. The orchestrator stays ignorant of
// concrete consumers; the push service, the NATS publisher and the operation
// registry all register through this interface.
type Listener interface {
	OnOperationEvent(event Event)
}

// RegisterListener registers a listener for operation events.
func (o *Orchestrator) RegisterListener(listener Listener) {
	o.listenerMu.Lock()
	defer o.listenerMu.Unlock()
	o.listeners = append(o.listeners, listener)
}

// UnregisterListener removes a previously registered listener.
func (o *Orchestrator) UnregisterListener(listener Listener) {
	o.listenerMu.Lock()
	defer o.listenerMu.Unlock()
	for i, l := range o.listeners {
		if l == listener {
			o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
			break
		}
	}
}

// emit delivers an event to every listener in registration order. Delivery
// is synchronous so the per-operation stream stays strictly ordered; a
// panicking listener is isolated and logged.
func (o *Orchestrator) emit(op *operation, eventType EventType, mutate func(*Event)) {
	event := Event{
		Type:            eventType,
		OperationID:     op.id,
		Kind:            op.kind,
		State:           op.state,
		Account:         op.account,
		CollateralIndex: op.collateralIndex,
		Timestamp:       time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&event)
	}

	o.listenerMu.RLock()
	listeners := make([]Listener, len(o.listeners))
	copy(listeners, o.listeners)
	o.listenerMu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.WithField("panic", r).Warn("operation event listener panicked")
				}
			}()
			listener.OnOperationEvent(event)
		}()
	}
}
