package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"stablemint-backend/internal/allowance"
	"stablemint-backend/internal/metrics"
	"stablemint-backend/internal/pricing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OperationKind identifies the economic transaction an operation drives.
type OperationKind string

const (
	KindMint    OperationKind = "mint"
	KindRedeem  OperationKind = "redeem"
	KindCollect OperationKind = "collect"
)

// OperationState is the orchestrator's per-operation state machine position.
type OperationState string

const (
	StateIdle                OperationState = "idle"
	StateValidating          OperationState = "validating"
	StateQuoting             OperationState = "quoting"
	StateApprovingCollateral OperationState = "approving_collateral"
	StateApprovingGovernance OperationState = "approving_governance"
	StateApprovingStable     OperationState = "approving_stable"
	StateSubmitting          OperationState = "submitting"
	StateConfirming          OperationState = "confirming"
	StateSucceeded           OperationState = "succeeded"
	StateFailed              OperationState = "failed"
)

const slippageDenominator = 10_000

// Pool is the contract surface the orchestrator drives. Implemented by
// contracts.Pool.
type Pool interface {
	Address() common.Address
	ProtocolState(ctx context.Context) (*pricing.ProtocolState, error)
	DollarInCollateral(ctx context.Context, index uint64, dollarAmount *big.Int) (*big.Int, error)
	RedeemCollateralBalance(ctx context.Context, account common.Address, index uint64) (*big.Int, error)
	MintCalldata(index uint64, dollarAmount, minOut, maxCollateralIn, maxGovernanceIn *big.Int, forceCollateralOnly bool) ([]byte, error)
	RedeemCalldata(index uint64, dollarAmount, minGovernanceOut, minCollateralOut *big.Int) ([]byte, error)
	CollectCalldata(index uint64) ([]byte, error)
}

// ApprovalGate derives which approvals must precede an economic
// transaction. Implemented by allowance.Gate.
type ApprovalGate interface {
	MintApproval(ctx context.Context, asset *pricing.CollateralAsset, account common.Address, quote *pricing.MintQuote) (*allowance.MintRequirement, error)
	RedeemApproval(ctx context.Context, account common.Address, amount *big.Int) (*allowance.RedeemRequirement, error)
	Spender() common.Address
	GovernanceToken() common.Address
	StableToken() common.Address
}

// TokenBinder packs approval calldata for arbitrary tokens. Implemented by
// contracts.Tokens.
type TokenBinder interface {
	ApproveCalldata(token, spender common.Address, amount *big.Int) ([]byte, error)
}

// Wallet exposes the current account snapshot. Implemented by
// wallet.Session.
type Wallet interface {
	CurrentAccount() (common.Address, bool)
}

// MintRequest describes one user-initiated mint.
type MintRequest struct {
	CollateralIndex     uint64
	DollarAmount        *big.Int
	ForceCollateralOnly bool
	// OperationID optionally pre-assigns the operation's id so callers can
	// hand it out before the operation runs. Generated when empty.
	OperationID string
}

// RedeemRequest describes one user-initiated redeem.
type RedeemRequest struct {
	CollateralIndex uint64
	DollarAmount    *big.Int
	OperationID     string
}

// CollectRequest describes one collect of a pending redemption.
type CollectRequest struct {
	CollateralIndex uint64
	OperationID     string
}

// Result is the terminal outcome of one operation.
type Result struct {
	OperationID string
	Kind        OperationKind
	TxHash      common.Hash
	// Collected is set when a redeem request resolved into collecting an
	// existing pending redemption instead of starting a new one.
	Collected bool
	Err       *ClassifiedError
}

// operation is the mutable per-operation record; events carry snapshots of
// it. Owned by a single goroutine for its whole lifetime.
type operation struct {
	id              string
	kind            OperationKind
	state           OperationState
	account         common.Address
	collateralIndex uint64
	txHash          common.Hash
}

// Config wires an Orchestrator.
type Config struct {
	Pool           Pool
	Gate           ApprovalGate
	Tokens         TokenBinder
	Backend        Backend
	Wallet         Wallet
	Assets         []*pricing.CollateralAsset
	SlippageBps    int64
	ReceiptTimeout time.Duration
	Logger         *logrus.Logger
}

// Orchestrator drives the mint/redeem/collect workflow: validate, quote,
// approve in order, submit with slippage bounds, confirm via receipt, and
// classify failures. One logical flow per operation; writes are strictly
// sequential within it.
type Orchestrator struct {
	pool    Pool
	gate    ApprovalGate
	tokens  TokenBinder
	backend Backend
	wallet  Wallet

	assets map[uint64]*pricing.CollateralAsset

	slippageBps    int64
	receiptTimeout time.Duration

	listenerMu sync.RWMutex
	listeners  []Listener

	logger *logrus.Logger
}

// New creates an orchestrator over the given collaborators. The collateral
// catalog is immutable for the session.
func New(cfg Config) *Orchestrator {
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = 50
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 3 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	assets := make(map[uint64]*pricing.CollateralAsset, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		assets[asset.Index] = asset
	}

	return &Orchestrator{
		pool:           cfg.Pool,
		gate:           cfg.Gate,
		tokens:         cfg.Tokens,
		backend:        cfg.Backend,
		wallet:         cfg.Wallet,
		assets:         assets,
		slippageBps:    cfg.SlippageBps,
		receiptTimeout: cfg.ReceiptTimeout,
		logger:         cfg.Logger,
	}
}

// Collateral looks up one collateral asset by protocol index.
func (o *Orchestrator) Collateral(index uint64) (*pricing.CollateralAsset, bool) {
	asset, ok := o.assets[index]
	return asset, ok
}

// Collaterals returns the session's collateral catalog ordered by index.
func (o *Orchestrator) Collaterals() []*pricing.CollateralAsset {
	out := make([]*pricing.CollateralAsset, 0, len(o.assets))
	for _, asset := range o.assets {
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (o *Orchestrator) converter(ctx context.Context, index uint64) pricing.DollarToCollateralFunc {
	return func(dollarAmount *big.Int) (*big.Int, error) {
		return o.pool.DollarInCollateral(ctx, index, dollarAmount)
	}
}

// QuoteMint reads a fresh protocol state and computes a mint quote. The
// quote is ephemeral: any change to the amount, asset, force flag or
// protocol state invalidates it.
func (o *Orchestrator) QuoteMint(ctx context.Context, req MintRequest) (*pricing.MintQuote, *pricing.ProtocolState, error) {
	start := time.Now()
	defer func() {
		metrics.QuoteDuration.WithLabelValues(string(KindMint)).Observe(time.Since(start).Seconds())
	}()

	asset, ok := o.assets[req.CollateralIndex]
	if !ok {
		return nil, nil, newValidationError("unknown collateral index %d", req.CollateralIndex)
	}
	if req.DollarAmount == nil || req.DollarAmount.Sign() <= 0 {
		return nil, nil, newValidationError("dollar amount must be positive")
	}

	state, err := o.pool.ProtocolState(ctx)
	if err != nil {
		return nil, nil, err
	}
	quote, err := pricing.QuoteMint(asset, req.DollarAmount, req.ForceCollateralOnly, state, o.converter(ctx, asset.Index))
	if err != nil {
		return nil, nil, err
	}
	return quote, state, nil
}

// QuoteRedeem reads a fresh protocol state and computes a redeem quote.
func (o *Orchestrator) QuoteRedeem(ctx context.Context, req RedeemRequest) (*pricing.RedeemQuote, *pricing.ProtocolState, error) {
	start := time.Now()
	defer func() {
		metrics.QuoteDuration.WithLabelValues(string(KindRedeem)).Observe(time.Since(start).Seconds())
	}()

	asset, ok := o.assets[req.CollateralIndex]
	if !ok {
		return nil, nil, newValidationError("unknown collateral index %d", req.CollateralIndex)
	}
	if req.DollarAmount == nil || req.DollarAmount.Sign() <= 0 {
		return nil, nil, newValidationError("dollar amount must be positive")
	}

	state, err := o.pool.ProtocolState(ctx)
	if err != nil {
		return nil, nil, err
	}
	quote, err := pricing.QuoteRedeem(asset, req.DollarAmount, state, o.converter(ctx, asset.Index))
	if err != nil {
		return nil, nil, err
	}
	return quote, state, nil
}

func newOperation(kind OperationKind, collateralIndex uint64, id string) *operation {
	if id == "" {
		id = uuid.New().String()
	}
	return &operation{
		id:              id,
		kind:            kind,
		state:           StateIdle,
		collateralIndex: collateralIndex,
	}
}

// ExecuteMint drives a full mint operation and blocks until it reaches a
// terminal state.
func (o *Orchestrator) ExecuteMint(ctx context.Context, req MintRequest) *Result {
	op := newOperation(KindMint, req.CollateralIndex, req.OperationID)

	op.state = StateValidating
	account, asset, cerr := o.validate(op, req.CollateralIndex, req.DollarAmount)
	if cerr != nil {
		o.emit(op, EventTransactionStart, nil)
		return o.fail(op, cerr)
	}
	op.account = account
	o.emit(op, EventTransactionStart, nil)

	op.state = StateQuoting
	state, err := o.pool.ProtocolState(ctx)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	quote, err := pricing.QuoteMint(asset, req.DollarAmount, req.ForceCollateralOnly, state, o.converter(ctx, asset.Index))
	if err != nil {
		return o.fail(op, Classify(err))
	}

	approvals, err := o.gate.MintApproval(ctx, asset, account, quote)
	if err != nil {
		return o.fail(op, Classify(err))
	}

	// Approvals are strictly sequential: each one is awaited to its receipt
	// before the next write goes out.
	if approvals.NeedsCollateralApproval {
		if cerr := o.approve(ctx, op, StateApprovingCollateral, asset.Address, asset.Symbol); cerr != nil {
			return o.fail(op, cerr)
		}
	}
	if approvals.NeedsGovernanceApproval {
		if cerr := o.approve(ctx, op, StateApprovingGovernance, o.gate.GovernanceToken(), "governance"); cerr != nil {
			return o.fail(op, cerr)
		}
	}

	// Slippage bounds come from the step-2 quote; the amounts are not
	// re-quoted before submission. A sufficiently stale quote reverts
	// on-chain, which is the contract's own slippage guard.
	minOut := o.minusSlippage(quote.TotalOut)
	maxCollateralIn := o.plusSlippage(pricing.ToNativeUnits(quote.CollateralIn, asset.DecimalShortfall))
	maxGovernanceIn := o.plusSlippage(quote.GovernanceIn)

	data, err := o.pool.MintCalldata(asset.Index, req.DollarAmount, minOut, maxCollateralIn, maxGovernanceIn, req.ForceCollateralOnly)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	return o.submitAndConfirm(ctx, op, data)
}

// ExecuteRedeem drives a full redeem operation. When the account already has
// a pending redemption for the same collateral index, the operation
// short-circuits into collecting it instead of starting a new redeem.
func (o *Orchestrator) ExecuteRedeem(ctx context.Context, req RedeemRequest) *Result {
	op := newOperation(KindRedeem, req.CollateralIndex, req.OperationID)

	op.state = StateValidating
	account, asset, cerr := o.validate(op, req.CollateralIndex, req.DollarAmount)
	if cerr != nil {
		o.emit(op, EventTransactionStart, nil)
		return o.fail(op, cerr)
	}
	op.account = account
	o.emit(op, EventTransactionStart, nil)

	op.state = StateQuoting
	pending, err := o.pool.RedeemCollateralBalance(ctx, account, asset.Index)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	if pending.Sign() > 0 {
		o.logger.WithFields(logrus.Fields{
			"operation_id":     op.id,
			"account":          account.Hex(),
			"collateral_index": asset.Index,
			"pending":          pending.String(),
		}).Info("pending redemption found, collecting it before a new redeem")
		result := o.runCollect(ctx, op)
		result.Collected = true
		return result
	}

	state, err := o.pool.ProtocolState(ctx)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	quote, err := pricing.QuoteRedeem(asset, req.DollarAmount, state, o.converter(ctx, asset.Index))
	if err != nil {
		return o.fail(op, Classify(err))
	}
	if !quote.RedeemingAllowed {
		return o.fail(op, newValidationError("redeeming is currently disabled: time-weighted average price is above the redeem threshold"))
	}

	approvals, err := o.gate.RedeemApproval(ctx, account, req.DollarAmount)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	if approvals.NeedsApproval {
		if cerr := o.approve(ctx, op, StateApprovingStable, o.gate.StableToken(), "stable"); cerr != nil {
			return o.fail(op, cerr)
		}
	}

	minGovernanceOut := o.minusSlippage(quote.GovernanceOut)
	minCollateralOut := o.minusSlippage(pricing.ToNativeUnits(quote.CollateralOut, asset.DecimalShortfall))

	data, err := o.pool.RedeemCalldata(asset.Index, req.DollarAmount, minGovernanceOut, minCollateralOut)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	// A successful redeem only creates a pending redemption; the collateral
	// arrives through a later collect.
	return o.submitAndConfirm(ctx, op, data)
}

// ExecuteCollect collects a pending redemption for the bound account.
func (o *Orchestrator) ExecuteCollect(ctx context.Context, req CollectRequest) *Result {
	op := newOperation(KindCollect, req.CollateralIndex, req.OperationID)

	op.state = StateValidating
	account, ok := o.wallet.CurrentAccount()
	if !ok {
		o.emit(op, EventTransactionStart, nil)
		return o.fail(op, newValidationError("no wallet account bound"))
	}
	op.account = account
	if _, known := o.assets[req.CollateralIndex]; !known {
		o.emit(op, EventTransactionStart, nil)
		return o.fail(op, newValidationError("unknown collateral index %d", req.CollateralIndex))
	}
	o.emit(op, EventTransactionStart, nil)

	op.state = StateQuoting
	pending, err := o.pool.RedeemCollateralBalance(ctx, account, req.CollateralIndex)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	if pending.Sign() == 0 {
		return o.fail(op, newValidationError("no pending redemption to collect for collateral index %d", req.CollateralIndex))
	}

	return o.runCollect(ctx, op)
}

// validate performs the local checks that must never reach the ledger.
func (o *Orchestrator) validate(op *operation, collateralIndex uint64, amount *big.Int) (common.Address, *pricing.CollateralAsset, *ClassifiedError) {
	account, ok := o.wallet.CurrentAccount()
	if !ok {
		return common.Address{}, nil, newValidationError("no wallet account bound")
	}
	op.account = account

	asset, known := o.assets[collateralIndex]
	if !known {
		return account, nil, newValidationError("unknown collateral index %d", collateralIndex)
	}
	if amount == nil || amount.Sign() <= 0 {
		return account, asset, newValidationError("amount must be positive")
	}
	return account, asset, nil
}

// runCollect submits collectRedemption for the operation's collateral index.
// Shared by ExecuteCollect and the redeem short-circuit.
func (o *Orchestrator) runCollect(ctx context.Context, op *operation) *Result {
	op.kind = KindCollect
	data, err := o.pool.CollectCalldata(op.collateralIndex)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	return o.submitAndConfirm(ctx, op, data)
}

// approve submits one unlimited approval for token and waits for its
// receipt. Emits the before/after notifications; never retries.
func (o *Orchestrator) approve(ctx context.Context, op *operation, state OperationState, token common.Address, symbol string) *ClassifiedError {
	op.state = state
	o.emit(op, EventApprovalNeeded, func(e *Event) {
		e.Token = &token
		e.TokenSymbol = symbol
	})

	data, err := o.tokens.ApproveCalldata(token, o.gate.Spender(), allowance.MaxApproval)
	if err != nil {
		return Classify(err)
	}
	hash, err := o.backend.Submit(ctx, token, data)
	if err != nil {
		return Classify(err)
	}
	metrics.ApprovalsSubmitted.WithLabelValues(symbol).Inc()

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.receiptTimeout)
	defer cancel()
	receipt, err := o.backend.WaitForReceipt(waitCtx, hash)
	if err != nil {
		return Classify(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &ClassifiedError{
			Class:   FailureReverted,
			Message: fmt.Sprintf("approval of %s reverted on-chain (tx %s)", symbol, hash.Hex()),
		}
	}

	o.emit(op, EventApprovalComplete, func(e *Event) {
		e.Token = &token
		e.TokenSymbol = symbol
		h := hash
		e.TxHash = &h
	})
	return nil
}

// submitAndConfirm broadcasts the economic transaction and blocks until its
// receipt. The receipt status is authoritative over submission success.
// Cancellation authority ends at submission: once broadcast, confirmation
// keeps polling even if the caller's context is cancelled.
func (o *Orchestrator) submitAndConfirm(ctx context.Context, op *operation, data []byte) *Result {
	op.state = StateSubmitting
	hash, err := o.backend.Submit(ctx, o.pool.Address(), data)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	op.txHash = hash
	metrics.TransactionsSubmitted.WithLabelValues(string(op.kind)).Inc()

	op.state = StateConfirming
	o.emit(op, EventTransactionSubmitted, func(e *Event) {
		h := hash
		e.TxHash = &h
	})

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.receiptTimeout)
	defer cancel()
	receipt, err := o.backend.WaitForReceipt(waitCtx, hash)
	if err != nil {
		return o.fail(op, Classify(err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return o.fail(op, &ClassifiedError{
			Class:   FailureReverted,
			Message: fmt.Sprintf("transaction %s reverted on-chain", hash.Hex()),
		})
	}

	op.state = StateSucceeded
	metrics.TransactionsSucceeded.WithLabelValues(string(op.kind)).Inc()
	o.emit(op, EventTransactionSuccess, func(e *Event) {
		h := hash
		e.TxHash = &h
	})
	o.logger.WithFields(logrus.Fields{
		"operation_id": op.id,
		"kind":         op.kind,
		"tx_hash":      hash.Hex(),
	}).Info("operation confirmed")

	return &Result{OperationID: op.id, Kind: op.kind, TxHash: hash}
}

// fail moves the operation to its terminal failed state. No failure is
// fatal to the session; callers stay retryable.
func (o *Orchestrator) fail(op *operation, cerr *ClassifiedError) *Result {
	op.state = StateFailed
	metrics.TransactionsFailed.WithLabelValues(string(op.kind), string(cerr.Class)).Inc()
	o.emit(op, EventTransactionError, func(e *Event) {
		e.Error = cerr
		if (op.txHash != common.Hash{}) {
			h := op.txHash
			e.TxHash = &h
		}
	})

	entry := o.logger.WithFields(logrus.Fields{
		"operation_id":  op.id,
		"kind":          op.kind,
		"failure_class": cerr.Class,
	})
	if cerr.Class == FailureUserRejected || cerr.Class == FailureValidation {
		entry.Info(cerr.Message)
	} else {
		entry.WithField("error", cerr.Message).Warn("operation failed")
	}

	return &Result{OperationID: op.id, Kind: op.kind, TxHash: op.txHash, Err: cerr}
}

// minusSlippage reduces a quoted minimum output by the slippage tolerance.
func (o *Orchestrator) minusSlippage(amount *big.Int) *big.Int {
	out := new(big.Int).SetInt64(slippageDenominator - o.slippageBps)
	out.Mul(out, amount)
	return out.Quo(out, big.NewInt(slippageDenominator))
}

// plusSlippage raises a quoted maximum input by the slippage tolerance.
func (o *Orchestrator) plusSlippage(amount *big.Int) *big.Int {
	out := new(big.Int).SetInt64(slippageDenominator + o.slippageBps)
	out.Mul(out, amount)
	return out.Quo(out, big.NewInt(slippageDenominator))
}
