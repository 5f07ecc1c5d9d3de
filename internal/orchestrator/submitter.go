package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"stablemint-backend/internal/ledger"
	"stablemint-backend/internal/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend submits signed contract calls and waits for their receipts.
// Implemented by LedgerBackend; tests substitute fakes.
type Backend interface {
	Submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// LedgerBackend builds, signs and broadcasts transactions through the
// resilient ledger client using the wallet session's key.
type LedgerBackend struct {
	client   *ledger.Client
	session  *wallet.Session
	gasLimit uint64 // 0 = estimate per call
}

// NewLedgerBackend wires the concrete submission path.
func NewLedgerBackend(client *ledger.Client, session *wallet.Session, gasLimit uint64) *LedgerBackend {
	return &LedgerBackend{
		client:   client,
		session:  session,
		gasLimit: gasLimit,
	}
}

// Submit signs and broadcasts a call to the contract at to. The account
// snapshot is taken here; a session disconnect between snapshot and signing
// surfaces as a signing error.
func (b *LedgerBackend) Submit(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	from, ok := b.session.CurrentAccount()
	if !ok {
		return common.Hash{}, fmt.Errorf("no wallet session connected")
	}

	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gas := b.gasLimit
	if gas == 0 {
		gas, err = b.client.EstimateGas(ctx, ethereum.CallMsg{
			From: from,
			To:   &to,
			Data: data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	signed, err := b.session.SignTx(tx)
	if err != nil {
		return common.Hash{}, err
	}

	if err := b.client.SubmitTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// WaitForReceipt blocks until hash is mined or ctx expires.
func (b *LedgerBackend) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return b.client.WaitForReceipt(ctx, hash)
}
