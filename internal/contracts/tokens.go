package contracts

import (
	"context"
	"math/big"
	"sync"

	"stablemint-backend/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
)

// Tokens is a lazily-populated registry of ERC-20 bindings keyed by token
// address, so per-asset collateral tokens share one parsed ABI path.
type Tokens struct {
	mu     sync.Mutex
	client *ledger.Client
	byAddr map[common.Address]*ERC20
}

// NewTokens creates an empty token registry over client.
func NewTokens(client *ledger.Client) *Tokens {
	return &Tokens{
		client: client,
		byAddr: make(map[common.Address]*ERC20),
	}
}

// Get returns the binding for token, creating it on first use.
func (r *Tokens) Get(token common.Address) (*ERC20, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bound, ok := r.byAddr[token]; ok {
		return bound, nil
	}
	bound, err := NewERC20(token, r.client)
	if err != nil {
		return nil, err
	}
	r.byAddr[token] = bound
	return bound, nil
}

// ApproveCalldata packs an approve(spender, amount) call for token.
func (r *Tokens) ApproveCalldata(token, spender common.Address, amount *big.Int) ([]byte, error) {
	bound, err := r.Get(token)
	if err != nil {
		return nil, err
	}
	return bound.ApproveCalldata(spender, amount)
}

// BalanceOf reads account's balance of token.
func (r *Tokens) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	bound, err := r.Get(token)
	if err != nil {
		return nil, err
	}
	return bound.BalanceOf(ctx, account)
}

// Allowance reads the live allowance owner has granted spender on token.
func (r *Tokens) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	bound, err := r.Get(token)
	if err != nil {
		return nil, err
	}
	return bound.Allowance(ctx, owner, spender)
}
