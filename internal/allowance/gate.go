package allowance

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"stablemint-backend/internal/pricing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MaxApproval is the amount requested for every approval transaction: a
// one-time unlimited approval so subsequent operations skip the approval
// step. This is a deliberate UX/gas trade-off carried over from the
// protocol's own frontend, not a security requirement; do not silently
// change it to exact-amount approvals.
var MaxApproval = new(big.Int).Set(abi.MaxUint256)

// TokenReader reads live ERC-20 allowances. Implemented by
// contracts.Tokens; tests substitute fakes.
type TokenReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// MintRequirement reports which approvals must precede a mint.
type MintRequirement struct {
	NeedsCollateralApproval bool
	NeedsGovernanceApproval bool
	CollateralNeeded        *big.Int // native units
	GovernanceNeeded        *big.Int // 18-decimal units
	CollateralAllowance     *big.Int
	GovernanceAllowance     *big.Int
}

// RedeemRequirement reports whether a stable-token approval must precede a
// redeem.
type RedeemRequirement struct {
	NeedsApproval    bool
	CurrentAllowance *big.Int
}

// Gate derives approval requirements from live allowance reads. Never
// stored; recomputed each time a quote changes.
type Gate struct {
	tokens          TokenReader
	spender         common.Address // the pool contract
	governanceToken common.Address
	stableToken     common.Address
}

// NewGate creates a gate that checks allowances granted to the pool.
func NewGate(tokens TokenReader, pool, governanceToken, stableToken common.Address) *Gate {
	return &Gate{
		tokens:          tokens,
		spender:         pool,
		governanceToken: governanceToken,
		stableToken:     stableToken,
	}
}

// Spender returns the address approvals are granted to.
func (g *Gate) Spender() common.Address {
	return g.spender
}

// GovernanceToken returns the governance token address.
func (g *Gate) GovernanceToken() common.Address {
	return g.governanceToken
}

// StableToken returns the stable token address.
func (g *Gate) StableToken() common.Address {
	return g.stableToken
}

// MintApproval derives the approval requirements for executing quote. The
// two allowance reads are independent and side-effect-free, so they are
// issued concurrently and joined. A zero amount needed never requires an
// approval, whatever the current allowance.
func (g *Gate) MintApproval(ctx context.Context, asset *pricing.CollateralAsset, account common.Address, quote *pricing.MintQuote) (*MintRequirement, error) {
	collateralNeeded := pricing.ToNativeUnits(quote.CollateralIn, asset.DecimalShortfall)
	governanceNeeded := new(big.Int).Set(quote.GovernanceIn)

	req := &MintRequirement{
		CollateralNeeded:    collateralNeeded,
		GovernanceNeeded:    governanceNeeded,
		CollateralAllowance: new(big.Int),
		GovernanceAllowance: new(big.Int),
	}

	var wg sync.WaitGroup
	var collateralErr, governanceErr error

	if collateralNeeded.Sign() > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			current, err := g.tokens.Allowance(ctx, asset.Address, account, g.spender)
			if err != nil {
				collateralErr = err
				return
			}
			req.CollateralAllowance = current
		}()
	}
	if governanceNeeded.Sign() > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			current, err := g.tokens.Allowance(ctx, g.governanceToken, account, g.spender)
			if err != nil {
				governanceErr = err
				return
			}
			req.GovernanceAllowance = current
		}()
	}
	wg.Wait()

	if collateralErr != nil {
		return nil, fmt.Errorf("failed to read collateral allowance: %w", collateralErr)
	}
	if governanceErr != nil {
		return nil, fmt.Errorf("failed to read governance allowance: %w", governanceErr)
	}

	req.NeedsCollateralApproval = collateralNeeded.Sign() > 0 && req.CollateralAllowance.Cmp(collateralNeeded) < 0
	req.NeedsGovernanceApproval = governanceNeeded.Sign() > 0 && req.GovernanceAllowance.Cmp(governanceNeeded) < 0
	return req, nil
}

// RedeemApproval derives the stable-token approval requirement for
// redeeming amount.
func (g *Gate) RedeemApproval(ctx context.Context, account common.Address, amount *big.Int) (*RedeemRequirement, error) {
	req := &RedeemRequirement{CurrentAllowance: new(big.Int)}
	if amount == nil || amount.Sign() <= 0 {
		return req, nil
	}

	current, err := g.tokens.Allowance(ctx, g.stableToken, account, g.spender)
	if err != nil {
		return nil, fmt.Errorf("failed to read stable-token allowance: %w", err)
	}
	req.CurrentAllowance = current
	req.NeedsApproval = current.Cmp(amount) < 0
	return req, nil
}
