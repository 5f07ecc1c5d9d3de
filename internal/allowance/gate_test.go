package allowance

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"stablemint-backend/internal/pricing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	poolAddr       = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	governanceAddr = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	stableAddr     = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	collateralAddr = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	accountAddr    = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
)

// fakeTokenReader serves scripted allowances keyed by token address. The
// gate reads concurrently, so the counter is guarded.
type fakeTokenReader struct {
	mu         sync.Mutex
	allowances map[common.Address]*big.Int
	err        error
	reads      int
}

func (f *fakeTokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if allowance, ok := f.allowances[token]; ok {
		return new(big.Int).Set(allowance), nil
	}
	return new(big.Int), nil
}

func gateAsset() *pricing.CollateralAsset {
	return &pricing.CollateralAsset{
		Index:            0,
		Symbol:           "USDC",
		Address:          collateralAddr,
		MintFee:          big.NewInt(3000),
		RedeemFee:        big.NewInt(4500),
		DecimalShortfall: 12,
	}
}

func TestMintApprovalBothLegsShort(t *testing.T) {
	reader := &fakeTokenReader{allowances: map[common.Address]*big.Int{}}
	gate := NewGate(reader, poolAddr, governanceAddr, stableAddr)

	quote := &pricing.MintQuote{
		TotalOut:     big.NewInt(100),
		CollateralIn: new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		GovernanceIn: big.NewInt(50),
	}

	req, err := gate.MintApproval(context.Background(), gateAsset(), accountAddr, quote)
	require.NoError(t, err)
	assert.True(t, req.NeedsCollateralApproval)
	assert.True(t, req.NeedsGovernanceApproval)
	// Collateral comparisons run in the token's native units.
	assert.Equal(t, big.NewInt(50_000_000), req.CollateralNeeded)
	assert.Equal(t, 2, reader.reads)
}

func TestMintApprovalSufficientAllowance(t *testing.T) {
	reader := &fakeTokenReader{allowances: map[common.Address]*big.Int{
		collateralAddr: big.NewInt(1_000_000_000),
		governanceAddr: big.NewInt(1_000_000_000),
	}}
	gate := NewGate(reader, poolAddr, governanceAddr, stableAddr)

	quote := &pricing.MintQuote{
		TotalOut:     big.NewInt(100),
		CollateralIn: new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		GovernanceIn: big.NewInt(50),
	}

	req, err := gate.MintApproval(context.Background(), gateAsset(), accountAddr, quote)
	require.NoError(t, err)
	assert.False(t, req.NeedsCollateralApproval)
	assert.False(t, req.NeedsGovernanceApproval)
}

func TestMintApprovalExactAllowanceIsEnough(t *testing.T) {
	reader := &fakeTokenReader{allowances: map[common.Address]*big.Int{
		collateralAddr: big.NewInt(50_000_000),
	}}
	gate := NewGate(reader, poolAddr, governanceAddr, stableAddr)

	quote := &pricing.MintQuote{
		TotalOut:     big.NewInt(100),
		CollateralIn: new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		GovernanceIn: new(big.Int),
	}

	req, err := gate.MintApproval(context.Background(), gateAsset(), accountAddr, quote)
	require.NoError(t, err)
	assert.False(t, req.NeedsCollateralApproval, "allowance equal to the need requires no approval")
}

func TestMintApprovalZeroLegSkipsRead(t *testing.T) {
	reader := &fakeTokenReader{allowances: map[common.Address]*big.Int{}}
	gate := NewGate(reader, poolAddr, governanceAddr, stableAddr)

	// Fully collateralized quote: the governance leg is zero, so its
	// allowance is never read and never requires approval.
	quote := &pricing.MintQuote{
		TotalOut:     big.NewInt(100),
		CollateralIn: new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		GovernanceIn: new(big.Int),
	}

	req, err := gate.MintApproval(context.Background(), gateAsset(), accountAddr, quote)
	require.NoError(t, err)
	assert.False(t, req.NeedsGovernanceApproval)
	assert.Equal(t, 1, reader.reads)
}

func TestMintApprovalReadError(t *testing.T) {
	reader := &fakeTokenReader{err: errors.New("connection refused")}
	gate := NewGate(reader, poolAddr, governanceAddr, stableAddr)

	quote := &pricing.MintQuote{
		TotalOut:     big.NewInt(100),
		CollateralIn: new(big.Int).Mul(big.NewInt(50), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		GovernanceIn: new(big.Int),
	}

	_, err := gate.MintApproval(context.Background(), gateAsset(), accountAddr, quote)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collateral allowance")
}

func TestRedeemApproval(t *testing.T) {
	reader := &fakeTokenReader{allowances: map[common.Address]*big.Int{
		stableAddr: big.NewInt(40),
	}}
	gate := NewGate(reader, poolAddr, governanceAddr, stableAddr)

	req, err := gate.RedeemApproval(context.Background(), accountAddr, big.NewInt(50))
	require.NoError(t, err)
	assert.True(t, req.NeedsApproval)
	assert.Equal(t, big.NewInt(40), req.CurrentAllowance)

	req, err = gate.RedeemApproval(context.Background(), accountAddr, big.NewInt(40))
	require.NoError(t, err)
	assert.False(t, req.NeedsApproval)
}

func TestRedeemApprovalZeroAmount(t *testing.T) {
	reader := &fakeTokenReader{}
	gate := NewGate(reader, poolAddr, governanceAddr, stableAddr)

	req, err := gate.RedeemApproval(context.Background(), accountAddr, big.NewInt(0))
	require.NoError(t, err)
	assert.False(t, req.NeedsApproval)
	assert.Equal(t, 0, reader.reads)
}

func TestMaxApprovalIsUint256Max(t *testing.T) {
	expected := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	assert.Equal(t, 0, MaxApproval.Cmp(expected))
}
