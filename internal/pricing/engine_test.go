package pricing

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func e18(n int64) *big.Int {
	out := big.NewInt(n)
	return out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// identityConvert treats one dollar as exactly one collateral unit.
func identityConvert(dollar *big.Int) (*big.Int, error) {
	return new(big.Int).Set(dollar), nil
}

func testAsset() *CollateralAsset {
	return &CollateralAsset{
		Index:            0,
		Symbol:           "USDC",
		Address:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MintFee:          big.NewInt(3000), // 0.3%
		RedeemFee:        big.NewInt(4500), // 0.45%
		DecimalShortfall: 12,
	}
}

func testState(collateralRatio int64) *ProtocolState {
	return &ProtocolState{
		CollateralRatio:      big.NewInt(collateralRatio),
		GovernancePriceUsd:   big.NewInt(1_000_000), // $1.00
		MintPriceThreshold:   big.NewInt(1_010_000),
		RedeemPriceThreshold: big.NewInt(990_000),
		TimeWeightedAvgPrice: big.NewInt(980_000),
	}
}

func TestQuoteMintFullyCollateralized(t *testing.T) {
	quote, err := QuoteMint(testAsset(), e18(100), false, testState(1_000_000), identityConvert)
	require.NoError(t, err)

	assert.Equal(t, 0, quote.GovernanceIn.Sign(), "fully collateralized mint must need no governance tokens")
	assert.Equal(t, e18(100), quote.CollateralIn)
}

func TestQuoteMintFullyAlgorithmic(t *testing.T) {
	quote, err := QuoteMint(testAsset(), e18(100), false, testState(0), identityConvert)
	require.NoError(t, err)

	assert.Equal(t, 0, quote.CollateralIn.Sign(), "zero-ratio mint must need no collateral")
	// Governance price is $1, so the governance leg carries the full amount.
	assert.Equal(t, e18(100), quote.GovernanceIn)
}

func TestQuoteMintFractional(t *testing.T) {
	// 50% ratio, $1 governance price, $100 in: 50/50 split.
	quote, err := QuoteMint(testAsset(), e18(100), false, testState(500_000), identityConvert)
	require.NoError(t, err)

	assert.Equal(t, e18(50), quote.CollateralIn)
	assert.Equal(t, e18(50), quote.GovernanceIn)
}

func TestQuoteMintGovernancePriceScalesLeg(t *testing.T) {
	state := testState(500_000)
	state.GovernancePriceUsd = big.NewInt(2_000_000) // $2.00

	quote, err := QuoteMint(testAsset(), e18(100), false, state, identityConvert)
	require.NoError(t, err)

	// $50 of governance at $2 each.
	assert.Equal(t, e18(25), quote.GovernanceIn)
}

func TestQuoteMintForceCollateralOnly(t *testing.T) {
	quote, err := QuoteMint(testAsset(), e18(100), true, testState(500_000), identityConvert)
	require.NoError(t, err)

	assert.Equal(t, e18(100), quote.CollateralIn)
	assert.Equal(t, 0, quote.GovernanceIn.Sign())
}

func TestQuoteMintFeeOnOutput(t *testing.T) {
	quote, err := QuoteMint(testAsset(), e18(100), false, testState(500_000), identityConvert)
	require.NoError(t, err)

	// The mint fee shrinks the output, never the inputs.
	expectedOut := new(big.Int).Mul(e18(100), big.NewInt(1_000_000-3000))
	expectedOut.Quo(expectedOut, big.NewInt(1_000_000))
	assert.Equal(t, expectedOut, quote.TotalOut)
	assert.Equal(t, e18(50), quote.CollateralIn)
}

func TestQuoteMintZeroFee(t *testing.T) {
	asset := testAsset()
	asset.MintFee = big.NewInt(0)

	quote, err := QuoteMint(asset, e18(100), false, testState(500_000), identityConvert)
	require.NoError(t, err)
	assert.Equal(t, e18(100), quote.TotalOut)
}

func TestQuoteMintLegsRoundIndependently(t *testing.T) {
	// An amount that does not divide evenly: both legs truncate toward zero
	// on their own, so their sum may fall below the input.
	amount := big.NewInt(101)
	quote, err := QuoteMint(testAsset(), amount, false, testState(333_333), identityConvert)
	require.NoError(t, err)

	collateral := new(big.Int).Mul(amount, big.NewInt(333_333))
	collateral.Quo(collateral, big.NewInt(1_000_000))
	governance := new(big.Int).Mul(amount, big.NewInt(666_667))
	governance.Quo(governance, big.NewInt(1_000_000))

	assert.Equal(t, collateral, quote.CollateralIn)
	assert.Equal(t, governance, quote.GovernanceIn)
	sum := new(big.Int).Add(quote.CollateralIn, quote.GovernanceIn)
	assert.True(t, sum.Cmp(amount) <= 0)
}

func TestQuoteMintConverterNotCalledForZeroLeg(t *testing.T) {
	called := false
	convert := func(dollar *big.Int) (*big.Int, error) {
		called = true
		return new(big.Int).Set(dollar), nil
	}

	_, err := QuoteMint(testAsset(), e18(100), false, testState(0), convert)
	require.NoError(t, err)
	assert.False(t, called, "converter must not run when the collateral leg is zero")
}

func TestQuoteMintConverterError(t *testing.T) {
	convert := func(dollar *big.Int) (*big.Int, error) {
		return nil, fmt.Errorf("oracle price is stale")
	}

	_, err := QuoteMint(testAsset(), e18(100), false, testState(500_000), convert)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle price is stale")
}

func TestQuoteMintInputValidation(t *testing.T) {
	_, err := QuoteMint(nil, e18(1), false, testState(500_000), identityConvert)
	assert.Error(t, err)

	_, err = QuoteMint(testAsset(), big.NewInt(0), false, testState(500_000), identityConvert)
	assert.Error(t, err)

	_, err = QuoteMint(testAsset(), big.NewInt(-1), false, testState(500_000), identityConvert)
	assert.Error(t, err)

	_, err = QuoteMint(testAsset(), e18(1), false, testState(1_000_001), identityConvert)
	assert.Error(t, err, "collateral ratio above precision must be rejected")

	_, err = QuoteMint(testAsset(), e18(1), false, nil, identityConvert)
	assert.Error(t, err)
}

func TestQuoteMintIdempotent(t *testing.T) {
	first, err := QuoteMint(testAsset(), e18(73), false, testState(700_000), identityConvert)
	require.NoError(t, err)
	second, err := QuoteMint(testAsset(), e18(73), false, testState(700_000), identityConvert)
	require.NoError(t, err)

	assert.Equal(t, first.TotalOut, second.TotalOut)
	assert.Equal(t, first.CollateralIn, second.CollateralIn)
	assert.Equal(t, first.GovernanceIn, second.GovernanceIn)
}

func TestQuoteRedeemFeeBeforeSplit(t *testing.T) {
	quote, err := QuoteRedeem(testAsset(), e18(100), testState(500_000), identityConvert)
	require.NoError(t, err)

	// Fee reduces the dollar amount first, then the split applies.
	afterFee := new(big.Int).Mul(e18(100), big.NewInt(1_000_000-4500))
	afterFee.Quo(afterFee, big.NewInt(1_000_000))
	half := new(big.Int).Quo(afterFee, big.NewInt(2))

	assert.Equal(t, half, quote.CollateralOut)
	assert.Equal(t, half, quote.GovernanceOut)
}

func TestQuoteRedeemFullyCollateralized(t *testing.T) {
	asset := testAsset()
	asset.RedeemFee = big.NewInt(0)

	quote, err := QuoteRedeem(asset, e18(100), testState(1_000_000), identityConvert)
	require.NoError(t, err)

	assert.Equal(t, e18(100), quote.CollateralOut)
	assert.Equal(t, 0, quote.GovernanceOut.Sign())
}

func TestQuoteRedeemAllowedByTwap(t *testing.T) {
	state := testState(500_000)

	state.TimeWeightedAvgPrice = big.NewInt(980_000)
	state.RedeemPriceThreshold = big.NewInt(990_000)
	quote, err := QuoteRedeem(testAsset(), e18(1), state, identityConvert)
	require.NoError(t, err)
	assert.True(t, quote.RedeemingAllowed, "twap at or below the threshold allows redeeming")

	state.TimeWeightedAvgPrice = big.NewInt(995_000)
	quote, err = QuoteRedeem(testAsset(), e18(1), state, identityConvert)
	require.NoError(t, err)
	assert.False(t, quote.RedeemingAllowed, "twap above the threshold blocks redeeming")

	state.TimeWeightedAvgPrice = big.NewInt(990_000)
	quote, err = QuoteRedeem(testAsset(), e18(1), state, identityConvert)
	require.NoError(t, err)
	assert.True(t, quote.RedeemingAllowed, "twap equal to the threshold allows redeeming")
}

func TestApplyFeeTruncates(t *testing.T) {
	// 1000 * (1e6 - 1) / 1e6 = 999.999 -> 999
	out := applyFee(big.NewInt(1000), big.NewInt(1))
	assert.Equal(t, big.NewInt(999), out)

	out = applyFee(big.NewInt(1000), nil)
	assert.Equal(t, big.NewInt(1000), out)
}

func TestToNativeUnits(t *testing.T) {
	// 6-decimal token: shortfall 12.
	assert.Equal(t, big.NewInt(1_000_000), ToNativeUnits(e18(1), 12))
	assert.Equal(t, e18(1), ToNativeUnits(e18(1), 0))

	// Truncation, not rounding.
	small := big.NewInt(999_999_999_999) // below one native unit
	assert.Equal(t, 0, ToNativeUnits(small, 12).Sign())
}

func TestToNativeUnitsDoesNotMutateInput(t *testing.T) {
	in := e18(5)
	want := new(big.Int).Set(in)
	ToNativeUnits(in, 12)
	assert.Equal(t, want, in)
}

func feeAsset(mintFee, redeemFee int64) *CollateralAsset {
	asset := testAsset()
	asset.MintFee = big.NewInt(mintFee)
	asset.RedeemFee = big.NewInt(redeemFee)
	return asset
}

func TestQuoteMintHigherFeeMintsStrictlyLess(t *testing.T) {
	state := testState(500_000)

	var prev *big.Int
	for _, fee := range []int64{0, 3000, 10_000, 50_000} {
		quote, err := QuoteMint(feeAsset(fee, 0), e18(1000), false, state, identityConvert)
		require.NoError(t, err)
		if prev != nil {
			assert.Equal(t, -1, quote.TotalOut.Cmp(prev),
				"fee %d must mint strictly less than the previous fee level", fee)
		}
		prev = quote.TotalOut
	}
}

func TestQuoteMintFeeLeavesInputsUnchangedAcrossLevels(t *testing.T) {
	state := testState(500_000)

	low, err := QuoteMint(feeAsset(0, 0), e18(1000), false, state, identityConvert)
	require.NoError(t, err)
	high, err := QuoteMint(feeAsset(50_000, 0), e18(1000), false, state, identityConvert)
	require.NoError(t, err)

	assert.Equal(t, low.CollateralIn, high.CollateralIn)
	assert.Equal(t, low.GovernanceIn, high.GovernanceIn)
}

func TestQuoteRedeemHigherFeePaysStrictlyLessOnBothLegs(t *testing.T) {
	state := testState(500_000)

	var prevCollateral, prevGovernance *big.Int
	for _, fee := range []int64{0, 4500, 10_000, 50_000} {
		quote, err := QuoteRedeem(feeAsset(0, fee), e18(1000), state, identityConvert)
		require.NoError(t, err)
		require.True(t, quote.CollateralOut.Sign() > 0)
		require.True(t, quote.GovernanceOut.Sign() > 0)
		if prevCollateral != nil {
			assert.Equal(t, -1, quote.CollateralOut.Cmp(prevCollateral),
				"fee %d must pay strictly less collateral", fee)
			assert.Equal(t, -1, quote.GovernanceOut.Cmp(prevGovernance),
				"fee %d must pay strictly less governance", fee)
		}
		prevCollateral, prevGovernance = quote.CollateralOut, quote.GovernanceOut
	}
}
