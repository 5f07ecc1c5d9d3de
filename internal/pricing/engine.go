package pricing

import (
	"fmt"
	"math/big"
)

// The engine reproduces the pool contract's fixed-point mint/redeem formulas
// bit-for-bit: every multiply-then-divide runs in big.Int with truncating
// division, and the collateral and governance legs are computed independently
// so their rounding never cross-contaminates. No network I/O, no hidden
// state; callers fetch ProtocolState through the ledger and pass it in.

// QuoteMint computes the collateral and governance amounts needed to mint the
// stable-token equivalent of dollarAmount (18-decimal USD units).
func QuoteMint(asset *CollateralAsset, dollarAmount *big.Int, forceCollateralOnly bool, state *ProtocolState, convert DollarToCollateralFunc) (*MintQuote, error) {
	if err := checkInputs(asset, dollarAmount, state); err != nil {
		return nil, err
	}

	collateralDollar, governanceDollar := splitByRatio(dollarAmount, state.CollateralRatio, forceCollateralOnly)

	collateralIn := new(big.Int)
	if collateralDollar.Sign() > 0 {
		converted, err := convert(collateralDollar)
		if err != nil {
			return nil, fmt.Errorf("collateral conversion failed: %w", err)
		}
		collateralIn.Set(converted)
	}

	governanceIn := new(big.Int)
	if governanceDollar.Sign() > 0 {
		if state.GovernancePriceUsd == nil || state.GovernancePriceUsd.Sign() <= 0 {
			return nil, fmt.Errorf("governance price must be positive, got %v", state.GovernancePriceUsd)
		}
		governanceIn.Mul(governanceDollar, RatioPrecision)
		governanceIn.Quo(governanceIn, state.GovernancePriceUsd)
	}

	// The mint fee reduces the USD value of stable token actually minted,
	// not the inputs.
	totalOut := applyFee(dollarAmount, asset.MintFee)

	return &MintQuote{
		TotalOut:     totalOut,
		CollateralIn: collateralIn,
		GovernanceIn: governanceIn,
	}, nil
}

// QuoteRedeem computes the collateral and governance payout for redeeming
// dollarAmount of stable token. The redeem fee is applied before the split,
// mirroring the contract.
func QuoteRedeem(asset *CollateralAsset, dollarAmount *big.Int, state *ProtocolState, convert DollarToCollateralFunc) (*RedeemQuote, error) {
	if err := checkInputs(asset, dollarAmount, state); err != nil {
		return nil, err
	}

	dollarAfterFee := applyFee(dollarAmount, asset.RedeemFee)

	collateralDollar, governanceDollar := splitByRatio(dollarAfterFee, state.CollateralRatio, false)

	collateralOut := new(big.Int)
	if collateralDollar.Sign() > 0 {
		converted, err := convert(collateralDollar)
		if err != nil {
			return nil, fmt.Errorf("collateral conversion failed: %w", err)
		}
		collateralOut.Set(converted)
	}

	governanceOut := new(big.Int)
	if governanceDollar.Sign() > 0 {
		if state.GovernancePriceUsd == nil || state.GovernancePriceUsd.Sign() <= 0 {
			return nil, fmt.Errorf("governance price must be positive, got %v", state.GovernancePriceUsd)
		}
		governanceOut.Mul(governanceDollar, RatioPrecision)
		governanceOut.Quo(governanceOut, state.GovernancePriceUsd)
	}

	allowed := state.TimeWeightedAvgPrice != nil &&
		state.RedeemPriceThreshold != nil &&
		state.TimeWeightedAvgPrice.Cmp(state.RedeemPriceThreshold) <= 0

	return &RedeemQuote{
		CollateralOut:    collateralOut,
		GovernanceOut:    governanceOut,
		RedeemingAllowed: allowed,
	}, nil
}

// splitByRatio splits a dollar amount into its collateral-backed and
// governance-backed legs. Both legs are derived from the input amount
// independently, matching the contract's rounding.
func splitByRatio(dollarAmount, collateralRatio *big.Int, forceCollateralOnly bool) (collateralDollar, governanceDollar *big.Int) {
	collateralDollar = new(big.Int)
	governanceDollar = new(big.Int)

	switch {
	case forceCollateralOnly || collateralRatio.Cmp(RatioPrecision) >= 0:
		collateralDollar.Set(dollarAmount)
	case collateralRatio.Sign() == 0:
		governanceDollar.Set(dollarAmount)
	default:
		collateralDollar.Mul(dollarAmount, collateralRatio)
		collateralDollar.Quo(collateralDollar, RatioPrecision)

		remainder := new(big.Int).Sub(RatioPrecision, collateralRatio)
		governanceDollar.Mul(dollarAmount, remainder)
		governanceDollar.Quo(governanceDollar, RatioPrecision)
	}
	return collateralDollar, governanceDollar
}

// applyFee returns amount * (1e6 - fee) / 1e6 with truncation.
func applyFee(amount, fee *big.Int) *big.Int {
	out := new(big.Int)
	if fee == nil || fee.Sign() == 0 {
		return out.Set(amount)
	}
	out.Sub(RatioPrecision, fee)
	out.Mul(out, amount)
	return out.Quo(out, RatioPrecision)
}

func checkInputs(asset *CollateralAsset, dollarAmount *big.Int, state *ProtocolState) error {
	if asset == nil {
		return fmt.Errorf("collateral asset is required")
	}
	if dollarAmount == nil || dollarAmount.Sign() <= 0 {
		return fmt.Errorf("dollar amount must be positive, got %v", dollarAmount)
	}
	if state == nil || state.CollateralRatio == nil {
		return fmt.Errorf("protocol state with collateral ratio is required")
	}
	if state.CollateralRatio.Sign() < 0 || state.CollateralRatio.Cmp(RatioPrecision) > 0 {
		return fmt.Errorf("collateral ratio out of range: %v", state.CollateralRatio)
	}
	return nil
}

// ToNativeUnits converts an 18-decimal amount to the asset's native decimal
// precision by dividing out the decimal shortfall. Truncates, matching the
// contract's unit conversion.
func ToNativeUnits(amount *big.Int, decimalShortfall uint8) *big.Int {
	out := new(big.Int).Set(amount)
	if decimalShortfall == 0 {
		return out
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimalShortfall)), nil)
	return out.Quo(out, divisor)
}
