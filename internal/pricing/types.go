package pricing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RatioPrecision is the fixed-point base for ratios, fees and USD prices:
// 1e6 = 100% (and $1.00 for prices). Token amounts use 18-decimal units.
var RatioPrecision = big.NewInt(1_000_000)

// CollateralAsset describes one collateral accepted by the pool. Immutable
// once loaded for a session.
type CollateralAsset struct {
	Index   uint64
	Symbol  string
	Address common.Address

	// MintFee and RedeemFee are 1e6-scaled fractions (RatioPrecision = 100%).
	MintFee   *big.Int
	RedeemFee *big.Int

	// DecimalShortfall is 18 minus the asset's native decimal precision,
	// applied when converting 18-decimal amounts to native units.
	DecimalShortfall uint8
}

// ProtocolState is a snapshot of the pool parameters a quote depends on.
// Read fresh per quote, never cached across quotes.
type ProtocolState struct {
	CollateralRatio      *big.Int // 1e6 = fully collateralized
	GovernancePriceUsd   *big.Int // 1e6 = $1.00
	MintPriceThreshold   *big.Int
	RedeemPriceThreshold *big.Int
	TimeWeightedAvgPrice *big.Int
}

// MintQuote is the cost breakdown for minting TotalOut stable tokens.
// CollateralIn is in 18-decimal units; callers apply DecimalShortfall before
// building approval or transaction arguments.
type MintQuote struct {
	TotalOut     *big.Int
	CollateralIn *big.Int
	GovernanceIn *big.Int
}

// RedeemQuote is the payout breakdown for redeeming a stable-token amount.
// When RedeemingAllowed is false the amounts are still populated for display,
// but execution must be refused.
type RedeemQuote struct {
	CollateralOut    *big.Int
	GovernanceOut    *big.Int
	RedeemingAllowed bool
}

// DollarToCollateralFunc converts an 18-decimal dollar amount into the
// equivalent 18-decimal collateral amount, mirroring the pool's
// dollarInCollateral view. The engine calls it at most once per quote and
// only for a non-zero collateral leg.
type DollarToCollateralFunc func(dollarAmount *big.Int) (*big.Int, error)
