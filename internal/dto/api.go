package dto

import (
	"stablemint-backend/internal/pricing"
)

// API-facing representations. All token amounts travel as decimal strings:
// the fixed-point integers never fit in JSON numbers.

// CollateralAsset mirrors pricing.CollateralAsset for the API.
type CollateralAsset struct {
	Index            uint64 `json:"index"`
	Symbol           string `json:"symbol"`
	Address          string `json:"address"`
	MintFee          string `json:"mintFee"`
	RedeemFee        string `json:"redeemFee"`
	DecimalShortfall uint8  `json:"decimalShortfall"`
}

// NewCollateralAsset converts the internal asset record.
func NewCollateralAsset(asset *pricing.CollateralAsset) CollateralAsset {
	return CollateralAsset{
		Index:            asset.Index,
		Symbol:           asset.Symbol,
		Address:          asset.Address.Hex(),
		MintFee:          asset.MintFee.String(),
		RedeemFee:        asset.RedeemFee.String(),
		DecimalShortfall: asset.DecimalShortfall,
	}
}

// ProtocolState mirrors pricing.ProtocolState for the API and push streams.
type ProtocolState struct {
	CollateralRatio      string `json:"collateralRatio"`
	GovernancePriceUsd   string `json:"governancePriceUsd"`
	MintPriceThreshold   string `json:"mintPriceThreshold"`
	RedeemPriceThreshold string `json:"redeemPriceThreshold"`
	TimeWeightedAvgPrice string `json:"timeWeightedAvgPrice"`
}

// NewProtocolState converts the internal snapshot.
func NewProtocolState(state *pricing.ProtocolState) ProtocolState {
	return ProtocolState{
		CollateralRatio:      state.CollateralRatio.String(),
		GovernancePriceUsd:   state.GovernancePriceUsd.String(),
		MintPriceThreshold:   state.MintPriceThreshold.String(),
		RedeemPriceThreshold: state.RedeemPriceThreshold.String(),
		TimeWeightedAvgPrice: state.TimeWeightedAvgPrice.String(),
	}
}

// MintQuote mirrors pricing.MintQuote for the API.
type MintQuote struct {
	TotalOut     string `json:"totalOut"`
	CollateralIn string `json:"collateralIn"`
	GovernanceIn string `json:"governanceIn"`
}

// NewMintQuote converts the internal quote.
func NewMintQuote(quote *pricing.MintQuote) MintQuote {
	return MintQuote{
		TotalOut:     quote.TotalOut.String(),
		CollateralIn: quote.CollateralIn.String(),
		GovernanceIn: quote.GovernanceIn.String(),
	}
}

// RedeemQuote mirrors pricing.RedeemQuote for the API.
type RedeemQuote struct {
	CollateralOut    string `json:"collateralOut"`
	GovernanceOut    string `json:"governanceOut"`
	RedeemingAllowed bool   `json:"redeemingAllowed"`
}

// NewRedeemQuote converts the internal quote.
func NewRedeemQuote(quote *pricing.RedeemQuote) RedeemQuote {
	return RedeemQuote{
		CollateralOut:    quote.CollateralOut.String(),
		GovernanceOut:    quote.GovernanceOut.String(),
		RedeemingAllowed: quote.RedeemingAllowed,
	}
}

// QuoteMintRequest is the mint quote/execute request body.
type QuoteMintRequest struct {
	CollateralIndex     uint64 `json:"collateralIndex"`
	DollarAmount        string `json:"dollarAmount" binding:"required"`
	ForceCollateralOnly bool   `json:"forceCollateralOnly"`
}

// QuoteRedeemRequest is the redeem quote/execute request body.
type QuoteRedeemRequest struct {
	CollateralIndex uint64 `json:"collateralIndex"`
	DollarAmount    string `json:"dollarAmount" binding:"required"`
}

// CollectRequest is the collect-redemption request body.
type CollectRequest struct {
	CollateralIndex uint64 `json:"collateralIndex"`
}

// OperationAccepted is the 202 response for an execute request.
type OperationAccepted struct {
	OperationID string `json:"operationId"`
}
