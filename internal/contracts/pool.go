package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"stablemint-backend/internal/ledger"
	"stablemint-backend/internal/pricing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Pool wraps the stable-token pool contract: typed view reads routed through
// the resilient ledger client plus calldata builders for the write entry
// points. The orchestrator owns signing and submission.
type Pool struct {
	address common.Address
	abi     abi.ABI
	client  *ledger.Client
}

// NewPool parses the pool ABI and binds it to address.
func NewPool(address common.Address, client *ledger.Client) (*Pool, error) {
	parsed, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	return &Pool{
		address: address,
		abi:     parsed,
		client:  client,
	}, nil
}

// Address returns the pool contract address.
func (p *Pool) Address() common.Address {
	return p.address
}

func (p *Pool) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := p.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	out, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &p.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	return out, nil
}

func (p *Pool) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := p.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	results, err := p.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned unexpected type %T", method, results[0])
	}
	return value, nil
}

// CollateralRatio reads the protocol-wide collateral ratio (1e6 scaled).
func (p *Pool) CollateralRatio(ctx context.Context) (*big.Int, error) {
	return p.callUint(ctx, "collateralRatio")
}

// GovernancePriceUsd reads the governance token USD price (1e6 scaled).
func (p *Pool) GovernancePriceUsd(ctx context.Context) (*big.Int, error) {
	return p.callUint(ctx, "governancePriceUsd")
}

// DollarInCollateral converts an 18-decimal dollar amount into the
// equivalent 18-decimal collateral amount via the pool's own price function.
func (p *Pool) DollarInCollateral(ctx context.Context, index uint64, dollarAmount *big.Int) (*big.Int, error) {
	return p.callUint(ctx, "dollarInCollateral", new(big.Int).SetUint64(index), dollarAmount)
}

// RedeemCollateralBalance reads the uncollected redemption balance for
// account and collateral index. Non-zero means a pending redemption exists.
func (p *Pool) RedeemCollateralBalance(ctx context.Context, account common.Address, index uint64) (*big.Int, error) {
	return p.callUint(ctx, "redeemCollateralBalance", account, new(big.Int).SetUint64(index))
}

// ProtocolState reads a fresh pricing snapshot. Callers must not cache the
// result across quotes.
func (p *Pool) ProtocolState(ctx context.Context) (*pricing.ProtocolState, error) {
	ratio, err := p.callUint(ctx, "collateralRatio")
	if err != nil {
		return nil, err
	}
	price, err := p.callUint(ctx, "governancePriceUsd")
	if err != nil {
		return nil, err
	}
	mintThreshold, err := p.callUint(ctx, "mintPriceThreshold")
	if err != nil {
		return nil, err
	}
	redeemThreshold, err := p.callUint(ctx, "redeemPriceThreshold")
	if err != nil {
		return nil, err
	}
	twap, err := p.callUint(ctx, "timeWeightedAvgPrice")
	if err != nil {
		return nil, err
	}

	return &pricing.ProtocolState{
		CollateralRatio:      ratio,
		GovernancePriceUsd:   price,
		MintPriceThreshold:   mintThreshold,
		RedeemPriceThreshold: redeemThreshold,
		TimeWeightedAvgPrice: twap,
	}, nil
}

type collateralInfoResult struct {
	Index           *big.Int
	Symbol          string
	Token           common.Address
	MintFee         *big.Int
	RedeemFee       *big.Int
	MissingDecimals *big.Int
}

// CollateralInfo reads the pool's registration record for one collateral
// token.
func (p *Pool) CollateralInfo(ctx context.Context, token common.Address) (*pricing.CollateralAsset, error) {
	out, err := p.call(ctx, "collateralInfo", token)
	if err != nil {
		return nil, err
	}
	var info collateralInfoResult
	if err := p.abi.UnpackIntoInterface(&info, "collateralInfo", out); err != nil {
		return nil, fmt.Errorf("failed to unpack collateralInfo result: %w", err)
	}
	return &pricing.CollateralAsset{
		Index:            info.Index.Uint64(),
		Symbol:           info.Symbol,
		Address:          info.Token,
		MintFee:          info.MintFee,
		RedeemFee:        info.RedeemFee,
		DecimalShortfall: uint8(info.MissingDecimals.Uint64()),
	}, nil
}

// AllCollaterals reads the addresses of every collateral the pool accepts.
func (p *Pool) AllCollaterals(ctx context.Context) ([]common.Address, error) {
	out, err := p.call(ctx, "allCollaterals")
	if err != nil {
		return nil, err
	}
	results, err := p.abi.Unpack("allCollaterals", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack allCollaterals result: %w", err)
	}
	addresses, ok := results[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("allCollaterals returned unexpected type %T", results[0])
	}
	return addresses, nil
}

// LoadCollaterals fetches the full collateral catalog. Loaded once at
// startup; the set is stable for the lifetime of a session.
func (p *Pool) LoadCollaterals(ctx context.Context) ([]*pricing.CollateralAsset, error) {
	addresses, err := p.AllCollaterals(ctx)
	if err != nil {
		return nil, err
	}
	assets := make([]*pricing.CollateralAsset, 0, len(addresses))
	for _, addr := range addresses {
		asset, err := p.CollateralInfo(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to load collateral %s: %w", addr.Hex(), err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// MintCalldata packs the mint entry point arguments.
func (p *Pool) MintCalldata(index uint64, dollarAmount, minOut, maxCollateralIn, maxGovernanceIn *big.Int, forceCollateralOnly bool) ([]byte, error) {
	data, err := p.abi.Pack("mint", new(big.Int).SetUint64(index), dollarAmount, minOut, maxCollateralIn, maxGovernanceIn, forceCollateralOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to pack mint call: %w", err)
	}
	return data, nil
}

// RedeemCalldata packs the redeem entry point arguments.
func (p *Pool) RedeemCalldata(index uint64, dollarAmount, minGovernanceOut, minCollateralOut *big.Int) ([]byte, error) {
	data, err := p.abi.Pack("redeem", new(big.Int).SetUint64(index), dollarAmount, minGovernanceOut, minCollateralOut)
	if err != nil {
		return nil, fmt.Errorf("failed to pack redeem call: %w", err)
	}
	return data, nil
}

// CollectCalldata packs the collectRedemption entry point arguments.
func (p *Pool) CollectCalldata(index uint64) ([]byte, error) {
	data, err := p.abi.Pack("collectRedemption", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, fmt.Errorf("failed to pack collectRedemption call: %w", err)
	}
	return data, nil
}
