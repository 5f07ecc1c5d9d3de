package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"stablemint-backend/internal/ledger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ERC20 binds the token surface needed for allowances and approvals.
type ERC20 struct {
	address common.Address
	abi     abi.ABI
	client  *ledger.Client
}

// NewERC20 parses the ERC-20 ABI and binds it to address.
func NewERC20(address common.Address, client *ledger.Client) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	return &ERC20{
		address: address,
		abi:     parsed,
		client:  client,
	}, nil
}

// Address returns the token contract address.
func (t *ERC20) Address() common.Address {
	return t.address
}

// Allowance reads the current allowance owner has granted spender.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	data, err := t.abi.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance call: %w", err)
	}
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("allowance call failed: %w", err)
	}
	results, err := t.abi.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack allowance result: %w", err)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance returned unexpected type %T", results[0])
	}
	return value, nil
}

// BalanceOf reads the token balance of account.
func (t *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := t.abi.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	results, err := t.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned unexpected type %T", results[0])
	}
	return value, nil
}

// ApproveCalldata packs an approve(spender, amount) call.
func (t *ERC20) ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := t.abi.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve call: %w", err)
	}
	return data, nil
}
