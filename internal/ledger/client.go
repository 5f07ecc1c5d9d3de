package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"stablemint-backend/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Transport is the subset of ethclient.Client the ledger layer depends on.
// *ethclient.Client satisfies it directly; tests substitute fakes.
type Transport interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

const defaultReceiptPollInterval = 2 * time.Second

// Client provides resilient read/write access to the remote ledger. It holds
// a primary and a fallback transport plus a sticky using-fallback flag: the
// first transport-level failure switches the session to the fallback
// permanently and retries the failed call exactly once. The client never
// alternates back to the primary. Oracle-staleness errors are a ledger-state
// property and never trigger a switch.
//
// The flag lives on the client instance, not at package level, so multiple
// sessions and tests run with independent failover state.
type Client struct {
	mu            sync.Mutex
	primary       Transport
	fallback      Transport
	usingFallback bool

	receiptPollInterval time.Duration
	logger              *logrus.Logger
}

// NewClient creates a ledger client over already-constructed transports.
// fallback may be nil when only a single endpoint is configured.
func NewClient(primary, fallback Transport, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		primary:             primary,
		fallback:            fallback,
		receiptPollInterval: defaultReceiptPollInterval,
		logger:              logger,
	}
}

// Dial connects the primary (and, when configured, the fallback) RPC
// endpoint. The fallback endpoint is dialed eagerly so a broken fallback URL
// surfaces at startup rather than mid-failover.
func Dial(ctx context.Context, primaryURL, fallbackURL string, logger *logrus.Logger) (*Client, error) {
	primary, err := ethclient.DialContext(ctx, primaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial primary endpoint %s: %w", primaryURL, err)
	}

	var fallback Transport
	if fallbackURL != "" {
		fb, err := ethclient.DialContext(ctx, fallbackURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial fallback endpoint %s: %w", fallbackURL, err)
		}
		fallback = fb
	}

	return NewClient(primary, fallback, logger), nil
}

// UsingFallback reports whether the sticky failover flag has been set.
func (c *Client) UsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usingFallback
}

func (c *Client) active() (Transport, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback && c.fallback != nil {
		return c.fallback, "fallback"
	}
	return c.primary, "primary"
}

// switchToFallback flips the sticky flag. Returns false when the client is
// already on the fallback transport or no fallback is configured.
func (c *Client) switchToFallback(operation string, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback || c.fallback == nil {
		return false
	}
	c.usingFallback = true
	metrics.RPCFallbackSwitches.Inc()
	metrics.RPCActiveTransport.Set(1)
	c.logger.WithFields(logrus.Fields{
		"operation": operation,
		"error":     cause.Error(),
	}).Warn("primary transport failed, switching to fallback for the rest of the session")
	return true
}

// do runs fn against the active transport, applying the failover policy:
// staleness errors propagate immediately, any other failure switches to the
// fallback once and retries the same call once.
func (c *Client) do(ctx context.Context, operation string, fn func(Transport) error) error {
	transport, name := c.active()

	err := fn(transport)
	if err == nil {
		return nil
	}
	if IsStaleOracle(err) {
		metrics.StaleOracleErrors.Inc()
		return &StaleOracleError{Err: err}
	}
	metrics.RPCCallErrors.WithLabelValues(operation, name).Inc()

	// Caller cancellation is not a transport fault.
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	if !c.switchToFallback(operation, err) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	transport, name = c.active()
	if retryErr := fn(transport); retryErr != nil {
		if IsStaleOracle(retryErr) {
			metrics.StaleOracleErrors.Inc()
			return &StaleOracleError{Err: retryErr}
		}
		metrics.RPCCallErrors.WithLabelValues(operation, name).Inc()
		return fmt.Errorf("%s failed on fallback transport: %w", operation, retryErr)
	}
	return nil
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	var result []byte
	err := c.do(ctx, "call_contract", func(t Transport) error {
		out, err := t.CallContract(ctx, call, nil)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitTransaction broadcasts an already-signed transaction.
func (c *Client) SubmitTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.do(ctx, "send_transaction", func(t Transport) error {
		return t.SendTransaction(ctx, tx)
	})
}

// TransactionReceipt fetches the receipt for txHash. A still-pending
// transaction yields (nil, nil); "not found" is ledger state, not a transport
// failure, and must not flip the failover flag.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, "transaction_receipt", func(t Transport) error {
		r, err := t.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			receipt = nil
			return nil
		}
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// WaitForReceipt blocks until txHash is mined or ctx expires. The receipt's
// status field is the authoritative success signal for the caller.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// StorageAt reads a raw storage word. Used only by the offline diagnostic
// tooling.
func (c *Client) StorageAt(ctx context.Context, account common.Address, slot common.Hash) ([]byte, error) {
	var word []byte
	err := c.do(ctx, "storage_at", func(t Transport) error {
		out, err := t.StorageAt(ctx, account, slot, nil)
		if err != nil {
			return err
		}
		word = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return word, nil
}

// PendingNonceAt returns the next nonce for account including pending
// transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, "pending_nonce_at", func(t Transport) error {
		n, err := t.PendingNonceAt(ctx, account)
		if err != nil {
			return err
		}
		nonce = n
		return nil
	})
	return nonce, err
}

// SuggestGasPrice returns the transport's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.do(ctx, "suggest_gas_price", func(t Transport) error {
		p, err := t.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return price, nil
}

// EstimateGas estimates the gas needed for call.
func (c *Client) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.do(ctx, "estimate_gas", func(t Transport) error {
		g, err := t.EstimateGas(ctx, call)
		if err != nil {
			return err
		}
		gas = g
		return nil
	})
	return gas, err
}
