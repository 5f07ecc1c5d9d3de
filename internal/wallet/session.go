package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// SessionListener receives account lifecycle notifications.
type SessionListener interface {
	OnSessionConnected(account common.Address)
	OnSessionDisconnected(account common.Address)
}

// Session owns the operator signing key. Callers read a snapshot of the
// current account at the start of each operation and never hold a live
// reference; a disconnect between snapshot and submission surfaces as a
// signing error.
type Session struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	address   common.Address
	signer    types.Signer
	connected bool

	listeners []SessionListener
	logger    *logrus.Logger
}

// NewSession parses the operator key and prepares a signer for chainID.
func NewSession(privateKeyHex string, chainID int64, logger *logrus.Logger) (*Session, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	key, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	s := &Session{
		key:       key,
		address:   address,
		signer:    types.LatestSignerForChainID(big.NewInt(chainID)),
		connected: true,
		logger:    logger,
	}
	logger.WithFields(logrus.Fields{
		"account":  address.Hex(),
		"chain_id": chainID,
	}).Info("wallet session connected")
	return s, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("operator private key is required")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operator private key: %w", err)
	}
	return key, nil
}

// CurrentAccount returns a snapshot of the bound account. The second return
// is false when no session is connected.
func (s *Session) CurrentAccount() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return common.Address{}, false
	}
	return s.address, true
}

// SignTx signs tx with the session key.
func (s *Session) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.key == nil {
		return nil, fmt.Errorf("no wallet session connected")
	}
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// Disconnect tears the session down and notifies listeners. Safe to call
// more than once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	account := s.address
	listeners := make([]SessionListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.logger.WithField("account", account.Hex()).Info("wallet session disconnected")
	for _, l := range listeners {
		l.OnSessionDisconnected(account)
	}
}

// RegisterListener registers a listener for session lifecycle events. A
// listener registered on a live session receives the connected notification
// immediately.
func (s *Session) RegisterListener(listener SessionListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	connected := s.connected
	account := s.address
	s.mu.Unlock()

	if connected {
		listener.OnSessionConnected(account)
	}
}

// UnregisterListener removes a previously registered listener.
func (s *Session) UnregisterListener(listener SessionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l == listener {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
}
