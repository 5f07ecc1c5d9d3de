package wallet

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testKeyAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewSessionDerivesAddress(t *testing.T) {
	session, err := NewSession(testKey, 1, quietLogger())
	require.NoError(t, err)

	account, ok := session.CurrentAccount()
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress(testKeyAddress), account)
}

func TestNewSessionAcceptsHexPrefix(t *testing.T) {
	session, err := NewSession("0x"+testKey, 1, quietLogger())
	require.NoError(t, err)
	account, _ := session.CurrentAccount()
	assert.Equal(t, common.HexToAddress(testKeyAddress), account)
}

func TestNewSessionRejectsBadKey(t *testing.T) {
	_, err := NewSession("", 1, quietLogger())
	assert.Error(t, err)

	_, err = NewSession("not-a-key", 1, quietLogger())
	assert.Error(t, err)
}

func TestSignTxRecoverableSender(t *testing.T) {
	session, err := NewSession(testKey, 1, quietLogger())
	require.NoError(t, err)

	tx := types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	signed, err := session.SignTx(tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testKeyAddress), sender)
}

func TestDisconnect(t *testing.T) {
	session, err := NewSession(testKey, 1, quietLogger())
	require.NoError(t, err)

	listener := &recordingListener{}
	session.RegisterListener(listener)
	assert.Equal(t, 1, listener.connects, "registering on a live session notifies immediately")

	session.Disconnect()
	assert.Equal(t, 1, listener.disconnects)

	_, ok := session.CurrentAccount()
	assert.False(t, ok)
	_, err = session.SignTx(types.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil))
	assert.Error(t, err)

	// Idempotent.
	session.Disconnect()
	assert.Equal(t, 1, listener.disconnects)
}

type recordingListener struct {
	connects    int
	disconnects int
}

func (r *recordingListener) OnSessionConnected(common.Address)    { r.connects++ }
func (r *recordingListener) OnSessionDisconnected(common.Address) { r.disconnects++ }
