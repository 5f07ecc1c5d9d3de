package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"stablemint-backend/internal/middleware"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	nonceTTL        = 5 * time.Minute
	sessionTokenTTL = 24 * time.Hour
)

// AuthHandler issues session tokens against a signed nonce challenge. The
// client proves control of an address by signing the challenge message with
// personal_sign; the recovered signer must match the claimed account.
type AuthHandler struct {
	auth   *middleware.AuthMiddleware
	logger *logrus.Logger

	mu     sync.Mutex
	nonces map[string]time.Time
}

// AuthRequest is the authenticate request body.
type AuthRequest struct {
	Account   string `json:"account" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// NewAuthHandler creates the handler backed by the given token issuer.
func NewAuthHandler(auth *middleware.AuthMiddleware, logger *logrus.Logger) *AuthHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthHandler{
		auth:   auth,
		logger: logger,
		nonces: make(map[string]time.Time),
	}
}

// GenerateNonceHandler issues a fresh challenge message.
// GET /api/auth/nonce
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to generate nonce",
		})
		return
	}

	nonceStr := hex.EncodeToString(nonce)
	timestamp := time.Now().Unix()

	h.mu.Lock()
	h.nonces[nonceStr] = time.Now().Add(nonceTTL)
	for n, expires := range h.nonces {
		if time.Now().After(expires) {
			delete(h.nonces, n)
		}
	}
	h.mu.Unlock()

	message := fmt.Sprintf("Stablemint Authentication\nNonce: %s\nTimestamp: %d", nonceStr, timestamp)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"nonce":     nonceStr,
		"message":   message,
		"timestamp": timestamp,
	})
}

// AuthenticateHandler verifies a signed challenge and returns a session token.
// POST /api/auth
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	if !common.IsHexAddress(req.Account) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "account is not a valid address",
		})
		return
	}

	if !h.consumeNonce(req.Message) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "unknown or expired challenge",
		})
		return
	}

	signer, err := recoverSigner(req.Message, req.Signature)
	if err != nil || signer != common.HexToAddress(req.Account) {
		h.logger.WithFields(logrus.Fields{
			"account": req.Account,
		}).Warn("signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "signature verification failed",
		})
		return
	}

	token, err := h.auth.IssueToken(signer.Hex(), sessionTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to issue token",
		})
		return
	}

	h.logger.WithField("account", signer.Hex()).Info("session authenticated")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   token,
	})
}

// consumeNonce checks the challenge message embeds a live nonce and burns it.
func (h *AuthHandler) consumeNonce(message string) bool {
	nonce := ""
	for _, line := range strings.Split(message, "\n") {
		if strings.HasPrefix(line, "Nonce: ") {
			nonce = strings.TrimPrefix(line, "Nonce: ")
			break
		}
	}
	if nonce == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	expires, ok := h.nonces[nonce]
	if !ok {
		return false
	}
	delete(h.nonces, nonce)
	return time.Now().Before(expires)
}

// recoverSigner recovers the address that personal_signed message.
func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	// personal_sign produces V in {27, 28}.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
