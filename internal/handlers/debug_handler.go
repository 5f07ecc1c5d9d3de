package handlers

import (
	"net/http"

	"stablemint-backend/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

// DebugHandler exposes raw ledger reads for operators. Mounted behind the
// localhost-only middleware.
type DebugHandler struct {
	client *ledger.Client
}

// NewDebugHandler creates the handler.
func NewDebugHandler(client *ledger.Client) *DebugHandler {
	return &DebugHandler{client: client}
}

// StorageAtHandler reads one raw storage slot from a contract.
// GET /debug/storage?address=0x..&slot=0x..
func (h *DebugHandler) StorageAtHandler(c *gin.Context) {
	addressParam := c.Query("address")
	slotParam := c.Query("slot")

	if !common.IsHexAddress(addressParam) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address must be a hex address"})
		return
	}
	slotBytes, err := hexutil.Decode(slotParam)
	if err != nil || len(slotBytes) > common.HashLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot must be a 0x-prefixed hash"})
		return
	}

	address := common.HexToAddress(addressParam)
	slot := common.BytesToHash(slotBytes)

	value, err := h.client.StorageAt(c.Request.Context(), address, slot)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": address.Hex(),
		"slot":    slot.Hex(),
		"value":   hexutil.Encode(value),
	})
}

// TransportHandler reports which RPC transport is active.
// GET /debug/transport
func (h *DebugHandler) TransportHandler(c *gin.Context) {
	transport := "primary"
	if h.client.UsingFallback() {
		transport = "fallback"
	}
	c.JSON(http.StatusOK, gin.H{"transport": transport})
}
