package handlers

import (
	"net/http"

	"stablemint-backend/internal/contracts"
	"stablemint-backend/internal/dto"
	"stablemint-backend/internal/orchestrator"
	"stablemint-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// CollateralHandler serves the collateral registry, the live protocol
// pricing parameters and per-account token balances.
type CollateralHandler struct {
	orch       *orchestrator.Orchestrator
	state      services.StateReader
	tokens     *contracts.Tokens
	stable     common.Address
	governance common.Address
}

// NewCollateralHandler creates the handler.
func NewCollateralHandler(orch *orchestrator.Orchestrator, state services.StateReader, tokens *contracts.Tokens, stable, governance common.Address) *CollateralHandler {
	return &CollateralHandler{
		orch:       orch,
		state:      state,
		tokens:     tokens,
		stable:     stable,
		governance: governance,
	}
}

// ListCollateralsHandler returns every accepted collateral asset.
// GET /api/collaterals
func (h *CollateralHandler) ListCollateralsHandler(c *gin.Context) {
	assets := h.orch.Collaterals()
	out := make([]dto.CollateralAsset, 0, len(assets))
	for _, asset := range assets {
		out = append(out, dto.NewCollateralAsset(asset))
	}
	c.JSON(http.StatusOK, gin.H{"collaterals": out})
}

// ProtocolStateHandler returns a freshly fetched protocol state snapshot.
// GET /api/state
func (h *CollateralHandler) ProtocolStateHandler(c *gin.Context) {
	state, err := h.state.ProtocolState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read protocol state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": dto.NewProtocolState(state)})
}

// AccountBalancesHandler returns an account's stable, governance and
// per-collateral token balances.
// GET /api/balances/:account
func (h *CollateralHandler) AccountBalancesHandler(c *gin.Context) {
	raw := c.Param("account")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account address"})
		return
	}
	account := common.HexToAddress(raw)
	ctx := c.Request.Context()

	stable, err := h.tokens.BalanceOf(ctx, h.stable, account)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read stable balance"})
		return
	}
	governance, err := h.tokens.BalanceOf(ctx, h.governance, account)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read governance balance"})
		return
	}

	collaterals := make([]gin.H, 0)
	for _, asset := range h.orch.Collaterals() {
		balance, err := h.tokens.BalanceOf(ctx, asset.Address, account)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to read collateral balance"})
			return
		}
		collaterals = append(collaterals, gin.H{
			"index":   asset.Index,
			"symbol":  asset.Symbol,
			"balance": balance.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"account":     account.Hex(),
		"stable":      stable.String(),
		"governance":  governance.String(),
		"collaterals": collaterals,
	})
}
