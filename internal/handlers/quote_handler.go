package handlers

import (
	"errors"
	"math/big"
	"net/http"

	"stablemint-backend/internal/dto"
	"stablemint-backend/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

// QuoteHandler serves read-only mint and redeem previews. Quotes always run
// against a freshly fetched protocol state; nothing here mutates the chain.
type QuoteHandler struct {
	orch *orchestrator.Orchestrator
}

// NewQuoteHandler creates the handler.
func NewQuoteHandler(orch *orchestrator.Orchestrator) *QuoteHandler {
	return &QuoteHandler{orch: orch}
}

// parseAmount parses an 18-decimal integer amount from its string form.
func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}

// quoteErrorStatus maps a quote failure to an HTTP status: the caller's
// fault (validation) is 400, a failed ledger read is 502.
func quoteErrorStatus(err error) int {
	var classified *orchestrator.ClassifiedError
	if errors.As(err, &classified) && classified.Class == orchestrator.FailureValidation {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// QuoteMintHandler previews a mint.
// POST /api/quote/mint
func (h *QuoteHandler) QuoteMintHandler(c *gin.Context) {
	var req dto.QuoteMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	amount, ok := parseAmount(req.DollarAmount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dollarAmount must be a positive integer string"})
		return
	}

	quote, state, err := h.orch.QuoteMint(c.Request.Context(), orchestrator.MintRequest{
		CollateralIndex:     req.CollateralIndex,
		DollarAmount:        amount,
		ForceCollateralOnly: req.ForceCollateralOnly,
	})
	if err != nil {
		c.JSON(quoteErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quote": dto.NewMintQuote(quote),
		"state": dto.NewProtocolState(state),
	})
}

// QuoteRedeemHandler previews a redeem.
// POST /api/quote/redeem
func (h *QuoteHandler) QuoteRedeemHandler(c *gin.Context) {
	var req dto.QuoteRedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	amount, ok := parseAmount(req.DollarAmount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dollarAmount must be a positive integer string"})
		return
	}

	quote, state, err := h.orch.QuoteRedeem(c.Request.Context(), orchestrator.RedeemRequest{
		CollateralIndex: req.CollateralIndex,
		DollarAmount:    amount,
	})
	if err != nil {
		c.JSON(quoteErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quote": dto.NewRedeemQuote(quote),
		"state": dto.NewProtocolState(state),
	})
}
