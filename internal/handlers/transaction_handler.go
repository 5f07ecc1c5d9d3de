package handlers

import (
	"context"
	"net/http"

	"stablemint-backend/internal/dto"
	"stablemint-backend/internal/orchestrator"
	"stablemint-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TransactionHandler accepts mint/redeem/collect requests and runs them
// asynchronously. Each request is answered with 202 and a pre-assigned
// operation id; progress flows through the registry, the websocket stream
// and NATS.
type TransactionHandler struct {
	orch     *orchestrator.Orchestrator
	registry *services.OperationRegistry
	logger   *logrus.Logger
}

// NewTransactionHandler creates the handler.
func NewTransactionHandler(orch *orchestrator.Orchestrator, registry *services.OperationRegistry, logger *logrus.Logger) *TransactionHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TransactionHandler{
		orch:     orch,
		registry: registry,
		logger:   logger,
	}
}

// MintHandler starts a mint.
// POST /api/tx/mint
func (h *TransactionHandler) MintHandler(c *gin.Context) {
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

	operationID := uuid.New().String()
	h.run(operationID, func(ctx context.Context) *orchestrator.Result {
		return h.orch.ExecuteMint(ctx, orchestrator.MintRequest{
			CollateralIndex:     req.CollateralIndex,
			DollarAmount:        amount,
			ForceCollateralOnly: req.ForceCollateralOnly,
			OperationID:         operationID,
		})
	})
	c.JSON(http.StatusAccepted, dto.OperationAccepted{OperationID: operationID})
}

// RedeemHandler starts a redeem. If the account already holds a pending
// redemption for the collateral, the operation collects it instead.
// POST /api/tx/redeem
func (h *TransactionHandler) RedeemHandler(c *gin.Context) {
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

	operationID := uuid.New().String()
	h.run(operationID, func(ctx context.Context) *orchestrator.Result {
		return h.orch.ExecuteRedeem(ctx, orchestrator.RedeemRequest{
			CollateralIndex: req.CollateralIndex,
			DollarAmount:    amount,
			OperationID:     operationID,
		})
	})
	c.JSON(http.StatusAccepted, dto.OperationAccepted{OperationID: operationID})
}

// CollectHandler collects a matured redemption.
// POST /api/tx/collect
func (h *TransactionHandler) CollectHandler(c *gin.Context) {
	var req dto.CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	operationID := uuid.New().String()
	h.run(operationID, func(ctx context.Context) *orchestrator.Result {
		return h.orch.ExecuteCollect(ctx, orchestrator.CollectRequest{
			CollateralIndex: req.CollateralIndex,
			OperationID:     operationID,
		})
	})
	c.JSON(http.StatusAccepted, dto.OperationAccepted{OperationID: operationID})
}

// run executes fn in the background. Cancellation authority for the request
// ends here: the operation owns its own lifetime once accepted.
func (h *TransactionHandler) run(operationID string, fn func(ctx context.Context) *orchestrator.Result) {
	go func() {
		result := fn(context.Background())

		fields := logrus.Fields{
			"operation_id": operationID,
			"kind":         result.Kind,
		}
		if result.Err != nil {
			fields["failure_class"] = result.Err.Class
			h.logger.WithFields(fields).Warn("operation finished with error")
			return
		}
		fields["tx_hash"] = result.TxHash.Hex()
		fields["collected"] = result.Collected
		h.logger.WithFields(fields).Info("operation finished")
	}()
}

// GetOperationHandler returns one tracked operation.
// GET /api/operations/:id
func (h *TransactionHandler) GetOperationHandler(c *gin.Context) {
	id := c.Param("id")
	snapshot, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operation": snapshot})
}

// ListOperationsHandler returns all tracked operations, newest first.
// GET /api/operations
func (h *TransactionHandler) ListOperationsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operations": h.registry.List()})
}
