package app

import (
	"context"
	"fmt"
	"time"

	"stablemint-backend/internal/allowance"
	"stablemint-backend/internal/clients"
	"stablemint-backend/internal/config"
	"stablemint-backend/internal/contracts"
	"stablemint-backend/internal/handlers"
	"stablemint-backend/internal/ledger"
	"stablemint-backend/internal/middleware"
	"stablemint-backend/internal/orchestrator"
	"stablemint-backend/internal/router"
	"stablemint-backend/internal/services"
	"stablemint-backend/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ServiceContainer owns every long-lived component and their wiring.
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	Ledger  *ledger.Client
	Session *wallet.Session
	Pool    *contracts.Pool
	Tokens  *contracts.Tokens

	Orchestrator *orchestrator.Orchestrator
	Registry     *services.OperationRegistry
	StatePoller  *services.ProtocolStateService
	Push         *services.WebSocketPushService
	NATS         *clients.NATSClient

	Engine *gin.Engine
}

// InitializeContainer builds the full service graph from configuration.
// The collateral catalog is loaded once here and stays immutable for the
// process lifetime.
func InitializeContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &ServiceContainer{
		Config: cfg,
		Logger: logger,
	}

	client, err := ledger.Dial(ctx, cfg.Chain.PrimaryEndpoint(), cfg.Chain.FallbackEndpoint(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoints: %w", err)
	}
	c.Ledger = client

	session, err := wallet.NewSession(cfg.Chain.PrivateKey, cfg.Chain.ChainID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet session: %w", err)
	}
	c.Session = session

	poolAddress := common.HexToAddress(cfg.Chain.PoolContract)
	pool, err := contracts.NewPool(poolAddress, client)
	if err != nil {
		return nil, fmt.Errorf("failed to bind pool contract: %w", err)
	}
	c.Pool = pool

	assets, err := pool.LoadCollaterals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load collateral catalog: %w", err)
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("pool at %s reports no collaterals", poolAddress.Hex())
	}
	logger.WithField("collaterals", len(assets)).Info("collateral catalog loaded")

	tokens := contracts.NewTokens(client)
	c.Tokens = tokens

	gate := allowance.NewGate(
		tokens,
		poolAddress,
		common.HexToAddress(cfg.Chain.GovernanceToken),
		common.HexToAddress(cfg.Chain.StableToken),
	)

	backend := orchestrator.NewLedgerBackend(client, session, cfg.Chain.GasLimit)

	c.Orchestrator = orchestrator.New(orchestrator.Config{
		Pool:           pool,
		Gate:           gate,
		Tokens:         tokens,
		Backend:        backend,
		Wallet:         session,
		Assets:         assets,
		SlippageBps:    cfg.Trading.SlippageBps,
		ReceiptTimeout: time.Duration(cfg.Chain.ReceiptTimeoutSeconds) * time.Second,
		Logger:         logger,
	})

	c.Registry = services.NewOperationRegistry()
	c.Orchestrator.RegisterListener(c.Registry)

	c.Push = services.NewWebSocketPushService(logger)
	c.Orchestrator.RegisterListener(c.Push)
	session.RegisterListener(c.Push)

	pollInterval := time.Duration(cfg.Trading.StatePollIntervalSecond) * time.Second
	c.StatePoller = services.NewProtocolStateService(pool, pollInterval, logger)
	c.StatePoller.RegisterListener(c.Push)

	if cfg.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(cfg.NATS, logger)
		if err != nil {
			// The bus is an observability surface; its absence never blocks
			// transactions.
			logger.WithField("error", err.Error()).Warn("nats unavailable, continuing without event publishing")
		} else {
			c.NATS = natsClient
			c.Orchestrator.RegisterListener(natsClient)
			c.StatePoller.RegisterListener(natsClient)
		}
	}

	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, logger)
	c.Engine = router.SetupRouter(cfg, router.Handlers{
		Auth: handlers.NewAuthHandler(auth, logger),
		Collateral: handlers.NewCollateralHandler(
			c.Orchestrator,
			pool,
			tokens,
			common.HexToAddress(cfg.Chain.StableToken),
			common.HexToAddress(cfg.Chain.GovernanceToken),
		),
		Quote:       handlers.NewQuoteHandler(c.Orchestrator),
		Transaction: handlers.NewTransactionHandler(c.Orchestrator, c.Registry, logger),
		Debug:       handlers.NewDebugHandler(client),
		WebSocket:   handlers.NewWebSocketHandler(c.Push),
	}, auth, logger)

	return c, nil
}

// Start launches the background services.
func (c *ServiceContainer) Start() {
	c.StatePoller.Start()
}

// Cleanup stops background services and releases connections.
func (c *ServiceContainer) Cleanup() {
	if c.StatePoller != nil {
		c.StatePoller.Stop()
	}
	if c.Push != nil {
		c.Push.Close()
	}
	if c.NATS != nil {
		c.NATS.Close()
	}
	if c.Session != nil {
		c.Session.Disconnect()
	}
	c.Logger.Info("service container cleaned up")
}
