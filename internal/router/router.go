package router

import (
	"net/http"
	"strconv"
	"strings"

	"stablemint-backend/internal/config"
	"stablemint-backend/internal/handlers"
	"stablemint-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Collateral  *handlers.CollateralHandler
	Quote       *handlers.QuoteHandler
	Transaction *handlers.TransactionHandler
	Debug       *handlers.DebugHandler
	WebSocket   *handlers.WebSocketHandler
}

// corsMiddleware applies the configured origin whitelist. An empty whitelist
// allows every origin.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	originAllowed := func(origin string) bool {
		if len(cfg.AllowedOrigins) == 0 {
			return true
		}
		for _, allowed := range cfg.AllowedOrigins {
			allowed = strings.TrimSpace(allowed)
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if origin != "" {
			if originAllowed(origin) {
				if len(cfg.AllowedOrigins) == 0 {
					c.Header("Access-Control-Allow-Origin", "*")
				} else {
					c.Header("Access-Control-Allow-Origin", origin)
				}
			} else {
				logrus.WithFields(logrus.Fields{
					"origin": origin,
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				}).Warn("cors: origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter builds the gin engine with every route mounted.
func SetupRouter(cfg *config.Config, h Handlers, auth *middleware.AuthMiddleware, logger *logrus.Logger) *gin.Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware(cfg.CORS))

	engine.GET("/api/health", handlers.HealthCheckHandler)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", h.WebSocket.ConnectHandler)

	api := engine.Group("/api")
	{
		api.GET("/auth/nonce", h.Auth.GenerateNonceHandler)
		api.POST("/auth", h.Auth.AuthenticateHandler)

		api.GET("/collaterals", h.Collateral.ListCollateralsHandler)
		api.GET("/state", h.Collateral.ProtocolStateHandler)
		api.GET("/balances/:account", h.Collateral.AccountBalancesHandler)

		api.POST("/quote/mint", h.Quote.QuoteMintHandler)
		api.POST("/quote/redeem", h.Quote.QuoteRedeemHandler)

		api.GET("/operations", h.Transaction.ListOperationsHandler)
		api.GET("/operations/:id", h.Transaction.GetOperationHandler)

		tx := api.Group("/tx")
		if cfg.Auth.Enabled {
			tx.Use(auth.RequireAuth())
		}
		{
			tx.POST("/mint", h.Transaction.MintHandler)
			tx.POST("/redeem", h.Transaction.RedeemHandler)
			tx.POST("/collect", h.Transaction.CollectHandler)
		}
	}

	debugGuard := middleware.NewLocalhostOnly(logger, nil)
	debug := engine.Group("/debug", debugGuard.Restrict())
	{
		debug.GET("/storage", h.Debug.StorageAtHandler)
		debug.GET("/transport", h.Debug.TransportHandler)
	}

	return engine
}
