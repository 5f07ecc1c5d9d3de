package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Ledger transport metrics
	// ============================================
	RPCCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_rpc_call_errors_total",
			Help: "Total number of failed ledger RPC calls",
		},
		[]string{"operation", "transport"},
	)

	RPCFallbackSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_rpc_fallback_switches_total",
		Help: "Total number of sticky switches from primary to fallback transport",
	})

	RPCActiveTransport = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_rpc_active_transport",
		Help: "Active ledger transport (0=primary, 1=fallback)",
	})

	StaleOracleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_stale_oracle_errors_total",
		Help: "Total number of oracle-staleness errors returned by the ledger",
	})

	// ============================================
	// Quote and transaction metrics
	// ============================================
	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_quote_duration_seconds",
			Help:    "Quote computation duration in seconds (including ledger reads)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_transactions_submitted_total",
			Help: "Total number of transactions submitted to the ledger",
		},
		[]string{"kind"},
	)

	TransactionsSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_transactions_succeeded_total",
			Help: "Total number of transactions confirmed with success status",
		},
		[]string{"kind"},
	)

	TransactionsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_transactions_failed_total",
			Help: "Total number of failed operations by failure class",
		},
		[]string{"kind", "failure_class"},
	)

	ApprovalsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_approvals_submitted_total",
			Help: "Total number of token approval transactions submitted",
		},
		[]string{"token"},
	)

	// ============================================
	// Push and messaging metrics
	// ============================================
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject"},
	)

	// ============================================
	// Protocol state poller metrics
	// ============================================
	StatePollStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_state_poll_status",
		Help: "Protocol state poller status (1=running, 0=stopped)",
	})

	StatePollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_state_poll_errors_total",
		Help: "Total number of failed protocol state polls",
	})
)
