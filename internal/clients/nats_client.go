package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"stablemint-backend/internal/config"
	"stablemint-backend/internal/metrics"
	"stablemint-backend/internal/orchestrator"
	"stablemint-backend/internal/pricing"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient publishes operation events and protocol-state snapshots to a
// NATS cluster so downstream consumers (alerting, analytics) can follow the
// pool without polling the API. Publishing is fire-and-forget: a broken bus
// never blocks or fails a transaction.
type NATSClient struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *logrus.Logger
}

// NewNATSClient connects to the configured NATS server. Subjects are
// published under cfg.SubjectPrefix (e.g. "stablemint.tx.submitted").
func NewNATSClient(cfg config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reconnectWait := time.Duration(cfg.ReconnectWait) * time.Second
	if reconnectWait <= 0 {
		reconnectWait = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(timeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			metrics.NATSConnectionStatus.Set(0)
			if err != nil {
				logger.WithField("error", err.Error()).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.NATSConnectionStatus.Set(1)
			logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	logger.WithFields(logrus.Fields{
		"url":            cfg.URL,
		"subject_prefix": cfg.SubjectPrefix,
	}).Info("nats connected")

	return &NATSClient{
		conn:          conn,
		subjectPrefix: cfg.SubjectPrefix,
		logger:        logger,
	}, nil
}

func (c *NATSClient) publish(subject string, payload interface{}) {
	if c == nil || c.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"subject": subject,
			"error":   err.Error(),
		}).Warn("failed to marshal nats payload")
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		c.logger.WithFields(logrus.Fields{
			"subject": subject,
			"error":   err.Error(),
		}).Warn("failed to publish nats message")
		return
	}
	metrics.NATSMessagesPublished.WithLabelValues(subject).Inc()
}

// OnOperationEvent implements orchestrator.Listener. Events are published to
// <prefix>.tx.<event_type>.
func (c *NATSClient) OnOperationEvent(event orchestrator.Event) {
	subject := fmt.Sprintf("%s.tx.%s", c.subjectPrefix, event.Type)
	c.publish(subject, event)
}

// OnProtocolState implements services.StateListener. Snapshots are published
// to <prefix>.state.
func (c *NATSClient) OnProtocolState(state *pricing.ProtocolState, fetchedAt time.Time) {
	subject := fmt.Sprintf("%s.state", c.subjectPrefix)
	c.publish(subject, struct {
		CollateralRatio      string `json:"collateralRatio"`
		GovernancePriceUsd   string `json:"governancePriceUsd"`
		MintPriceThreshold   string `json:"mintPriceThreshold"`
		RedeemPriceThreshold string `json:"redeemPriceThreshold"`
		TimeWeightedAvgPrice string `json:"timeWeightedAvgPrice"`
		FetchedAt            string `json:"fetchedAt"`
	}{
		CollateralRatio:      state.CollateralRatio.String(),
		GovernancePriceUsd:   state.GovernancePriceUsd.String(),
		MintPriceThreshold:   state.MintPriceThreshold.String(),
		RedeemPriceThreshold: state.RedeemPriceThreshold.String(),
		TimeWeightedAvgPrice: state.TimeWeightedAvgPrice.String(),
		FetchedAt:            fetchedAt.Format(time.RFC3339),
	})
}

// Close drains and closes the connection.
func (c *NATSClient) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
	metrics.NATSConnectionStatus.Set(0)
}
