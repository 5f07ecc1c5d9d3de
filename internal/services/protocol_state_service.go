package services

import (
	"context"
	"sync"
	"time"

	"stablemint-backend/internal/metrics"
	"stablemint-backend/internal/pricing"

	"github.com/sirupsen/logrus"
)

// StateListener receives protocol state snapshots from the poller.
type StateListener interface {
	OnProtocolState(state *pricing.ProtocolState, fetchedAt time.Time)
}

// StateReader fetches a fresh protocol state. Implemented by
// contracts.Pool.
type StateReader interface {
	ProtocolState(ctx context.Context) (*pricing.ProtocolState, error)
}

// ProtocolStateService periodically re-reads the pool's pricing parameters
// for display purposes (ticker). It runs independently of any in-flight
// transaction: quotes always fetch their own fresh state, never this
// cache-of-one. Listeners can unsubscribe, so a torn-down view does not leak
// a polling subscription.
type ProtocolStateService struct {
	reader   StateReader
	interval time.Duration

	ticker *time.Ticker
	done   chan bool

	mu        sync.RWMutex
	listeners []StateListener
	isRunning bool

	logger *logrus.Logger
}

// NewProtocolStateService creates a poller with the given interval.
func NewProtocolStateService(reader StateReader, interval time.Duration, logger *logrus.Logger) *ProtocolStateService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ProtocolStateService{
		reader:   reader,
		interval: interval,
		// Buffered so Stop lands even while the loop is inside a slow poll;
		// an unbuffered send would be dropped and the poller would never exit.
		done:   make(chan bool, 1),
		logger: logger,
	}
}

// Start begins the poll loop. Safe to call more than once.
func (s *ProtocolStateService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.ticker = time.NewTicker(s.interval)
	metrics.StatePollStatus.Set(1)

	go func() {
		// Poll immediately on start so the first ticker interval does not
		// leave consumers without data.
		s.poll()

		for {
			select {
			case <-s.done:
				s.ticker.Stop()
				return
			case <-s.ticker.C:
				// A tick and a stop can become ready together when a slow
				// poll ran the full interval; the stop wins.
				select {
				case <-s.done:
					s.ticker.Stop()
					return
				default:
				}
				s.poll()
			}
		}
	}()

	s.logger.WithField("interval", s.interval.String()).Info("protocol state poller started")
}

// Stop stops the poll loop.
func (s *ProtocolStateService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	select {
	case s.done <- true:
	default:
	}
	metrics.StatePollStatus.Set(0)
	s.logger.Info("protocol state poller stopped")
}

func (s *ProtocolStateService) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	state, err := s.reader.ProtocolState(ctx)
	if err != nil {
		metrics.StatePollErrors.Inc()
		s.logger.WithField("error", err.Error()).Warn("protocol state poll failed")
		return
	}
	s.notify(state, time.Now().UTC())
}

func (s *ProtocolStateService) notify(state *pricing.ProtocolState, fetchedAt time.Time) {
	s.mu.RLock()
	listeners := make([]StateListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		go func(l StateListener) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.WithField("panic", r).Warn("state listener panicked")
				}
			}()
			l.OnProtocolState(state, fetchedAt)
		}(listener)
	}
}

// RegisterListener registers a listener for state snapshots.
func (s *ProtocolStateService) RegisterListener(listener StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// UnregisterListener removes a listener.
func (s *ProtocolStateService) UnregisterListener(listener StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.listeners {
		if l == listener {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
}
