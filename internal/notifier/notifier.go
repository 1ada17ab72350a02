// Package notifier delivers workflow notifications off the request path.
// Delivery is fire-and-forget: a failure is logged and never propagated to
// the operation that triggered it.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carefill/carefill/internal/domain/notification"
	"github.com/carefill/carefill/pkg/metrics"
)

type Service struct {
	repo    notification.Repository
	log     *zap.Logger
	metrics *metrics.Collector
	queue   chan notification.Notification
	done    chan struct{}
}

func New(repo notification.Repository, bufferSize int, m *metrics.Collector, log *zap.Logger) *Service {
	s := &Service{
		repo:    repo,
		log:     log,
		metrics: m,
		queue:   make(chan notification.Notification, bufferSize),
		done:    make(chan struct{}),
	}
	go s.worker()
	return s
}

// Notify enqueues a notification. A full buffer drops it with a warning
// rather than stalling the workflow operation.
func (s *Service) Notify(ctx context.Context, n notification.Notification) {
	select {
	case s.queue <- n:
		s.metrics.NotificationsEmitted.Inc()
	default:
		s.metrics.NotificationsDropped.Inc()
		s.log.Warn("notification buffer full, dropping event",
			zap.String("kind", string(n.Kind)),
			zap.String("recipient", n.Recipient.String()),
		)
	}
}

func (s *Service) Shutdown() {
	close(s.queue)
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("notifier shutdown timed out; some notifications may be lost")
	}
}

func (s *Service) worker() {
	defer close(s.done)
	for n := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.repo.Create(ctx, &n); err != nil {
			// Logged, not retried, never fatal to the state change.
			s.log.Error("failed to persist notification",
				zap.String("kind", string(n.Kind)),
				zap.String("related_request", n.RelatedRequestID.String()),
				zap.Error(err),
			)
		}
		cancel()
	}
}
