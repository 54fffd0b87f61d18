package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/service"
)

// StartNotificationWorker registers notification handlers and runs the SLA
// monitor in the background until ctx is cancelled. A nil monitor only
// registers handlers. The returned channel closes once the monitor stopped.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, monitor *SLAMonitor, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if monitor == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		defer close(done)
		if err := monitor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sla monitor exited", zap.Error(err))
		}
	}()
	return done
}
