package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/capture"
	"github.com/spec-kit/loyalty-scanner/internal/observability"
	"github.com/spec-kit/loyalty-scanner/internal/service"
)

// StartNotificationWorker subscribes the operator notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StatsSource is the capture loop as seen by the reporter.
type StatsSource interface {
	State() (capture.State, error)
	Stats() capture.Stats
}

// StartStatsReporter logs capture counters and scan metrics every interval
// until ctx is cancelled. The returned channel closes when the goroutine exits.
func StartStatsReporter(ctx context.Context, source StatsSource, metrics *observability.Metrics, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 || source == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reportStats(source, metrics, logger)
			}
		}
	}()
	return done
}

func reportStats(source StatsSource, metrics *observability.Metrics, logger *zap.Logger) {
	state, lastErr := source.State()
	stats := source.Stats()
	fields := []zap.Field{
		zap.String("camera_state", state.String()),
		zap.Uint64("activations", stats.Activations),
		zap.Uint64("frames_sampled", stats.FramesSampled),
		zap.Uint64("decoded", stats.Decoded),
		zap.Uint64("noise_discarded", stats.NoiseDiscarded),
	}
	if lastErr != nil {
		fields = append(fields, zap.NamedError("camera_error", lastErr))
	}
	if metrics != nil {
		snap := metrics.Snapshot()
		fields = append(fields, zap.Any("scans", snap.Scans), zap.Any("actions", snap.Actions))
	}
	logger.Info("scanner stats", fields...)
}
