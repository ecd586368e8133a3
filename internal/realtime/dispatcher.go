package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dimitrije/cohort-api/internal/broker"
	"github.com/dimitrije/cohort-api/internal/metrics"
	"github.com/dimitrije/cohort-api/internal/models"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 2 * time.Second

// Dispatcher publishes committed notifications to each recipient's broker
// group. Failures are logged and counted, never returned: the stored row and
// the catch-up batch are the recovery path.
type Dispatcher struct {
	broker  broker.Broker
	logger  *zap.Logger
	timeout time.Duration
}

func NewDispatcher(b broker.Broker, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{broker: b, logger: logger, timeout: defaultPublishTimeout}
}

// Dispatch publishes in order. It outlives the caller's cancellation but
// each publish is bounded by the dispatcher timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, notifications ...models.Notification) {
	base := context.WithoutCancel(ctx)
	for _, n := range notifications {
		data, err := json.Marshal(NotificationEvent{Type: TypeNotification, Payload: Payload(n)})
		if err != nil {
			d.fail(n, err)
			continue
		}

		pctx, cancel := context.WithTimeout(base, d.timeout)
		err = d.broker.Publish(pctx, n.RecipientID, data)
		cancel()
		if err != nil {
			d.fail(n, err)
			continue
		}
		metrics.NotificationsDispatched.WithLabelValues("ok").Inc()
	}
}

func (d *Dispatcher) fail(n models.Notification, err error) {
	metrics.NotificationsDispatched.WithLabelValues("failed").Inc()
	d.logger.Warn("notification push failed",
		zap.Stringer("notification_id", n.ID),
		zap.Stringer("recipient_id", n.RecipientID),
		zap.String("kind", n.Kind),
		zap.Error(err))
}
