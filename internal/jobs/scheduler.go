package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskDeleter interface {
	DeleteTask(queue, id string) error
}

// Scheduler keeps at most one expiry job per phase, keyed by the phase's
// job key. It implements services.PhaseScheduler. The Redis client is
// shared, so closing it is left to the owner.
type Scheduler struct {
	client    enqueuer
	inspector taskDeleter
	logger    *zap.Logger
}

func NewScheduler(rdb redis.UniversalClient, logger *zap.Logger) *Scheduler {
	opt := &redisConnOptWrapper{client: rdb}
	return &Scheduler{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		logger:    logger,
	}
}

// Schedule replaces any pending job for the phase with one that runs at at.
// A job that is already running cannot be replaced and the call fails.
func (s *Scheduler) Schedule(ctx context.Context, phaseKey string, at time.Time) error {
	id := models.PhaseJobKey(phaseKey)
	if err := s.remove(id); err != nil {
		return err
	}

	task, err := NewPhaseExpiryTask(phaseKey)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.TaskID(id),
		asynq.Queue(QueuePhases),
		asynq.ProcessAt(at),
		asynq.MaxRetry(maxRetry),
	)
	if err != nil {
		return fmt.Errorf("enqueue phase %s: %w", phaseKey, err)
	}

	s.logger.Info("phase expiry scheduled",
		zap.String("phase", phaseKey),
		zap.String("task_id", info.ID),
		zap.Time("at", at))
	return nil
}

func (s *Scheduler) Unschedule(_ context.Context, phaseKey string) error {
	return s.remove(models.PhaseJobKey(phaseKey))
}

func (s *Scheduler) remove(id string) error {
	err := s.inspector.DeleteTask(QueuePhases, id)
	switch {
	case err == nil:
		s.logger.Debug("phase expiry unscheduled", zap.String("task_id", id))
		return nil
	case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		return nil
	}
	return fmt.Errorf("delete task %s: %w", id, err)
}
