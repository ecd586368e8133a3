package jobs

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewServer builds the worker that consumes the phases queue.
func NewServer(rdb redis.UniversalClient, concurrency int, logger *zap.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 1
	}
	return asynq.NewServer(&redisConnOptWrapper{client: rdb}, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{QueuePhases: 1},
		Logger:          newLoggerAdapter(logger),
		LogLevel:        asynq.InfoLevel,
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		ShutdownTimeout: 30 * time.Second,
	})
}

func NewMux(phases PhaseFirer, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskPhaseExpiry, NewPhaseExpiryHandler(phases, logger))
	return mux
}
