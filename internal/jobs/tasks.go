// Package jobs runs the phase expiry triggers on an asynq queue backed by
// the shared Redis client.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	TaskPhaseExpiry = "phase:expiry"
	QueuePhases     = "phases"

	// A failed run is archived, never retried. Admins rerun it through
	// POST /admin/phases/:key/run.
	maxRetry = 0
)

type PhaseExpiryPayload struct {
	PhaseKey string `json:"phase_key"`
}

func NewPhaseExpiryTask(phaseKey string) (*asynq.Task, error) {
	payload, err := json.Marshal(PhaseExpiryPayload{PhaseKey: phaseKey})
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskPhaseExpiry, payload), nil
}

// redisConnOptWrapper lets asynq reuse the process-wide Redis client.
type redisConnOptWrapper struct {
	client redis.UniversalClient
}

func (r *redisConnOptWrapper) MakeRedisClient() interface{} {
	return r.client
}
