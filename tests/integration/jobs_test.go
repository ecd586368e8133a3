package integration

import (
	"context"
	"testing"
	"time"

	"github.com/dimitrije/cohort-api/internal/jobs"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/tests/testutil"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestScheduler_Integration_OneJobPerPhase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rdb := testutil.SetupTestRedis(t)
	ctx := context.Background()

	scheduler := jobs.NewScheduler(rdb, zaptest.NewLogger(t))
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: rdb.Options().Addr})
	t.Cleanup(func() { _ = inspector.Close() })

	id := models.PhaseJobKey("groups-spring")
	first := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, scheduler.Schedule(ctx, "groups-spring", first))

	info, err := inspector.GetTaskInfo(jobs.QueuePhases, id)
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStateScheduled, info.State)
	assert.Equal(t, jobs.TaskPhaseExpiry, info.Type)
	assert.True(t, info.NextProcessAt.Equal(first))

	// Rescheduling replaces the pending job instead of adding a second one.
	second := first.Add(24 * time.Hour)
	require.NoError(t, scheduler.Schedule(ctx, "groups-spring", second))

	scheduled, err := inspector.ListScheduledTasks(jobs.QueuePhases)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.True(t, scheduled[0].NextProcessAt.Equal(second))

	require.NoError(t, scheduler.Unschedule(ctx, "groups-spring"))
	_, err = inspector.GetTaskInfo(jobs.QueuePhases, id)
	assert.ErrorIs(t, err, asynq.ErrTaskNotFound)

	// Unscheduling a phase with no job is a no-op.
	assert.NoError(t, scheduler.Unschedule(ctx, "groups-spring"))
}
