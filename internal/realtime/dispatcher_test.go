package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/cohort-api/internal/broker"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	recipient uuid.UUID
	payload   []byte
}

// recordingBroker captures publishes; failFor makes publishes to one
// recipient fail.
type recordingBroker struct {
	mu      sync.Mutex
	msgs    []published
	failFor uuid.UUID
}

func (b *recordingBroker) Join(context.Context, uuid.UUID) (broker.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBroker) Publish(_ context.Context, recipientID uuid.UUID, payload []byte) error {
	if recipientID == b.failFor {
		return errors.New("broker unavailable")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{recipient: recipientID, payload: payload})
	return nil
}

func (b *recordingBroker) Close() error { return nil }

func TestDispatcher_PublishesEnvelopeInOrder(t *testing.T) {
	b := &recordingBroker{}
	d := NewDispatcher(b, zap.NewNop())
	userID := uuid.New()

	first := models.Notification{ID: uuid.New(), RecipientID: userID, Kind: models.NotifyRequestReceived,
		Related: models.RelatedToRequest(uuid.New()), Status: models.NotificationUnread, CreatedAt: time.Now()}
	second := models.Notification{ID: uuid.New(), RecipientID: userID, Kind: models.NotifyPhaseRun,
		Related: models.RelatedToPhaseRun("groups-4siw"), Status: models.NotificationUnread, CreatedAt: time.Now()}

	d.Dispatch(context.Background(), first, second)

	require.Len(t, b.msgs, 2)
	var env NotificationEvent
	require.NoError(t, json.Unmarshal(b.msgs[0].payload, &env))
	assert.Equal(t, TypeNotification, env.Type)
	assert.Equal(t, first.ID, env.Payload.ID)

	require.NoError(t, json.Unmarshal(b.msgs[1].payload, &env))
	assert.Equal(t, "phase_run", env.Payload.Related.Kind)
	assert.Equal(t, "groups-4siw", env.Payload.Related.Key)
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	offline := uuid.New()
	b := &recordingBroker{failFor: offline}
	d := NewDispatcher(b, zap.NewNop())
	online := uuid.New()

	d.Dispatch(context.Background(),
		models.Notification{ID: uuid.New(), RecipientID: offline},
		models.Notification{ID: uuid.New(), RecipientID: online},
	)

	require.Len(t, b.msgs, 1)
	assert.Equal(t, online, b.msgs[0].recipient)
}

func TestDispatcher_IgnoresCallerCancellation(t *testing.T) {
	b := &recordingBroker{}
	d := NewDispatcher(b, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Dispatch(ctx, models.Notification{ID: uuid.New(), RecipientID: uuid.New()})

	assert.Len(t, b.msgs, 1)
}

func TestDispatcher_WithLocalBroker(t *testing.T) {
	local := broker.NewLocal()
	go local.Run()
	defer local.Close()

	userID := uuid.New()
	sub, err := local.Join(context.Background(), userID)
	require.NoError(t, err)

	n := models.Notification{ID: uuid.New(), RecipientID: userID, Kind: models.NotifyMemberJoined}
	NewDispatcher(local, zap.NewNop()).Dispatch(context.Background(), n)

	select {
	case msg := <-sub.C():
		var env NotificationEvent
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, n.ID, env.Payload.ID)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}
