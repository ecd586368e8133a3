package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, recipientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *mockStore) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return m.Called(ctx, recipientID, id).Error(0)
}

func (m *mockStore) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	args := m.Called(ctx, recipientID)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Archive(ctx context.Context, recipientID, id uuid.UUID) error {
	return m.Called(ctx, recipientID, id).Error(0)
}

func newSession(t *testing.T) (*Session, *mockStore, uuid.UUID) {
	t.Helper()
	store := new(mockStore)
	userID := uuid.New()
	return NewSession(store, userID, 0, zap.NewNop()), store, userID
}

func TestSession_CatchUp(t *testing.T) {
	s, store, userID := newSession(t)
	ctx := context.Background()
	now := time.Now()
	teamID := uuid.New()

	list := []models.Notification{
		{ID: uuid.New(), RecipientID: userID, Kind: models.NotifyTeamAssigned, Status: models.NotificationUnread,
			Related: models.RelatedToTeam(teamID), CreatedAt: now},
		{ID: uuid.New(), RecipientID: userID, Kind: models.NotifyRequestReceived, Status: models.NotificationUnread,
			Related: models.RelatedToRequest(uuid.New()), CreatedAt: now.Add(-time.Minute)},
	}
	store.On("ListUnread", ctx, userID, DefaultCatchupLimit).Return(list, nil)
	store.On("CountUnread", ctx, userID).Return(12, nil)

	msg, err := s.CatchUp(ctx)

	require.NoError(t, err)
	assert.Equal(t, TypePendingNotifications, msg.Type)
	assert.Equal(t, 12, msg.Count)
	require.Len(t, msg.Notifications, 2)
	assert.Equal(t, list[0].ID, msg.Notifications[0].ID)
	assert.Equal(t, "team", msg.Notifications[0].Related.Kind)
	assert.Equal(t, &teamID, msg.Notifications[0].Related.ID)
	store.AssertExpectations(t)
}

func TestSession_CatchUp_StoreError(t *testing.T) {
	s, store, userID := newSession(t)
	ctx := context.Background()
	store.On("ListUnread", ctx, userID, DefaultCatchupLimit).Return(nil, errors.New("db down"))

	_, err := s.CatchUp(ctx)
	assert.Error(t, err)
}

func TestSession_Handle_MarkRead(t *testing.T) {
	s, store, userID := newSession(t)
	ctx := context.Background()
	id := uuid.New()
	store.On("MarkRead", ctx, userID, id).Return(nil)

	reply := s.Handle(ctx, []byte(`{"type":"mark_read","notification_id":"`+id.String()+`"}`))

	assert.Equal(t, CommandResult{Type: TypeMarkedRead, ID: id, Success: true}, reply)
}

func TestSession_Handle_MarkReadNotFound(t *testing.T) {
	s, store, userID := newSession(t)
	ctx := context.Background()
	id := uuid.New()
	store.On("MarkRead", ctx, userID, id).Return(services.ErrNotificationNotFound)

	reply := s.Handle(ctx, []byte(`{"type":"mark_read","notification_id":"`+id.String()+`"}`))

	res, ok := reply.(CommandResult)
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Equal(t, "notification not found", res.Message)
}

func TestSession_Handle_Archive(t *testing.T) {
	s, store, userID := newSession(t)
	ctx := context.Background()
	id := uuid.New()
	store.On("Archive", ctx, userID, id).Return(errors.New("connection reset"))

	reply := s.Handle(ctx, []byte(`{"type":"archive_notification","notification_id":"`+id.String()+`"}`))

	res, ok := reply.(CommandResult)
	require.True(t, ok)
	assert.Equal(t, TypeArchived, res.Type)
	assert.False(t, res.Success)
	assert.Equal(t, "internal error", res.Message)
}

func TestSession_Handle_MarkAllRead(t *testing.T) {
	s, store, userID := newSession(t)
	ctx := context.Background()
	store.On("MarkAllRead", ctx, userID).Return(3, nil)

	reply := s.Handle(ctx, []byte(`{"type":"mark_all_read"}`))

	assert.Equal(t, AllMarkedRead{Type: TypeAllMarkedRead, Count: 3}, reply)
}

func TestSession_Handle_MalformedInput(t *testing.T) {
	s, store, _ := newSession(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"not json", `hello`, "invalid message format"},
		{"missing type", `{}`, "message type is required"},
		{"unknown type", `{"type":"subscribe"}`, "unknown message type: subscribe"},
		{"bad id", `{"type":"mark_read","notification_id":"42"}`, "invalid notification_id"},
		{"bad archive id", `{"type":"archive_notification"}`, "invalid notification_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := s.Handle(context.Background(), []byte(tt.in))
			assert.Equal(t, ErrorMessage{Type: TypeError, Message: tt.want}, reply)
		})
	}
	store.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
}
