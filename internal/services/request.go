package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/metrics"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/dimitrije/cohort-api/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const requestColumns = `id, kind, subject_id, team_id, theme_id, initiator_id, counterparty_id, status, message, created_at, updated_at, responded_at`

// Dispatcher pushes committed notifications to connected clients. It never
// fails the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, notifications ...models.Notification)
}

type CreateRequestInput struct {
	Kind    models.RequestKind
	TeamID  uuid.UUID
	ThemeID *uuid.UUID
	// CounterpartyID is the invitee or the supervisor. Join requests derive
	// it from the actor.
	CounterpartyID uuid.UUID
	Message        string
}

// RequestService runs the request workflow shared by every request kind.
type RequestService struct {
	db            *database.DB
	notifications *NotificationService
	dispatcher    Dispatcher
	policies      map[models.RequestKind]requestPolicy
	logger        *zap.Logger
}

func NewRequestService(
	db *database.DB,
	users *UserService,
	teams *TeamService,
	themes *ThemeService,
	notifications *NotificationService,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *RequestService {
	team := teamSubject{users: users, teams: teams}
	return &RequestService{
		db:            db,
		notifications: notifications,
		dispatcher:    dispatcher,
		policies: map[models.RequestKind]requestPolicy{
			models.RequestTeamInvitation: invitationPolicy{team},
			models.RequestTeamJoin:       joinPolicy{team},
			models.RequestSupervision:    supervisionPolicy{users: users, teams: teams, themes: themes},
		},
		logger: logger,
	}
}

func (s *RequestService) policy(kind models.RequestKind) (requestPolicy, error) {
	p, ok := s.policies[kind]
	if !ok {
		return nil, ErrInvalidRequestKind
	}
	return p, nil
}

func (s *RequestService) Create(ctx context.Context, actor models.CurrentUser, in CreateRequestInput) (*models.Request, error) {
	policy, err := s.policy(in.Kind)
	if err != nil {
		return nil, err
	}

	r := &models.Request{
		Kind:           in.Kind,
		TeamID:         in.TeamID,
		ThemeID:        in.ThemeID,
		InitiatorID:    actor.ID,
		CounterpartyID: in.CounterpartyID,
		Status:         models.RequestPending,
		Message:        strings.TrimSpace(in.Message),
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := policy.prepare(ctx, tx, actor, r); err != nil {
		return nil, err
	}

	member, err := policy.isMember(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}

	ok, err := policy.hasCapacity(ctx, tx, r, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCapacity
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO requests (kind, subject_id, team_id, theme_id, initiator_id, counterparty_id, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, r.Kind, r.SubjectID, r.TeamID, r.ThemeID, r.InitiatorID, r.CounterpartyID, r.Status, r.Message,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, database.ConstraintActiveRequest) {
			return nil, ErrDuplicateActiveRequest
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	approver, err := policy.approver(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	recipients := []uuid.UUID{approver}
	info := policy.describe()
	if info.notifyWatchersOnCreate {
		watchers, err := policy.watchers(ctx, tx, r)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, watchers...)
	}

	batch := make([]models.NewNotification, 0, len(recipients))
	for _, id := range distinct(recipients, actor.ID) {
		batch = append(batch, models.NewNotification{
			RecipientID: id,
			Kind:        models.NotifyRequestReceived,
			Content:     fmt.Sprintf("New %s", info.label),
			Priority:    models.PriorityHigh,
			Related:     models.RelatedToRequest(r.ID),
		})
	}
	recorded, err := s.notifications.RecordAll(ctx, tx, batch)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.RequestTransitions.WithLabelValues(string(r.Kind), string(r.Status)).Inc()
	s.dispatcher.Dispatch(ctx, recorded...)
	return r, nil
}

// Accept materializes the membership and marks the request accepted in one
// transaction. When the subject filled up since creation the request is
// expired instead and ErrCapacityExceeded is returned.
func (s *RequestService) Accept(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, policy, err := s.lockPending(ctx, tx, requestID, models.RequestAccepted)
	if err != nil {
		return nil, err
	}

	approver, err := policy.approver(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	if actor.ID != approver {
		return nil, ErrNotApprover
	}

	ok, err := policy.hasCapacity(ctx, tx, r, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.expire(ctx, tx, r, policy)
	}

	watchers, err := policy.watchers(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	if err := policy.materialize(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, tx, r, models.RequestAccepted); err != nil {
		return nil, err
	}

	info := policy.describe()
	batch := []models.NewNotification{{
		RecipientID: r.InitiatorID,
		Kind:        models.NotifyRequestAccepted,
		Content:     fmt.Sprintf("Your %s was accepted", info.label),
		Related:     models.RelatedToRequest(r.ID),
	}}
	for _, id := range distinct(watchers, actor.ID, r.InitiatorID, r.CounterpartyID) {
		batch = append(batch, models.NewNotification{
			RecipientID: id,
			Kind:        info.joinedKind,
			Content:     fmt.Sprintf("A %s was accepted", info.label),
			Priority:    models.PriorityLow,
			Related:     models.RelatedToTeam(r.TeamID),
		})
	}
	recorded, err := s.notifications.RecordAll(ctx, tx, batch)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.RequestTransitions.WithLabelValues(string(r.Kind), string(r.Status)).Inc()
	s.dispatcher.Dispatch(ctx, recorded...)
	return r, nil
}

// expire commits the capacity-race outcome and reports it to the caller.
func (s *RequestService) expire(ctx context.Context, tx pgx.Tx, r *models.Request, policy requestPolicy) (*models.Request, error) {
	if err := s.setStatus(ctx, tx, r, models.RequestExpired); err != nil {
		return nil, err
	}
	recorded, err := s.notifications.Record(ctx, tx, models.NewNotification{
		RecipientID: r.InitiatorID,
		Kind:        models.NotifyRequestExpired,
		Content:     fmt.Sprintf("Your %s expired: no capacity left", policy.describe().label),
		Related:     models.RelatedToRequest(r.ID),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.RequestTransitions.WithLabelValues(string(r.Kind), string(r.Status)).Inc()
	s.dispatcher.Dispatch(ctx, *recorded)
	return r, ErrCapacityExceeded
}

// Decline is the approver's refusal.
func (s *RequestService) Decline(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	return s.close(ctx, actor, requestID, models.RequestDeclined)
}

// Cancel is the initiator withdrawing the request.
func (s *RequestService) Cancel(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	return s.close(ctx, actor, requestID, models.RequestCancelled)
}

func (s *RequestService) close(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID, to models.RequestStatus) (*models.Request, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, policy, err := s.lockPending(ctx, tx, requestID, to)
	if err != nil {
		return nil, err
	}

	approver, err := policy.approver(ctx, tx, r)
	if err != nil {
		return nil, err
	}

	var recipient uuid.UUID
	var kind, verb string
	switch to {
	case models.RequestDeclined:
		if actor.ID != approver {
			return nil, ErrNotApprover
		}
		recipient, kind, verb = r.InitiatorID, models.NotifyRequestDeclined, "declined"
	case models.RequestCancelled:
		if actor.ID != r.InitiatorID {
			return nil, ErrNotInitiator
		}
		recipient, kind, verb = approver, models.NotifyRequestCancelled, "cancelled"
	}

	if err := s.setStatus(ctx, tx, r, to); err != nil {
		return nil, err
	}

	recorded, err := s.notifications.Record(ctx, tx, models.NewNotification{
		RecipientID: recipient,
		Kind:        kind,
		Content:     fmt.Sprintf("A %s was %s", policy.describe().label, verb),
		Related:     models.RelatedToRequest(r.ID),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.RequestTransitions.WithLabelValues(string(r.Kind), string(r.Status)).Inc()
	s.dispatcher.Dispatch(ctx, *recorded)
	return r, nil
}

// lockPending loads the request FOR UPDATE and checks it may move to the
// target status. Concurrent responders queue on the row lock and see the
// winner's terminal status.
func (s *RequestService) lockPending(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, to models.RequestStatus) (*models.Request, requestPolicy, error) {
	r, err := scanRequest(tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM requests WHERE id = $1
		FOR UPDATE
	`, requestID))
	if err != nil {
		return nil, nil, err
	}
	if !workflow.Requests.CanTransition(r.Status, to) {
		return nil, nil, ErrInvalidState
	}
	policy, err := s.policy(r.Kind)
	if err != nil {
		return nil, nil, err
	}
	return r, policy, nil
}

func (s *RequestService) setStatus(ctx context.Context, q database.Querier, r *models.Request, to models.RequestStatus) error {
	err := q.QueryRow(ctx, `
		UPDATE requests SET status = $1, updated_at = NOW(), responded_at = NOW()
		WHERE id = $2
		RETURNING updated_at, responded_at
	`, to, r.ID).Scan(&r.UpdatedAt, &r.RespondedAt)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	r.Status = to
	return nil
}

// Get returns a request visible to the actor. Requests the actor is not a
// party to are reported as not found.
func (s *RequestService) Get(ctx context.Context, actor models.CurrentUser, requestID uuid.UUID) (*models.Request, error) {
	r, err := scanRequest(s.db.Pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM requests WHERE id = $1
	`, requestID))
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || actor.ID == r.InitiatorID || actor.ID == r.CounterpartyID {
		return r, nil
	}
	policy, err := s.policy(r.Kind)
	if err != nil {
		return nil, err
	}
	approver, err := policy.approver(ctx, s.db.Pool, r)
	if err != nil {
		return nil, err
	}
	if actor.ID != approver {
		return nil, ErrRequestNotFound
	}
	return r, nil
}

// ListPending returns the actor's pending requests, newest first. Incoming
// are those the actor must answer; outgoing are those the actor opened.
func (s *RequestService) ListPending(ctx context.Context, actor models.CurrentUser, incoming bool) ([]models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = $1 AND initiator_id = $2
		ORDER BY created_at DESC`
	if incoming {
		query = `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = $1 AND (
			(kind <> 'team_join' AND counterparty_id = $2)
			OR (kind = 'team_join' AND team_id IN (SELECT id FROM teams WHERE owner_id = $2))
		)
		ORDER BY created_at DESC`
	}

	rows, err := s.db.Pool.Query(ctx, query, models.RequestPending, actor.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func scanRequest(row pgx.Row) (*models.Request, error) {
	var r models.Request
	err := row.Scan(&r.ID, &r.Kind, &r.SubjectID, &r.TeamID, &r.ThemeID, &r.InitiatorID, &r.CounterpartyID,
		&r.Status, &r.Message, &r.CreatedAt, &r.UpdatedAt, &r.RespondedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &r, nil
}

// distinct drops duplicates and any of the excluded ids, keeping order.
func distinct(ids []uuid.UUID, exclude ...uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids)+len(exclude))
	for _, id := range exclude {
		seen[id] = true
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
