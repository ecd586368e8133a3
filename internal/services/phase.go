package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dimitrije/cohort-api/internal/database"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const phaseColumns = `id, key, kind, cohort_key, starts_at, ends_at, active, processed, created_at, updated_at`

// PhaseScheduler is the job queue seen from the phase tracker. Schedule
// replaces any job already scheduled for the key.
type PhaseScheduler interface {
	Schedule(ctx context.Context, phaseKey string, at time.Time) error
	Unschedule(ctx context.Context, phaseKey string) error
}

type CreatePhaseInput struct {
	Key       string
	Kind      models.PhaseKind
	CohortKey string
	StartsAt  time.Time
	EndsAt    *time.Time
	Active    bool
}

type UpdatePhaseInput struct {
	StartsAt    *time.Time
	EndsAt      *time.Time
	ClearEndsAt bool
	Active      *bool
}

type PhaseService struct {
	db            *database.DB
	scheduler     PhaseScheduler
	users         *UserService
	engine        *AssignmentService
	notifications *NotificationService
	dispatcher    Dispatcher
	logger        *zap.Logger
	now           func() time.Time
}

func NewPhaseService(
	db *database.DB,
	scheduler PhaseScheduler,
	users *UserService,
	engine *AssignmentService,
	notifications *NotificationService,
	dispatcher Dispatcher,
	logger *zap.Logger,
) *PhaseService {
	return &PhaseService{
		db:            db,
		scheduler:     scheduler,
		users:         users,
		engine:        engine,
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        logger,
		now:           time.Now,
	}
}

// Create stores the phase and schedules its expiry trigger. The job is
// enqueued before commit; a job whose phase never committed finds nothing
// and fails without retry.
func (s *PhaseService) Create(ctx context.Context, in CreatePhaseInput) (*models.Phase, error) {
	p := &models.Phase{
		Key:       strings.TrimSpace(in.Key),
		Kind:      in.Kind,
		CohortKey: strings.TrimSpace(in.CohortKey),
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
		Active:    in.Active,
	}
	if p.Key == "" || p.CohortKey == "" {
		return nil, fmt.Errorf("%w: key and cohort are required", ErrValidation)
	}
	if !p.Kind.Valid() {
		return nil, ErrInvalidPhaseKind
	}
	if err := p.Validate(); err != nil {
		return nil, ErrInvalidPhaseWindow
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO phases (key, kind, cohort_key, starts_at, ends_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, processed, created_at, updated_at
	`, p.Key, p.Kind, p.CohortKey, p.StartsAt, p.EndsAt, p.Active,
	).Scan(&p.ID, &p.Processed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, ErrPhaseExists
		}
		return nil, fmt.Errorf("failed to create phase: %w", err)
	}

	if err := s.sync(ctx, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, nil
}

// Update edits the window or the active flag and moves the expiry job to
// the new end instead of adding a second one.
func (s *PhaseService) Update(ctx context.Context, key string, in UpdatePhaseInput) (*models.Phase, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := s.lock(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	if in.StartsAt != nil {
		p.StartsAt = *in.StartsAt
	}
	if in.ClearEndsAt {
		p.EndsAt = nil
	} else if in.EndsAt != nil {
		p.EndsAt = in.EndsAt
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if err := p.Validate(); err != nil {
		return nil, ErrInvalidPhaseWindow
	}

	err = tx.QueryRow(ctx, `
		UPDATE phases SET starts_at = $1, ends_at = $2, active = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`, p.StartsAt, p.EndsAt, p.Active, p.ID).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update phase: %w", err)
	}

	if err := s.sync(ctx, p); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, nil
}

// sync makes the queue match the phase: one job at EndsAt while the phase is
// active, unprocessed and bounded, none otherwise.
func (s *PhaseService) sync(ctx context.Context, p *models.Phase) error {
	var err error
	if p.Active && !p.Processed && p.EndsAt != nil {
		err = s.scheduler.Schedule(ctx, p.Key, *p.EndsAt)
	} else {
		err = s.scheduler.Unschedule(ctx, p.Key)
	}
	if err != nil {
		return fmt.Errorf("%w: scheduling phase %s: %v", ErrTransientInfra, p.Key, err)
	}
	return nil
}

func (s *PhaseService) Get(ctx context.Context, key string) (*models.Phase, error) {
	return scanPhase(s.db.Pool.QueryRow(ctx, `
		SELECT `+phaseColumns+`
		FROM phases WHERE key = $1
	`, key))
}

func (s *PhaseService) lock(ctx context.Context, q database.Querier, key string) (*models.Phase, error) {
	return scanPhase(q.QueryRow(ctx, `
		SELECT `+phaseColumns+`
		FROM phases WHERE key = $1
		FOR UPDATE
	`, key))
}

// MarkProcessed sets the processed flag. Marking twice is a no-op.
func (s *PhaseService) MarkProcessed(ctx context.Context, q database.Querier, p *models.Phase) error {
	_, err := q.Exec(ctx, `
		UPDATE phases SET processed = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT processed
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to mark phase processed: %w", err)
	}
	p.Processed = true
	return nil
}

func scanPhase(row pgx.Row) (*models.Phase, error) {
	var p models.Phase
	err := row.Scan(&p.ID, &p.Key, &p.Kind, &p.CohortKey, &p.StartsAt, &p.EndsAt,
		&p.Active, &p.Processed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPhaseNotFound
		}
		return nil, err
	}
	return &p, nil
}
