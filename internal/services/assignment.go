package services

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/dimitrije/cohort-api/internal/assignment"
	"github.com/dimitrije/cohort-api/internal/metrics"
	"github.com/dimitrije/cohort-api/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// AssignmentService persists the random fair-share batch distributions. Every
// method runs inside the caller's transaction and returns the notifications
// it recorded so the caller can dispatch them after commit.
type AssignmentService struct {
	teams         *TeamService
	themes        *ThemeService
	notifications *NotificationService
	logger        *zap.Logger
	newRand       func() *rand.Rand
}

func NewAssignmentService(teams *TeamService, themes *ThemeService, notifications *NotificationService, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{
		teams:         teams,
		themes:        themes,
		notifications: notifications,
		logger:        logger,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
	}
}

// Run dispatches to the algorithm selected by the phase kind.
func (s *AssignmentService) Run(ctx context.Context, tx pgx.Tx, kind models.PhaseKind, cohortKey string) (*models.BatchResult, []models.Notification, error) {
	switch kind {
	case models.PhaseKindGroups:
		return s.DistributeMembers(ctx, tx, cohortKey)
	case models.PhaseKindThemes:
		return s.DistributeThemes(ctx, tx, cohortKey)
	}
	return nil, nil, ErrInvalidPhaseKind
}

// lockCohort serializes batch runs for one cohort until tx ends.
func lockCohort(ctx context.Context, tx pgx.Tx, cohortKey string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "assignment:"+cohortKey); err != nil {
		return fmt.Errorf("failed to lock cohort: %w", err)
	}
	return nil
}

// withSavepoint runs fn in a nested transaction so a failing item rolls back
// alone and the batch keeps its earlier progress.
func withSavepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

// DistributeMembers places teamless eligible students of the cohort into
// teams with spare capacity, one uniformly random open team per student.
func (s *AssignmentService) DistributeMembers(ctx context.Context, tx pgx.Tx, cohortKey string) (*models.BatchResult, []models.Notification, error) {
	if err := lockCohort(ctx, tx, cohortKey); err != nil {
		return nil, nil, err
	}

	members, err := s.teamlessMembers(ctx, tx, cohortKey)
	if err != nil {
		return nil, nil, err
	}
	teams, err := s.openTeams(ctx, tx, cohortKey)
	if err != nil {
		return nil, nil, err
	}

	result := &models.BatchResult{
		CohortKey:         cohortKey,
		Kind:              models.PhaseKindGroups,
		TeamlessBefore:    len(members),
		TeamsWithCapacity: len(teams),
		PerTeam:           map[uuid.UUID]int{},
	}
	if len(members) == 0 || len(teams) == 0 {
		result.Unassigned = len(members)
		return result, nil, nil
	}

	owners := make(map[uuid.UUID]uuid.UUID, len(teams))
	slots := make([]assignment.Slot, 0, len(teams))
	for _, t := range teams {
		owners[t.TeamID] = t.OwnerID
		slots = append(slots, assignment.Slot{TeamID: t.TeamID, Remaining: t.Remaining()})
	}

	var recorded []models.Notification
	plan := assignment.PlanMembers(s.newRand(), members, slots, func(p assignment.Placement) error {
		var notes []models.Notification
		err := withSavepoint(ctx, tx, func(sp pgx.Tx) error {
			if err := s.teams.addMember(ctx, sp, p.TeamID, p.UserID, models.RoleMember); err != nil {
				return err
			}
			var err error
			notes, err = s.notifications.RecordAll(ctx, sp, []models.NewNotification{
				{
					RecipientID: p.UserID,
					Kind:        models.NotifyTeamAssigned,
					Content:     "You were assigned to a team",
					Priority:    models.PriorityHigh,
					Related:     models.RelatedToTeam(p.TeamID),
				},
				{
					RecipientID: owners[p.TeamID],
					Kind:        models.NotifyMemberAutoAdded,
					Content:     "A member was added to your team",
					Related:     models.RelatedToTeam(p.TeamID),
				},
			})
			return err
		})
		if err != nil {
			s.logger.Warn("member placement failed",
				zap.String("cohort", cohortKey),
				zap.Stringer("user_id", p.UserID),
				zap.Stringer("team_id", p.TeamID),
				zap.Error(err))
			return err
		}
		recorded = append(recorded, notes...)
		return nil
	})

	result.PerTeam = plan.PerTeam
	result.Assigned = len(plan.Placements)
	result.Unassigned = len(plan.Unassigned)
	result.Failed = len(plan.Failed)

	s.observe(result)
	return result, recorded, nil
}

// DistributeThemes pairs theme-less teams with verified themes that are
// under their group limit. Each theme is offered once per run.
func (s *AssignmentService) DistributeThemes(ctx context.Context, tx pgx.Tx, cohortKey string) (*models.BatchResult, []models.Notification, error) {
	if err := lockCohort(ctx, tx, cohortKey); err != nil {
		return nil, nil, err
	}

	teams, err := s.themelessTeams(ctx, tx, cohortKey)
	if err != nil {
		return nil, nil, err
	}
	themes, err := s.availableThemes(ctx, tx, cohortKey)
	if err != nil {
		return nil, nil, err
	}

	plan := assignment.PlanThemes(s.newRand(), teams, themes)

	var recorded []models.Notification
	failed := 0
	for _, pair := range plan.Pairs {
		var notes []models.Notification
		err := withSavepoint(ctx, tx, func(sp pgx.Tx) error {
			if err := s.themes.assignToTeam(ctx, sp, pair.TeamID, pair.ThemeID); err != nil {
				return err
			}
			members, err := s.teams.memberIDs(ctx, sp, pair.TeamID)
			if err != nil {
				return err
			}
			batch := make([]models.NewNotification, 0, len(members))
			for _, memberID := range members {
				batch = append(batch, models.NewNotification{
					RecipientID: memberID,
					Kind:        models.NotifyThemeAssigned,
					Content:     "Your team was assigned a theme",
					Priority:    models.PriorityHigh,
					Related:     models.RelatedToTeam(pair.TeamID),
				})
			}
			notes, err = s.notifications.RecordAll(ctx, sp, batch)
			return err
		})
		if err != nil {
			failed++
			s.logger.Warn("theme assignment failed",
				zap.String("cohort", cohortKey),
				zap.Stringer("team_id", pair.TeamID),
				zap.Stringer("theme_id", pair.ThemeID),
				zap.Error(err))
			continue
		}
		recorded = append(recorded, notes...)
	}

	result := &models.BatchResult{
		CohortKey:       cohortKey,
		Kind:            models.PhaseKindThemes,
		RemainingTeams:  len(plan.RemainingTeams) + failed,
		RemainingThemes: len(plan.RemainingThemes) + failed,
		Assigned:        len(plan.Pairs) - failed,
		Failed:          failed,
	}
	result.Unassigned = result.RemainingTeams

	s.observe(result)
	return result, recorded, nil
}

func (s *AssignmentService) observe(r *models.BatchResult) {
	kind := string(r.Kind)
	metrics.AssignmentsMade.WithLabelValues(kind, "assigned").Add(float64(r.Assigned))
	metrics.AssignmentsMade.WithLabelValues(kind, "unassigned").Add(float64(r.Unassigned))
	metrics.AssignmentsMade.WithLabelValues(kind, "failed").Add(float64(r.Failed))
}

func (s *AssignmentService) teamlessMembers(ctx context.Context, tx pgx.Tx, cohortKey string) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		SELECT u.id FROM users u
		WHERE u.cohort_key = $1 AND u.role = $2 AND u.eligible
		  AND NOT EXISTS (
			SELECT 1 FROM team_members tm WHERE tm.cohort_key = $1 AND tm.user_id = u.id
		  )
		ORDER BY u.id
	`, cohortKey, models.UserRoleStudent)
	if err != nil {
		return nil, fmt.Errorf("failed to list teamless members: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// openTeams locks the cohort's team rows so concurrent acceptances wait for
// the batch, then reads the teams that still have room.
func (s *AssignmentService) openTeams(ctx context.Context, tx pgx.Tx, cohortKey string) ([]models.TeamSlots, error) {
	if _, err := tx.Exec(ctx, `
		SELECT id FROM teams WHERE cohort_key = $1 ORDER BY id FOR UPDATE
	`, cohortKey); err != nil {
		return nil, fmt.Errorf("failed to lock teams: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT t.id, t.owner_id, t.capacity, COUNT(tm.id)
		FROM teams t
		LEFT JOIN team_members tm ON tm.team_id = t.id
		WHERE t.cohort_key = $1
		GROUP BY t.id
		HAVING COUNT(tm.id) < t.capacity
		ORDER BY t.id
	`, cohortKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list open teams: %w", err)
	}
	defer rows.Close()

	var teams []models.TeamSlots
	for rows.Next() {
		var t models.TeamSlots
		if err := rows.Scan(&t.TeamID, &t.OwnerID, &t.Capacity, &t.Members); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *AssignmentService) themelessTeams(ctx context.Context, tx pgx.Tx, cohortKey string) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		SELECT t.id FROM teams t
		WHERE t.cohort_key = $1
		  AND NOT EXISTS (SELECT 1 FROM team_themes tt WHERE tt.team_id = t.id)
		ORDER BY t.id
	`, cohortKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams without theme: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *AssignmentService) availableThemes(ctx context.Context, tx pgx.Tx, cohortKey string) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		SELECT th.id FROM themes th
		LEFT JOIN team_themes tt ON tt.theme_id = th.id
		WHERE th.cohort_key = $1 AND th.verified
		GROUP BY th.id
		HAVING th.max_groups IS NULL OR COUNT(tt.id) < th.max_groups
		ORDER BY th.id
	`, cohortKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list available themes: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}
