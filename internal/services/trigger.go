package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dimitrije/cohort-api/internal/metrics"
	"github.com/dimitrije/cohort-api/internal/models"
	"go.uber.org/zap"
)

// FireResult reports one trigger invocation. Skipped explains a no-op.
type FireResult struct {
	PhaseKey string              `json:"phase_key"`
	Status   models.PhaseStatus  `json:"status"`
	Ran      bool                `json:"ran"`
	Skipped  string              `json:"skipped,omitempty"`
	Batch    *models.BatchResult `json:"batch,omitempty"`
}

// Fire runs the phase's batch assignment at most once. The phase row stays
// locked for the whole run, so duplicate deliveries queue and then see
// processed=true. An engine error rolls everything back and leaves the phase
// unprocessed for a manual re-run.
func (s *PhaseService) Fire(ctx context.Context, phaseKey string) (*FireResult, error) {
	begin := time.Now()
	now := s.now()

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := s.lock(ctx, tx, phaseKey)
	if err != nil {
		metrics.TriggerRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	res := &FireResult{PhaseKey: p.Key, Status: p.Status(now)}
	switch {
	case p.Processed:
		res.Skipped = "already processed"
	case res.Status != models.PhaseExpired:
		res.Skipped = fmt.Sprintf("phase is %s", res.Status)
	}
	if res.Skipped != "" {
		s.logger.Info("phase trigger skipped",
			zap.String("phase", p.Key),
			zap.String("reason", res.Skipped))
		metrics.TriggerRuns.WithLabelValues("skipped").Inc()
		return res, nil
	}

	batch, recorded, err := s.engine.Run(ctx, tx, p.Kind, p.CohortKey)
	if err != nil {
		metrics.TriggerRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("assignment for phase %s: %w", p.Key, err)
	}

	if err := s.MarkProcessed(ctx, tx, p); err != nil {
		metrics.TriggerRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	admins, err := s.users.SuperAdminIDs(ctx, tx)
	if err != nil {
		metrics.TriggerRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	reports := make([]models.NewNotification, 0, len(admins))
	for _, id := range admins {
		reports = append(reports, models.NewNotification{
			RecipientID: id,
			Kind:        models.NotifyPhaseRun,
			Content: fmt.Sprintf("Phase %s (%s, cohort %s): %d assigned, %d unassigned, %d failed",
				p.Key, p.Kind, p.CohortKey, batch.Assigned, batch.Unassigned, batch.Failed),
			Related: models.RelatedToPhaseRun(p.Key),
		})
	}
	reported, err := s.notifications.RecordAll(ctx, tx, reports)
	if err != nil {
		metrics.TriggerRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.TriggerRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.TriggerRuns.WithLabelValues("ran").Inc()
	metrics.TriggerDuration.Observe(time.Since(begin).Seconds())
	s.logger.Info("phase trigger ran",
		zap.String("phase", p.Key),
		zap.String("kind", string(p.Kind)),
		zap.String("cohort", p.CohortKey),
		zap.Int("assigned", batch.Assigned),
		zap.Int("unassigned", batch.Unassigned),
		zap.Int("failed", batch.Failed))

	s.dispatcher.Dispatch(ctx, append(recorded, reported...)...)

	res.Ran = true
	res.Batch = batch
	return res, nil
}
