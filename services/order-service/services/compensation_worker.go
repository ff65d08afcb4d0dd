package services

import (
	"context"
	"errors"
	"time"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Replayer interface {
	Replay(ctx context.Context, f reservation.CompensationFailure) error
}

// CompensationWorker drains the compensation dead-letter store. Replays reuse
// the stored operation id, so an adjustment that did land before its failure
// was reported is not applied twice.
type CompensationWorker struct {
	repo        repositories.CompensationRepository
	replayer    Replayer
	interval    time.Duration
	maxAttempts int
	batchSize   int
	metrics     awspkg.MetricsRecorder
	logger      *zap.Logger
}

func NewCompensationWorker(repo repositories.CompensationRepository, replayer Replayer, interval time.Duration, maxAttempts int, metrics awspkg.MetricsRecorder, logger *zap.Logger) *CompensationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &CompensationWorker{
		repo:        repo,
		replayer:    replayer,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   50,
		metrics:     metrics,
		logger:      logger,
	}
}

// Start runs until ctx is cancelled.
func (w *CompensationWorker) Start(ctx context.Context) {
	w.logger.Info("compensation worker started", zap.Duration("interval", w.interval), zap.Int("max_attempts", w.maxAttempts))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("compensation worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce replays every due record once and reports how many resolved.
func (w *CompensationWorker) RunOnce(ctx context.Context) (resolved, failed int) {
	recs, err := w.repo.Due(ctx, w.maxAttempts, w.batchSize)
	if err != nil {
		w.logger.Error("failed to load due compensations", zap.Error(err))
		return 0, 0
	}
	for i := range recs {
		if err := w.replay(ctx, &recs[i], false); err != nil {
			failed++
			continue
		}
		resolved++
	}
	if resolved+failed > 0 {
		w.logger.Info("compensation pass finished", zap.Int("resolved", resolved), zap.Int("failed", failed))
	}
	return resolved, failed
}

// Retry replays one record on demand, including abandoned ones.
func (w *CompensationWorker) Retry(ctx context.Context, id uuid.UUID) (*models.CompensationRecord, error) {
	rec, err := w.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.CompensationResolved {
		return rec, nil
	}
	err = w.replay(ctx, rec, true)
	return rec, err
}

func (w *CompensationWorker) List(ctx context.Context, status string, limit int) ([]models.CompensationRecord, error) {
	return w.repo.List(ctx, status, limit)
}

// replay applies rec and updates it in place. manual replays never abandon.
func (w *CompensationWorker) replay(ctx context.Context, rec *models.CompensationRecord, manual bool) error {
	log := w.logger.With(
		zap.String("compensation_id", rec.ID.String()),
		zap.String("order_id", rec.OrderID),
		zap.String("menu_date", rec.MenuDate),
		zap.String("food_item_id", rec.FoodItemID),
		zap.Int("delta", rec.Delta),
		zap.String("operation_id", rec.OperationID),
	)

	err := w.replayer.Replay(ctx, reservation.CompensationFailure{
		OrderID:     rec.OrderID,
		Date:        rec.MenuDate,
		FoodItemID:  rec.FoodItemID,
		Delta:       rec.Delta,
		OperationID: rec.OperationID,
	})
	rec.Attempts++
	if err == nil {
		if merr := w.repo.MarkResolved(ctx, rec.ID); merr != nil {
			log.Error("compensation applied but not marked resolved", zap.Error(merr))
			return merr
		}
		now := time.Now()
		rec.Status = models.CompensationResolved
		rec.ResolvedAt = &now
		rec.LastError = ""
		log.Info("compensation resolved", zap.Int("attempts", rec.Attempts))
		w.record(awspkg.MetricCompensationResolved)
		return nil
	}

	// a refusal will not change on retry; it needs a human
	abandon := !manual && (reservation.IsRefusal(err) || rec.Attempts >= w.maxAttempts)
	if merr := w.repo.MarkFailed(ctx, rec.ID, err, abandon); merr != nil && !errors.Is(merr, repositories.ErrCompensationNotFound) {
		log.Error("failed to update compensation record", zap.Error(merr))
	}
	rec.LastError = err.Error()
	if abandon {
		rec.Status = models.CompensationAbandoned
		log.Error("compensation abandoned, manual reconciliation required", zap.Int("attempts", rec.Attempts), zap.Error(err))
	} else {
		log.Warn("compensation retry failed", zap.Int("attempts", rec.Attempts), zap.Error(err))
	}
	return err
}

func (w *CompensationWorker) record(metric string) {
	if w.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.metrics.RecordCount(ctx, metric, map[string]string{"Service": serviceName})
	}()
}
