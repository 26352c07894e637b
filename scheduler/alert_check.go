package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/models"
)

// shouldTrigger decides whether an alert fires at the current price. The
// watch direction derives from baseline vs desired: baseline >= desired is
// a falling watch that fires at or below the target, baseline < desired is
// a rising watch that fires at or above it. A baseline equal to the desired
// price classifies as a falling watch; that tie-break is long-standing
// behavior and is pinned by tests.
func shouldTrigger(baseline, desired, current decimal.Decimal) bool {
	if baseline.Cmp(desired) >= 0 {
		return current.Cmp(desired) <= 0
	}
	return current.Cmp(desired) >= 0
}

// runScanPass sweeps all alerts that were open at pass start. Alerts are
// evaluated sequentially and independently: one alert's failure never
// aborts the rest of the pass.
func (s *Scheduler) runScanPass(ctx context.Context) {
	start := time.Now()

	var ids []uint
	err := s.db.Model(&models.Alert{}).
		Where("status = ?", models.AlertStatusOpen).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		s.log.Error("failed to snapshot open alerts", zap.Error(err))
		return
	}

	fired := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			s.log.Info("scan pass cancelled", zap.Int("remaining", len(ids)))
			return
		default:
		}
		if s.checkAlert(ctx, id) {
			fired++
		}
	}

	s.log.Info("scan pass complete",
		zap.Int("checked", len(ids)),
		zap.Int("fired", fired),
		zap.Duration("took", time.Since(start)),
	)
}

// checkAlert evaluates one alert and reports whether it fired. The alert,
// its stock and its user are re-fetched by id: the user may have deleted
// the alert between the snapshot and now, and a vanished row is the
// expected outcome of that race, not an error.
func (s *Scheduler) checkAlert(ctx context.Context, id uint) bool {
	var alert models.Alert
	if err := s.db.First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Debug("alert vanished before check", zap.Uint("alert_id", id))
		} else {
			s.log.Error("failed to load alert", zap.Uint("alert_id", id), zap.Error(err))
		}
		return false
	}
	if alert.Status != models.AlertStatusOpen {
		return false
	}

	var stock models.Stock
	if err := s.db.First(&stock, alert.StockID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Debug("stock vanished for alert", zap.Uint("alert_id", id))
		} else {
			s.log.Error("failed to load stock", zap.Uint("alert_id", id), zap.Error(err))
		}
		return false
	}

	var user models.User
	if err := s.db.First(&user, alert.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Debug("user vanished for alert", zap.Uint("alert_id", id))
		} else {
			s.log.Error("failed to load user", zap.Uint("alert_id", id), zap.Error(err))
		}
		return false
	}

	price, err := s.quotes.CurrentPrice(ctx, &stock)
	if err != nil {
		// Unavailable this pass; the alert stays open and is retried next
		// pass with no state change.
		return false
	}

	now := time.Now().UTC()
	s.db.Model(&models.Alert{}).Where("id = ?", id).Update("last_checked_at", now)

	if !shouldTrigger(alert.PriceAtCreation, alert.DesiredPrice, price) {
		return false
	}

	// Compare-and-set on status makes the user-delete race safe: zero rows
	// affected means the alert was deleted (or closed by another writer)
	// since the re-fetch, and no notification goes out. The status write
	// lands before the email is queued, so a crash in between loses at
	// worst one notification, never duplicates one.
	res := s.db.Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, models.AlertStatusOpen).
		Updates(map[string]interface{}{
			"status":       models.AlertStatusFired,
			"triggered_at": now,
		})
	if res.Error != nil {
		s.log.Error("failed to mark alert fired", zap.Uint("alert_id", id), zap.Error(res.Error))
		return false
	}
	if res.RowsAffected == 0 {
		s.log.Debug("alert deleted mid-pass, skipping notification", zap.Uint("alert_id", id))
		return false
	}

	alert.Status = models.AlertStatusFired
	alert.TriggeredAt = &now
	s.notifier.SendAlertTriggered(user, stock, alert)

	s.log.Info("alert fired",
		zap.Uint("alert_id", id),
		zap.String("symbol", stock.Symbol),
		zap.String("desired", alert.DesiredPrice.String()),
		zap.String("price", price.String()),
	)
	return true
}
