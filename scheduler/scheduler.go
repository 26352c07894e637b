package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/models"
	"stockalert/services"
)

// AlertNotifier dispatches the alert-fired email.
type AlertNotifier interface {
	SendAlertTriggered(user models.User, stock models.Stock, alert models.Alert)
}

// Scheduler drives the periodic alert scan. Each tick that finds open
// alerts launches one scan pass in the background; the scanning flag
// guarantees at most one pass is in flight at any time, so overlapping
// ticks can never double-notify an alert or double-fetch a symbol.
type Scheduler struct {
	cron     *gocron.Scheduler
	db       *gorm.DB
	quotes   *services.QuoteService
	notifier AlertNotifier
	log      *zap.Logger

	scanInterval time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	scanning atomic.Bool
	scanWG   sync.WaitGroup
}

// NewScheduler creates a scheduler instance.
func NewScheduler(db *gorm.DB, quotes *services.QuoteService, notifier AlertNotifier, scanInterval time.Duration, log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:         gocron.NewScheduler(time.UTC),
		db:           db,
		quotes:       quotes,
		notifier:     notifier,
		log:          log,
		scanInterval: scanInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start registers and starts all scheduled jobs.
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler", zap.Duration("scan_interval", s.scanInterval))

	s.cron.Every(int(s.scanInterval.Seconds())).Seconds().Do(func() {
		s.checkAlerts()
	})

	// Purge fired alerts after a retention period, daily off-hours.
	s.cron.Every(1).Day().At("01:00").Do(func() {
		s.cleanupFiredAlerts()
	})

	s.cron.StartAsync()
}

// Stop cancels the in-flight scan pass, stops the timer and waits for the
// pass goroutine to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	s.scanWG.Wait()
	s.log.Info("scheduler stopped")
}

// checkAlerts is the scheduler tick. It is cheap when there is nothing to
// do and never blocks on a running pass.
func (s *Scheduler) checkAlerts() {
	var count int64
	err := s.db.Model(&models.Alert{}).
		Where("status = ?", models.AlertStatusOpen).
		Count(&count).Error
	if err != nil {
		s.log.Error("failed to count open alerts", zap.Error(err))
		return
	}
	if count == 0 {
		return
	}

	if !s.scanning.CompareAndSwap(false, true) {
		// Previous pass still running; the work is picked up next tick.
		s.log.Debug("scan pass already in flight, skipping tick")
		return
	}

	s.scanWG.Add(1)
	go func() {
		defer s.scanWG.Done()
		defer s.scanning.Store(false)
		s.runScanPass(s.ctx)
	}()
}

// cleanupFiredAlerts deletes fired alerts older than 30 days.
func (s *Scheduler) cleanupFiredAlerts() {
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	res := s.db.Where("status = ? AND triggered_at < ?", models.AlertStatusFired, cutoff).
		Delete(&models.Alert{})
	if res.Error != nil {
		s.log.Error("failed to clean up fired alerts", zap.Error(res.Error))
		return
	}
	if res.RowsAffected > 0 {
		s.log.Info("purged fired alerts", zap.Int64("count", res.RowsAffected))
	}
}
