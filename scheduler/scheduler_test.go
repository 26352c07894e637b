package scheduler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockalert/models"
)

func TestCheckAlertsAtMostOnePass(t *testing.T) {
	fetcher := &fakeFetcher{
		prices: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("45")},
		block:  make(chan struct{}),
		began:  make(chan struct{}, 8),
	}
	f := newFixture(t, fetcher)
	user := f.createUser(t, "ivan")
	stock := f.createStock(t, "AAPL")
	f.createAlert(t, user.ID, stock.ID, "80", "50")

	// First tick launches a pass, which parks inside the gateway call.
	f.sched.checkAlerts()
	select {
	case <-fetcher.began:
	case <-time.After(5 * time.Second):
		t.Fatal("scan pass never reached the gateway")
	}

	// Further ticks while the pass is in flight must not spawn another.
	f.sched.checkAlerts()
	f.sched.checkAlerts()

	select {
	case <-fetcher.began:
		t.Fatal("a second scan pass was launched while one was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(fetcher.block)
	f.sched.scanWG.Wait()

	if got := f.notifier.alertCount(); got != 1 {
		t.Errorf("notifications sent = %d, want 1", got)
	}
	if f.sched.scanning.Load() {
		t.Error("scanning flag still set after pass completed")
	}

	// With the flag released, the next tick may scan again; the alert is
	// already fired so the tick is a no-op.
	f.sched.checkAlerts()
	f.sched.scanWG.Wait()
	if got := f.notifier.alertCount(); got != 1 {
		t.Errorf("notifications after no-op tick = %d, want 1", got)
	}
}

func TestCheckAlertsNoOpWithoutOpenAlerts(t *testing.T) {
	fetcher := &fakeFetcher{began: make(chan struct{}, 1)}
	f := newFixture(t, fetcher)

	f.sched.checkAlerts()
	f.sched.scanWG.Wait()

	select {
	case <-fetcher.began:
		t.Fatal("tick with no open alerts must not launch a pass")
	default:
	}
}

func TestCleanupFiredAlertsKeepsRecentAndOpen(t *testing.T) {
	f := newFixture(t, &fakeFetcher{})
	user := f.createUser(t, "judy")
	stock := f.createStock(t, "AAPL")

	old := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC().AddDate(0, 0, -5)

	expired := f.createAlert(t, user.ID, stock.ID, "80", "50")
	f.db.Model(&expired).Updates(map[string]interface{}{"status": "FIRED", "triggered_at": old})

	fresh := f.createAlert(t, user.ID, stock.ID, "80", "40")
	f.db.Model(&fresh).Updates(map[string]interface{}{"status": "FIRED", "triggered_at": recent})

	open := f.createAlert(t, user.ID, stock.ID, "80", "30")

	f.sched.cleanupFiredAlerts()

	var count int64
	f.db.Model(&models.Alert{}).Where("id = ?", expired.ID).Count(&count)
	if count != 0 {
		t.Error("expired fired alert was not purged")
	}
	f.db.Model(&models.Alert{}).Where("id = ?", fresh.ID).Count(&count)
	if count != 1 {
		t.Error("recently fired alert must be kept")
	}
	f.db.Model(&models.Alert{}).Where("id = ?", open.ID).Count(&count)
	if count != 1 {
		t.Error("open alert must never be purged")
	}
}
