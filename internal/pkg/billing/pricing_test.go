package billing

import (
	"testing"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
)

func TestBonusCredits(t *testing.T) {
	tests := map[int64]int64{
		0:    0,
		500:  0,
		1000: 100,
		1500: 0,
		2500: 300,
		5000: 750,
		9999: 0,
	}
	for qty, want := range tests {
		if got := BonusCredits(qty); got != want {
			t.Fatalf("BonusCredits(%d) = %d, want %d", qty, got, want)
		}
	}
}

func TestInvoiceNumberFormat(t *testing.T) {
	now := time.UnixMilli(1767225612345)
	if got := invoiceNumber(7, now); got != "INV-00007-2345" {
		t.Fatalf("invoiceNumber = %q", got)
	}
	if got := subscriptionReference(now, "plan-1"); got != "SUB_1767225612345_plan-1" {
		t.Fatalf("subscriptionReference = %q", got)
	}
	if got := creditReference(now, "org-1"); got != "CREDIT_1767225612345_org-1" {
		t.Fatalf("creditReference = %q", got)
	}
}

func subscriptionWindow(now time.Time, elapsedDays, remainingDays int) models.Subscription {
	start := now.AddDate(0, 0, -elapsedDays)
	end := now.AddDate(0, 0, remainingDays)
	return models.Subscription{Status: models.SubscriptionActive, StartDate: &start, EndDate: &end}
}

func TestQuoteProrationUpgrade(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	basic := &models.Plan{ID: "basic", Name: models.PlanBasic, Price: 15000}
	standard := &models.Plan{ID: "standard", Name: models.PlanStandard, Price: 45000}

	q := QuoteProration(basic, subscriptionWindow(now, 10, 20), standard, now)

	if q.TotalDays != 30 || q.RemainingDays != 20 {
		t.Fatalf("days = %d/%d, want 30/20", q.RemainingDays, q.TotalDays)
	}
	if q.UnusedCredit != 10000 {
		t.Fatalf("unused credit = %d, want 10000", q.UnusedCredit)
	}
	if q.ProratedAmount != 35000 {
		t.Fatalf("prorated = %d, want 35000", q.ProratedAmount)
	}
	if q.ProrationType != ProrationUpgrade {
		t.Fatalf("type = %s", q.ProrationType)
	}
}

func TestQuoteProrationBounds(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	prices := []int64{1, 15000, 45000, 90000, 123457}

	for _, cur := range prices {
		for _, next := range prices {
			current := &models.Plan{ID: "a", Price: cur}
			nextPlan := &models.Plan{ID: "b", Price: next}
			for elapsed := 0; elapsed <= 30; elapsed += 3 {
				q := QuoteProration(current, subscriptionWindow(now, elapsed, 30-elapsed), nextPlan, now)
				if q.ProratedAmount < 0 || q.ProratedAmount > next {
					t.Fatalf("cur=%d next=%d elapsed=%d: prorated %d out of [0,%d]", cur, next, elapsed, q.ProratedAmount, next)
				}
			}

			// full period remaining
			q := QuoteProration(current, subscriptionWindow(now, 0, 30), nextPlan, now)
			want := next - cur
			if want < 0 {
				want = 0
			}
			if q.ProratedAmount != want {
				t.Fatalf("r=T cur=%d next=%d: prorated %d, want %d", cur, next, q.ProratedAmount, want)
			}

			// period over
			q = QuoteProration(current, subscriptionWindow(now, 30, 0), nextPlan, now)
			if q.ProratedAmount != next {
				t.Fatalf("r=0 cur=%d next=%d: prorated %d, want %d", cur, next, q.ProratedAmount, next)
			}
		}
	}
}

func TestQuoteProrationClipsRemaining(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	current := &models.Plan{ID: "a", Price: 45000}
	next := &models.Plan{ID: "b", Price: 15000}

	expired := QuoteProration(current, subscriptionWindow(now, 40, -10), next, now)
	if expired.RemainingDays != 0 || expired.ProratedAmount != 15000 {
		t.Fatalf("expired window: %+v", expired)
	}

	// start in the future: r would exceed T
	start := now.AddDate(0, 0, 5)
	end := start.AddDate(0, 0, 30)
	future := QuoteProration(current, models.Subscription{StartDate: &start, EndDate: &end}, next, now)
	if future.RemainingDays != future.TotalDays {
		t.Fatalf("remaining %d not clipped to %d", future.RemainingDays, future.TotalDays)
	}
	if future.ProrationType != ProrationDowngrade || future.ProratedAmount != 0 {
		t.Fatalf("downgrade quote: %+v", future)
	}
}

func TestQuoteProrationWithoutCurrentPlan(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	next := &models.Plan{ID: "b", Price: 45000}

	q := QuoteProration(nil, models.Subscription{}, next, now)
	if q.CurrentPlan != nil || q.UnusedCredit != 0 || q.ProratedAmount != 45000 || q.ProrationType != ProrationUpgrade {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestCeilDays(t *testing.T) {
	if got := ceilDays(-time.Hour); got != 0 {
		t.Fatalf("ceilDays(-1h) = %d", got)
	}
	if got := ceilDays(time.Minute); got != 1 {
		t.Fatalf("ceilDays(1m) = %d", got)
	}
	if got := ceilDays(48 * time.Hour); got != 2 {
		t.Fatalf("ceilDays(48h) = %d", got)
	}
}
