package billing

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
)

const (
	invoiceDueIn      = 7 * 24 * time.Hour
	minorUnitsPerUnit = 100
	day               = 24 * time.Hour
)

// creditBonusTiers grants extra credits for the advertised packages.
var creditBonusTiers = map[int64]int64{
	1000: 100,
	2500: 300,
	5000: 750,
}

// BonusCredits returns the bonus granted for a package of quantity credits.
func BonusCredits(quantity int64) int64 {
	return creditBonusTiers[quantity]
}

// ToMinorUnits converts a major-unit amount to the gateway's kobo amount.
func ToMinorUnits(amount int64) int64 {
	return amount * minorUnitsPerUnit
}

func invoiceNumber(sequence int64, now time.Time) string {
	return fmt.Sprintf("INV-%05d-%04d", sequence, now.UnixMilli()%10000)
}

func subscriptionReference(now time.Time, planID string) string {
	return fmt.Sprintf("SUB_%d_%s", now.UnixMilli(), planID)
}

func creditReference(now time.Time, organizationID string) string {
	return fmt.Sprintf("CREDIT_%d_%s", now.UnixMilli(), organizationID)
}

// ceilDays rounds a duration up to whole days. Negative durations give 0.
func ceilDays(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	days := int64(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

// QuoteProration prices the switch from current to next at now. current may
// be nil when the organization has no live subscription, in which case no
// unused credit is refunded.
func QuoteProration(current *models.Plan, sub models.Subscription, next *models.Plan, now time.Time) *ProrationQuote {
	q := &ProrationQuote{
		CurrentPlan: summarizePlan(current),
		NewPlan:     summarizePlan(next),
	}

	var currentPrice int64
	if current != nil {
		currentPrice = current.Price
		if sub.StartDate != nil && sub.EndDate != nil {
			q.TotalDays = ceilDays(sub.EndDate.Sub(*sub.StartDate))
			q.RemainingDays = ceilDays(sub.EndDate.Sub(now))
			if q.RemainingDays > q.TotalDays {
				q.RemainingDays = q.TotalDays
			}
		}
		if q.TotalDays > 0 {
			// round half up
			q.UnusedCredit = (2*currentPrice*q.RemainingDays + q.TotalDays) / (2 * q.TotalDays)
		}
	}

	q.ProratedAmount = next.Price - q.UnusedCredit
	if q.ProratedAmount < 0 {
		q.ProratedAmount = 0
	}
	if next.Price > currentPrice {
		q.ProrationType = ProrationUpgrade
	} else {
		q.ProrationType = ProrationDowngrade
	}
	return q
}
