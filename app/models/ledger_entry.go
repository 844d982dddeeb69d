package models

import "time"

// LedgerEntry records one applied settlement. The unique reference makes a
// replayed settlement detectable.
type LedgerEntry struct {
	ID             string      `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	OrganizationID string      `gorm:"type:varchar(36);not null;index" json:"organizationId" bson:"organizationId"`
	InvoiceID      string      `gorm:"type:varchar(36);not null;index" json:"invoiceId" bson:"invoiceId"`
	Reference      string      `gorm:"type:varchar(100);not null;uniqueIndex:ux_ledger_entries_reference" json:"reference" bson:"reference"`
	Type           InvoiceType `gorm:"type:varchar(32);not null" json:"type" bson:"type"`
	Credits        int64       `gorm:"not null;default:0" json:"credits" bson:"credits"`
	PlanID         *string     `gorm:"type:varchar(36);default:null" json:"planId,omitempty" bson:"planId,omitempty"`
	Superseded     bool        `json:"superseded" bson:"superseded"`
	PaidAt         time.Time   `json:"paidAt" bson:"paidAt"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"createdAt" bson:"createdAt"`
}
