package models

import "time"

type InvoiceType string

const (
	InvoiceTypeSubscription   InvoiceType = "subscription"
	InvoiceTypeCreditPurchase InvoiceType = "credit_purchase"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeSubscription || t == InvoiceTypeCreditPurchase
}

type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "pending"
	InvoiceStatusProcessing InvoiceStatus = "processing"
	InvoiceStatusPaid       InvoiceStatus = "paid"
	InvoiceStatusFailed     InvoiceStatus = "failed"
	InvoiceStatusCancelled  InvoiceStatus = "cancelled"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending:    {InvoiceStatusProcessing, InvoiceStatusFailed, InvoiceStatusCancelled},
	InvoiceStatusProcessing: {InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusCancelled},
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusProcessing, InvoiceStatusPaid, InvoiceStatusFailed, InvoiceStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusFailed || s == InvoiceStatusCancelled
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s InvoiceStatus) CanTransition(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvoiceCredits is set on credit purchases only.
type InvoiceCredits struct {
	Quantity     int64 `gorm:"not null;default:0" json:"quantity" bson:"quantity"`
	BonusCredits int64 `gorm:"not null;default:0" json:"bonusCredits" bson:"bonusCredits"`
	TotalCredits int64 `gorm:"not null;default:0" json:"totalCredits" bson:"totalCredits"`
}

// InvoicePaystack is the gateway-side bookkeeping of an invoice.
type InvoicePaystack struct {
	Reference        string     `gorm:"type:varchar(100);not null;uniqueIndex:ux_invoices_reference" json:"reference" bson:"reference"`
	AuthorizationURL string     `gorm:"type:varchar(255)" json:"authorizationUrl,omitempty" bson:"authorizationUrl,omitempty"`
	AccessCode       string     `gorm:"type:varchar(100)" json:"accessCode,omitempty" bson:"accessCode,omitempty"`
	TransactionID    string     `gorm:"type:varchar(64)" json:"transactionId,omitempty" bson:"transactionId,omitempty"`
	PaidAt           *time.Time `gorm:"default:null" json:"paidAt,omitempty" bson:"paidAt,omitempty"`
	Channel          string     `gorm:"type:varchar(32)" json:"channel,omitempty" bson:"channel,omitempty"`
	IPAddress        string     `gorm:"type:varchar(64)" json:"ipAddress,omitempty" bson:"ipAddress,omitempty"`
	Fees             int64      `gorm:"not null;default:0" json:"fees" bson:"fees"`
	CardType         string     `gorm:"type:varchar(32)" json:"cardType,omitempty" bson:"cardType,omitempty"`
	LastFourDigits   string     `gorm:"type:varchar(4)" json:"lastFourDigits,omitempty" bson:"lastFourDigits,omitempty"`
	Bank             string     `gorm:"type:varchar(100)" json:"bank,omitempty" bson:"bank,omitempty"`
}

// Invoice records an intended or completed payment. Amounts are in major
// currency units.
type Invoice struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	InvoiceNumber  string          `gorm:"type:varchar(32);not null;uniqueIndex:ux_invoices_number" json:"invoiceNumber" bson:"invoiceNumber"`
	OrganizationID string          `gorm:"type:varchar(36);not null;index:idx_invoices_org_created,priority:1" json:"organizationId" bson:"organizationId"`
	Type           InvoiceType     `gorm:"type:varchar(32);not null" json:"type" bson:"type"`
	PlanID         *string         `gorm:"type:varchar(36);default:null" json:"planId,omitempty" bson:"planId,omitempty"`
	Amount         int64           `gorm:"not null" json:"amount" bson:"amount"`
	TotalAmount    int64           `gorm:"not null" json:"totalAmount" bson:"totalAmount"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency" bson:"currency"`
	Status         InvoiceStatus   `gorm:"type:varchar(16);not null;default:'pending';index" json:"status" bson:"status"`
	DueDate        time.Time       `json:"dueDate" bson:"dueDate"`
	PaidDate       *time.Time      `gorm:"default:null" json:"paidDate,omitempty" bson:"paidDate,omitempty"`
	Description    string          `gorm:"type:varchar(255)" json:"description" bson:"description"`
	Credits        InvoiceCredits  `gorm:"embedded;embeddedPrefix:credits_" json:"credits" bson:"credits"`
	Paystack       InvoicePaystack `gorm:"embedded;embeddedPrefix:paystack_" json:"paystack" bson:"paystack"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index:idx_invoices_org_created,priority:2" json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updatedAt" bson:"updatedAt"`
}

// InvoicePatch carries the fields written together with a status transition.
// Zero values are left untouched.
type InvoicePatch struct {
	AuthorizationURL string
	AccessCode       string
	TransactionID    string
	PaidAt           *time.Time
	PaidDate         *time.Time
	Channel          string
	IPAddress        string
	Fees             int64
	CardType         string
	LastFourDigits   string
	Bank             string
}

// Apply copies the non-zero fields of the patch onto inv.
func (p InvoicePatch) Apply(inv *Invoice) {
	if p.AuthorizationURL != "" {
		inv.Paystack.AuthorizationURL = p.AuthorizationURL
	}
	if p.AccessCode != "" {
		inv.Paystack.AccessCode = p.AccessCode
	}
	if p.TransactionID != "" {
		inv.Paystack.TransactionID = p.TransactionID
	}
	if p.PaidAt != nil {
		inv.Paystack.PaidAt = p.PaidAt
	}
	if p.PaidDate != nil {
		inv.PaidDate = p.PaidDate
	}
	if p.Channel != "" {
		inv.Paystack.Channel = p.Channel
	}
	if p.IPAddress != "" {
		inv.Paystack.IPAddress = p.IPAddress
	}
	if p.Fees != 0 {
		inv.Paystack.Fees = p.Fees
	}
	if p.CardType != "" {
		inv.Paystack.CardType = p.CardType
	}
	if p.LastFourDigits != "" {
		inv.Paystack.LastFourDigits = p.LastFourDigits
	}
	if p.Bank != "" {
		inv.Paystack.Bank = p.Bank
	}
}

// InvoiceSequence is the per-organization invoice counter.
type InvoiceSequence struct {
	OrganizationID string    `gorm:"type:varchar(36);primaryKey" json:"organizationId" bson:"_id"`
	Counter        int64     `gorm:"not null;default:0" json:"counter" bson:"counter"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt" bson:"updatedAt"`
}
