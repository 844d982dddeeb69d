package models

import "time"

// BillingWebhookEvent stores provider webhook payloads with deduplication
// metadata for auditing and replay detection.
type BillingWebhookEvent struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1" json:"provider" bson:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"providerEventId" bson:"providerEventId"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"eventType" bson:"eventType"`
	Reference       string     `gorm:"type:varchar(100);index" json:"reference" bson:"reference"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payloadJson" bson:"payloadJson"`
	SignatureValid  bool       `gorm:"index" json:"signatureValid" bson:"signatureValid"`
	ProcessedAt     *time.Time `gorm:"default:null" json:"processedAt,omitempty" bson:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError" bson:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt" bson:"updatedAt"`
}
