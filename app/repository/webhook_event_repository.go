package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateIfNotExists stores the event unless (provider, provider_event_id)
// was already seen. On a duplicate the stored row is loaded into event.
func (r *webhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, error) {
	ensureID(&event.ID)
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).First(event).Error
	return false, translateError(err)
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id string, processingErr string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     at,
			"processing_error": processingErr,
		}).Error
}
